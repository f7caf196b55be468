package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAmenity(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"pool", AmenityPool, true},
		{"Swimming Pool", AmenityPool, true},
		{"pet_friendly", AmenityPetFriendly, true},
		{"Pets Allowed", AmenityPetFriendly, true},
		{"A/C", AmenityAirConditioning, true},
		{"washer_dryer", AmenityWasherDryer, true},
		{"hardwood  floors", AmenityHardwoodFloors, true},
		{"helipad", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeAmenity(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeAmenities(t *testing.T) {
	tags, unknown := NormalizeAmenities([]string{"Gym", "pool", "fitness center", "ocean views", " "})
	assert.Equal(t, []string{AmenityGym, AmenityPool}, tags)
	assert.Equal(t, []string{"ocean views"}, unknown)
}

func TestFindAmenities(t *testing.T) {
	text := "condo with a swimming pool, gym access and pets allowed"
	matches := FindAmenities(text)

	var tags []string
	for _, m := range matches {
		tags = append(tags, m.Tag)
	}
	assert.Equal(t, []string{AmenityPool, AmenityGym, AmenityPetFriendly}, tags)
	assert.Equal(t, "swimming pool", text[matches[0].Start:matches[0].End])
}

func TestCanonicalAmenities(t *testing.T) {
	tags := CanonicalAmenities()
	assert.Len(t, tags, 10)
	assert.Contains(t, tags, AmenityHardwoodFloors)
	assert.IsIncreasing(t, tags)
}
