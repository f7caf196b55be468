package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func miamiCondo() *PropertyMetadata {
	return &PropertyMetadata{
		PropertyID:   "PROP_001",
		PropertyType: PropertyTypeCondo,
		Status:       StatusActive,
		Price:        450000,
		Bedrooms:     2,
		Bathrooms:    2,
		SquareFeet:   Ptr(int64(1100)),
		City:         "Miami",
		State:        "FL",
		Neighborhood: "Brickell",
		Amenities:    JSONArray{"balcony", "gym", "pool"},
	}
}

func TestCompilePredicateAlwaysRequiresActive(t *testing.T) {
	p := CompilePredicate(nil)
	assert.Equal(t, []Clause{{Field: FieldStatus, Op: OpEq, Text: "active"}}, p.Clauses)

	m := miamiCondo()
	assert.True(t, p.Matches(m))
	m.Status = StatusSold
	assert.False(t, p.Matches(m))
}

func TestPredicateMatches(t *testing.T) {
	tests := []struct {
		name   string
		filter *QueryFilter
		want   bool
	}{
		{name: "empty filter", filter: &QueryFilter{}, want: true},
		{name: "city is case-insensitive", filter: &QueryFilter{City: Ptr("  MIAMI ")}, want: true},
		{name: "other city", filter: &QueryFilter{City: Ptr("Tampa")}, want: false},
		{name: "under ceiling", filter: &QueryFilter{MaxPrice: Ptr(int64(500000))}, want: true},
		{name: "ceiling is inclusive", filter: &QueryFilter{MaxPrice: Ptr(int64(450000))}, want: true},
		{name: "over ceiling", filter: &QueryFilter{MaxPrice: Ptr(int64(449999))}, want: false},
		{name: "floor", filter: &QueryFilter{MinPrice: Ptr(int64(460000))}, want: false},
		{name: "bedrooms", filter: &QueryFilter{MinBedrooms: Ptr(2.0)}, want: true},
		{name: "too few bathrooms", filter: &QueryFilter{MinBathrooms: Ptr(2.5)}, want: false},
		{name: "square feet", filter: &QueryFilter{MinSquareFeet: Ptr(int64(1000))}, want: true},
		{name: "type", filter: &QueryFilter{PropertyType: Ptr(PropertyTypeHouse)}, want: false},
		{name: "neighborhood", filter: &QueryFilter{Neighborhood: Ptr("brickell")}, want: true},
		{name: "all amenities present", filter: &QueryFilter{RequiredAmenities: []string{"pool", "gym"}}, want: true},
		{name: "one amenity missing", filter: &QueryFilter{RequiredAmenities: []string{"pool", "fireplace"}}, want: false},
		{
			name: "full conjunction",
			filter: &QueryFilter{
				PropertyType:      Ptr(PropertyTypeCondo),
				City:              Ptr("Miami"),
				MaxPrice:          Ptr(int64(500000)),
				MinBedrooms:       Ptr(2.0),
				RequiredAmenities: []string{"pool"},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CompilePredicate(tt.filter).Matches(miamiCondo()))
		})
	}
}

func TestUnknownSquareFeetNeverSatisfiesBound(t *testing.T) {
	m := miamiCondo()
	m.SquareFeet = nil
	p := CompilePredicate(&QueryFilter{MinSquareFeet: Ptr(int64(1))})
	assert.False(t, p.Matches(m))
}

func TestPredicateString(t *testing.T) {
	p := CompilePredicate(&QueryFilter{City: Ptr("Miami"), MaxPrice: Ptr(int64(500000)), RequiredAmenities: []string{"pool"}})
	assert.Equal(t, `status = "active" AND city = "miami" AND price <= 500000 AND amenities contains all [pool]`, p.String())
}

func TestListingValidate(t *testing.T) {
	l := PropertyListing{Title: "Condo", Metadata: *miamiCondo()}
	l.Metadata.State = " fl "
	l.Metadata.Status = ""
	l.Metadata.Amenities = JSONArray{"Swimming Pool", "GYM"}
	l.Normalize(l.CreatedAt)

	assert.NoError(t, l.Validate())
	assert.Equal(t, "FL", l.Metadata.State)
	assert.Equal(t, StatusActive, l.Metadata.Status)
	assert.Equal(t, JSONArray{"gym", "pool"}, l.Metadata.Amenities)
	assert.InDelta(t, 409.09, l.Metadata.PricePerSqft(), 0.01)

	l.Metadata.Price = 0
	assert.ErrorIs(t, l.Validate(), ErrInvalidListing)
}
