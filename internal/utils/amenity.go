package utils

import (
	"regexp"
	"sort"
	"strings"
)

// Canonical amenity tags
const (
	AmenityPool            = "pool"
	AmenityGym             = "gym"
	AmenityParking         = "parking"
	AmenityPetFriendly     = "pet_friendly"
	AmenityBalcony         = "balcony"
	AmenityFireplace       = "fireplace"
	AmenityDishwasher      = "dishwasher"
	AmenityWasherDryer     = "washer_dryer"
	AmenityAirConditioning = "air_conditioning"
	AmenityHardwoodFloors  = "hardwood_floors"
)

// amenityAliases maps every accepted spelling onto its canonical tag.
var amenityAliases = map[string][]string{
	AmenityPool:            {"pool", "pools", "swimming pool", "pool deck", "plunge pool"},
	AmenityGym:             {"gym", "gymnasium", "fitness", "fitness center", "fitness centre", "gym access"},
	AmenityParking:         {"parking", "garage", "car park", "covered parking", "valet parking", "parking garage"},
	AmenityPetFriendly:     {"pet friendly", "pet-friendly", "pets allowed", "pets ok", "allows pets", "dog friendly"},
	AmenityBalcony:         {"balcony", "terrace", "patio"},
	AmenityFireplace:       {"fireplace", "fire place", "wood burning fireplace"},
	AmenityDishwasher:      {"dishwasher", "dish washer"},
	AmenityWasherDryer:     {"washer dryer", "washer/dryer", "washer and dryer", "in-unit laundry", "laundry", "washing machine"},
	AmenityAirConditioning: {"air conditioning", "air-conditioning", "air conditioner", "aircon", "a/c", "ac", "central air"},
	AmenityHardwoodFloors:  {"hardwood floors", "hardwood floor", "hardwood flooring", "hardwood", "wood floors"},
}

var (
	aliasIndex  map[string]string
	aliasRe     *regexp.Regexp
	separatorRe = regexp.MustCompile(`[\s_]+`)
)

func init() {
	aliasIndex = make(map[string]string)
	var aliases []string
	for tag, list := range amenityAliases {
		aliasIndex[tag] = tag
		aliasIndex[strings.ReplaceAll(tag, "_", " ")] = tag
		for _, alias := range list {
			aliasIndex[alias] = tag
			aliases = append(aliases, alias)
		}
	}
	// longest first so "swimming pool" wins over "pool"
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})
	quoted := make([]string, len(aliases))
	for i, a := range aliases {
		quoted[i] = regexp.QuoteMeta(a)
	}
	aliasRe = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// CanonicalAmenities returns the sorted canonical tag vocabulary.
func CanonicalAmenities() []string {
	tags := make([]string, 0, len(amenityAliases))
	for tag := range amenityAliases {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// NormalizeAmenity maps a free-form amenity label to its canonical tag.
func NormalizeAmenity(label string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	if key == "" {
		return "", false
	}
	if tag, ok := aliasIndex[key]; ok {
		return tag, true
	}
	if tag, ok := aliasIndex[separatorRe.ReplaceAllString(key, " ")]; ok {
		return tag, true
	}
	return "", false
}

// NormalizeAmenities canonicalises labels, returning the sorted unique tags
// and the labels that matched nothing.
func NormalizeAmenities(labels []string) (tags []string, unknown []string) {
	seen := make(map[string]bool, len(labels))
	for _, label := range labels {
		tag, ok := NormalizeAmenity(label)
		if !ok {
			if l := strings.TrimSpace(label); l != "" {
				unknown = append(unknown, l)
			}
			continue
		}
		if !seen[tag] {
			seen[tag] = true
			tags = append(tags, tag)
		}
	}
	sort.Strings(tags)
	return tags, unknown
}

// AmenityMatch is an amenity mention found in free text.
type AmenityMatch struct {
	Tag        string
	Start, End int
}

// FindAmenities scans text for amenity mentions, longest alias first.
func FindAmenities(text string) []AmenityMatch {
	var matches []AmenityMatch
	for _, loc := range aliasRe.FindAllStringIndex(text, -1) {
		if tag, ok := NormalizeAmenity(text[loc[0]:loc[1]]); ok {
			matches = append(matches, AmenityMatch{Tag: tag, Start: loc[0], End: loc[1]})
		}
	}
	return matches
}
