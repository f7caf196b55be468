package model

import (
	"errors"
	"fmt"
	"strings"

	"propsearch/internal/utils"
)

// ErrInvalidFilter is returned for caller-supplied filters that no index could satisfy
var ErrInvalidFilter = errors.New("invalid filter")

// Criterion names, in the order they are evaluated and explained
const (
	CriterionPropertyType      = "property_type"
	CriterionCity              = "city"
	CriterionState             = "state"
	CriterionNeighborhood      = "neighborhood"
	CriterionMinPrice          = "min_price"
	CriterionMaxPrice          = "max_price"
	CriterionMinBedrooms       = "min_bedrooms"
	CriterionMinBathrooms      = "min_bathrooms"
	CriterionMinSquareFeet     = "min_square_feet"
	CriterionRequiredAmenities = "required_amenities"
)

// QueryFilter is the structured part of a query. A nil field is unconstrained.
type QueryFilter struct {
	MinPrice          *int64        `json:"min_price,omitempty"`
	MaxPrice          *int64        `json:"max_price,omitempty"`
	MinBedrooms       *float64      `json:"min_bedrooms,omitempty"`
	MinBathrooms      *float64      `json:"min_bathrooms,omitempty"`
	MinSquareFeet     *int64        `json:"min_square_feet,omitempty"`
	City              *string       `json:"city,omitempty"`
	State             *string       `json:"state,omitempty"`
	Neighborhood      *string       `json:"neighborhood,omitempty"`
	PropertyType      *PropertyType `json:"property_type,omitempty"`
	RequiredAmenities []string      `json:"required_amenities,omitempty"`
}

// IsEmpty reports whether no criterion is set.
func (f *QueryFilter) IsEmpty() bool {
	return f == nil || len(f.Criteria()) == 0
}

// Criteria lists the names of the set criteria in evaluation order.
func (f *QueryFilter) Criteria() []string {
	if f == nil {
		return nil
	}
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(f.PropertyType != nil, CriterionPropertyType)
	add(f.City != nil, CriterionCity)
	add(f.State != nil, CriterionState)
	add(f.Neighborhood != nil, CriterionNeighborhood)
	add(f.MinPrice != nil, CriterionMinPrice)
	add(f.MaxPrice != nil, CriterionMaxPrice)
	add(f.MinBedrooms != nil, CriterionMinBedrooms)
	add(f.MinBathrooms != nil, CriterionMinBathrooms)
	add(f.MinSquareFeet != nil, CriterionMinSquareFeet)
	add(len(f.RequiredAmenities) > 0, CriterionRequiredAmenities)
	return out
}

// Clone returns a deep copy.
func (f *QueryFilter) Clone() *QueryFilter {
	if f == nil {
		return &QueryFilter{}
	}
	c := &QueryFilter{
		MinPrice:      clonePtr(f.MinPrice),
		MaxPrice:      clonePtr(f.MaxPrice),
		MinBedrooms:   clonePtr(f.MinBedrooms),
		MinBathrooms:  clonePtr(f.MinBathrooms),
		MinSquareFeet: clonePtr(f.MinSquareFeet),
		City:          clonePtr(f.City),
		State:         clonePtr(f.State),
		Neighborhood:  clonePtr(f.Neighborhood),
		PropertyType:  clonePtr(f.PropertyType),
	}
	if f.RequiredAmenities != nil {
		c.RequiredAmenities = make([]string, len(f.RequiredAmenities))
		copy(c.RequiredAmenities, f.RequiredAmenities)
	}
	return c
}

// Merge returns a copy of f with every field set in overrides taking precedence.
func (f *QueryFilter) Merge(overrides *QueryFilter) *QueryFilter {
	merged := f.Clone()
	if overrides == nil {
		return merged
	}
	o := overrides.Clone()
	if o.MinPrice != nil {
		merged.MinPrice = o.MinPrice
	}
	if o.MaxPrice != nil {
		merged.MaxPrice = o.MaxPrice
	}
	if o.MinBedrooms != nil {
		merged.MinBedrooms = o.MinBedrooms
	}
	if o.MinBathrooms != nil {
		merged.MinBathrooms = o.MinBathrooms
	}
	if o.MinSquareFeet != nil {
		merged.MinSquareFeet = o.MinSquareFeet
	}
	if o.City != nil {
		merged.City = o.City
	}
	if o.State != nil {
		merged.State = o.State
	}
	if o.Neighborhood != nil {
		merged.Neighborhood = o.Neighborhood
	}
	if o.PropertyType != nil {
		merged.PropertyType = o.PropertyType
	}
	if o.RequiredAmenities != nil {
		merged.RequiredAmenities = o.RequiredAmenities
	}
	return merged
}

// MergeRepair merges overrides over f and repairs the result. Overrides are
// explicit, so when the merged price range is inverted the extracted bound is
// the one discarded. overrides must already pass Validate.
func (f *QueryFilter) MergeRepair(overrides *QueryFilter) (*QueryFilter, []string) {
	base := f.Clone()
	notes := base.Repair()
	merged := base.Merge(overrides)

	if overrides != nil && merged.MinPrice != nil && merged.MaxPrice != nil && *merged.MinPrice > *merged.MaxPrice {
		switch {
		case overrides.MinPrice != nil && overrides.MaxPrice == nil:
			notes = append(notes, fmt.Sprintf("discarded max_price %d below requested min_price %d", *merged.MaxPrice, *merged.MinPrice))
			merged.MaxPrice = nil
		case overrides.MaxPrice != nil && overrides.MinPrice == nil:
			notes = append(notes, fmt.Sprintf("discarded min_price %d above requested max_price %d", *merged.MinPrice, *merged.MaxPrice))
			merged.MinPrice = nil
		}
	}
	return merged, append(notes, merged.Repair()...)
}

// Validate rejects caller-supplied filters an index cannot satisfy by construction.
func (f *QueryFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return fmt.Errorf("%w: min_price %d exceeds max_price %d", ErrInvalidFilter, *f.MinPrice, *f.MaxPrice)
	}
	for name, negative := range map[string]bool{
		CriterionMinPrice:      f.MinPrice != nil && *f.MinPrice < 0,
		CriterionMaxPrice:      f.MaxPrice != nil && *f.MaxPrice < 0,
		CriterionMinBedrooms:   f.MinBedrooms != nil && *f.MinBedrooms < 0,
		CriterionMinBathrooms:  f.MinBathrooms != nil && *f.MinBathrooms < 0,
		CriterionMinSquareFeet: f.MinSquareFeet != nil && *f.MinSquareFeet < 0,
	} {
		if negative {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidFilter, name)
		}
	}
	if f.PropertyType != nil && !f.PropertyType.Valid() {
		return fmt.Errorf("%w: unknown property_type %q", ErrInvalidFilter, *f.PropertyType)
	}
	if _, unknown := utils.NormalizeAmenities(f.RequiredAmenities); len(unknown) > 0 {
		return fmt.Errorf("%w: unknown amenities %v", ErrInvalidFilter, unknown)
	}
	return nil
}

// Repair brings f into a satisfiable shape in place and returns a note per change.
// A min_price above max_price is discarded in favour of the ceiling.
func (f *QueryFilter) Repair() []string {
	if f == nil {
		return nil
	}
	var notes []string
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		notes = append(notes, fmt.Sprintf("discarded min_price %d above max_price %d", *f.MinPrice, *f.MaxPrice))
		f.MinPrice = nil
	}
	if f.MinPrice != nil && *f.MinPrice < 0 {
		notes = append(notes, "discarded negative min_price")
		f.MinPrice = nil
	}
	if f.MaxPrice != nil && *f.MaxPrice < 0 {
		notes = append(notes, "discarded negative max_price")
		f.MaxPrice = nil
	}
	if f.MinBedrooms != nil && *f.MinBedrooms < 0 {
		notes = append(notes, "discarded negative min_bedrooms")
		f.MinBedrooms = nil
	}
	if f.MinBathrooms != nil && *f.MinBathrooms < 0 {
		notes = append(notes, "discarded negative min_bathrooms")
		f.MinBathrooms = nil
	}
	if f.MinSquareFeet != nil && *f.MinSquareFeet < 0 {
		notes = append(notes, "discarded negative min_square_feet")
		f.MinSquareFeet = nil
	}
	if f.PropertyType != nil && !f.PropertyType.Valid() {
		if parsed, ok := ParsePropertyType(string(*f.PropertyType)); ok {
			f.PropertyType = &parsed
		} else {
			notes = append(notes, fmt.Sprintf("dropped unknown property_type %q", *f.PropertyType))
			f.PropertyType = nil
		}
	}
	f.City = trimmedOrNil(f.City)
	f.State = trimmedOrNil(f.State)
	f.Neighborhood = trimmedOrNil(f.Neighborhood)
	if f.RequiredAmenities != nil {
		tags, unknown := utils.NormalizeAmenities(f.RequiredAmenities)
		if len(unknown) > 0 {
			notes = append(notes, fmt.Sprintf("dropped unknown amenities %v", unknown))
		}
		f.RequiredAmenities = tags
	}
	return notes
}

// String renders the set criteria, for logs and notes.
func (f *QueryFilter) String() string {
	if f.IsEmpty() {
		return "{}"
	}
	var parts []string
	for _, name := range f.Criteria() {
		parts = append(parts, name+"="+f.describe(name))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (f *QueryFilter) describe(criterion string) string {
	switch criterion {
	case CriterionPropertyType:
		return string(*f.PropertyType)
	case CriterionCity:
		return *f.City
	case CriterionState:
		return *f.State
	case CriterionNeighborhood:
		return *f.Neighborhood
	case CriterionMinPrice:
		return fmt.Sprintf("%d", *f.MinPrice)
	case CriterionMaxPrice:
		return fmt.Sprintf("%d", *f.MaxPrice)
	case CriterionMinBedrooms:
		return formatCount(*f.MinBedrooms)
	case CriterionMinBathrooms:
		return formatCount(*f.MinBathrooms)
	case CriterionMinSquareFeet:
		return fmt.Sprintf("%d", *f.MinSquareFeet)
	case CriterionRequiredAmenities:
		return "[" + strings.Join(f.RequiredAmenities, " ") + "]"
	}
	return ""
}

// NormalizeKey is the case-insensitive comparison form of a categorical value.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func formatCount(v float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
