package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Field is a filterable metadata attribute
type Field string

const (
	FieldPrice        Field = "price"
	FieldBedrooms     Field = "bedrooms"
	FieldBathrooms    Field = "bathrooms"
	FieldSquareFeet   Field = "square_feet"
	FieldCity         Field = "city"
	FieldState        Field = "state"
	FieldNeighborhood Field = "neighborhood"
	FieldPropertyType Field = "property_type"
	FieldAmenities    Field = "amenities"
	FieldStatus       Field = "status"
)

// Op is a clause operator
type Op string

const (
	OpEq          Op = "eq" // case-insensitive equality
	OpGte         Op = "gte"
	OpLte         Op = "lte"
	OpContainsAll Op = "contains_all"
)

// Clause is one constraint over a single metadata field.
// Numeric ops read Number, OpEq reads Text (already normalised), OpContainsAll reads Values.
type Clause struct {
	Field  Field    `json:"field"`
	Op     Op       `json:"op"`
	Number float64  `json:"number,omitempty"`
	Text   string   `json:"text,omitempty"`
	Values []string `json:"values,omitempty"`
}

// Predicate is a conjunction of clauses
type Predicate struct {
	Clauses []Clause `json:"clauses"`
}

// CompilePredicate translates a filter into an index-native predicate.
// Only active listings are ever eligible.
func CompilePredicate(f *QueryFilter) Predicate {
	p := Predicate{Clauses: []Clause{{Field: FieldStatus, Op: OpEq, Text: string(StatusActive)}}}
	if f == nil {
		return p
	}
	if f.PropertyType != nil {
		p.Clauses = append(p.Clauses, Clause{Field: FieldPropertyType, Op: OpEq, Text: NormalizeKey(string(*f.PropertyType))})
	}
	if f.City != nil {
		p.Clauses = append(p.Clauses, Clause{Field: FieldCity, Op: OpEq, Text: NormalizeKey(*f.City)})
	}
	if f.State != nil {
		p.Clauses = append(p.Clauses, Clause{Field: FieldState, Op: OpEq, Text: NormalizeKey(*f.State)})
	}
	if f.Neighborhood != nil {
		p.Clauses = append(p.Clauses, Clause{Field: FieldNeighborhood, Op: OpEq, Text: NormalizeKey(*f.Neighborhood)})
	}
	if f.MinPrice != nil {
		p.Clauses = append(p.Clauses, Clause{Field: FieldPrice, Op: OpGte, Number: float64(*f.MinPrice)})
	}
	if f.MaxPrice != nil {
		p.Clauses = append(p.Clauses, Clause{Field: FieldPrice, Op: OpLte, Number: float64(*f.MaxPrice)})
	}
	if f.MinBedrooms != nil {
		p.Clauses = append(p.Clauses, Clause{Field: FieldBedrooms, Op: OpGte, Number: *f.MinBedrooms})
	}
	if f.MinBathrooms != nil {
		p.Clauses = append(p.Clauses, Clause{Field: FieldBathrooms, Op: OpGte, Number: *f.MinBathrooms})
	}
	if f.MinSquareFeet != nil {
		p.Clauses = append(p.Clauses, Clause{Field: FieldSquareFeet, Op: OpGte, Number: float64(*f.MinSquareFeet)})
	}
	if len(f.RequiredAmenities) > 0 {
		values := make([]string, len(f.RequiredAmenities))
		for i, a := range f.RequiredAmenities {
			values[i] = NormalizeKey(a)
		}
		p.Clauses = append(p.Clauses, Clause{Field: FieldAmenities, Op: OpContainsAll, Values: values})
	}
	return p
}

// Matches evaluates the predicate against metadata. This is the reference
// semantics the index backends reproduce natively.
func (p Predicate) Matches(m *PropertyMetadata) bool {
	for _, c := range p.Clauses {
		if !c.Matches(m) {
			return false
		}
	}
	return true
}

// Matches evaluates one clause. An unknown square footage never satisfies a bound.
func (c Clause) Matches(m *PropertyMetadata) bool {
	switch c.Op {
	case OpEq:
		v, ok := textField(m, c.Field)
		return ok && NormalizeKey(v) == c.Text
	case OpGte, OpLte:
		v, ok := numericField(m, c.Field)
		if !ok {
			return false
		}
		if c.Op == OpGte {
			return v >= c.Number
		}
		return v <= c.Number
	case OpContainsAll:
		if c.Field != FieldAmenities {
			return false
		}
		for _, want := range c.Values {
			if !m.HasAmenity(want) {
				return false
			}
		}
		return true
	}
	return false
}

func (c Clause) String() string {
	switch c.Op {
	case OpEq:
		return fmt.Sprintf("%s = %q", c.Field, c.Text)
	case OpGte:
		return fmt.Sprintf("%s >= %s", c.Field, strconv.FormatFloat(c.Number, 'f', -1, 64))
	case OpLte:
		return fmt.Sprintf("%s <= %s", c.Field, strconv.FormatFloat(c.Number, 'f', -1, 64))
	case OpContainsAll:
		return fmt.Sprintf("%s contains all [%s]", c.Field, strings.Join(c.Values, ", "))
	}
	return string(c.Field) + " ?"
}

func (p Predicate) String() string {
	parts := make([]string, len(p.Clauses))
	for i, c := range p.Clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, " AND ")
}

func textField(m *PropertyMetadata, f Field) (string, bool) {
	switch f {
	case FieldCity:
		return m.City, true
	case FieldState:
		return m.State, true
	case FieldNeighborhood:
		return m.Neighborhood, true
	case FieldPropertyType:
		return string(m.PropertyType), true
	case FieldStatus:
		return string(m.Status), true
	}
	return "", false
}

func numericField(m *PropertyMetadata, f Field) (float64, bool) {
	switch f {
	case FieldPrice:
		return float64(m.Price), true
	case FieldBedrooms:
		return m.Bedrooms, true
	case FieldBathrooms:
		return m.Bathrooms, true
	case FieldSquareFeet:
		if m.SquareFeet == nil {
			return 0, false
		}
		return float64(*m.SquareFeet), true
	}
	return 0, false
}
