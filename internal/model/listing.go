package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"propsearch/internal/utils"
)

// ErrInvalidListing is returned when a listing fails ingestion validation
var ErrInvalidListing = errors.New("invalid listing")

// PropertyType enumerates the supported kinds of property
type PropertyType string

const (
	PropertyTypeHouse     PropertyType = "house"
	PropertyTypeApartment PropertyType = "apartment"
	PropertyTypeCondo     PropertyType = "condo"
	PropertyTypeTownhouse PropertyType = "townhouse"
	PropertyTypeStudio    PropertyType = "studio"
)

// ParsePropertyType maps a free-form label onto the enum.
func ParsePropertyType(label string) (PropertyType, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "house", "houses", "home", "homes", "single family", "single-family", "single family home", "single-family home", "cottage", "brownstone":
		return PropertyTypeHouse, true
	case "apartment", "apartments", "apt", "apts", "flat", "flats", "loft", "lofts":
		return PropertyTypeApartment, true
	case "condo", "condos", "condominium", "condominiums":
		return PropertyTypeCondo, true
	case "townhouse", "townhouses", "townhome", "townhomes", "town house", "rowhouse":
		return PropertyTypeTownhouse, true
	case "studio", "studios":
		return PropertyTypeStudio, true
	}
	return "", false
}

// Valid reports whether t is one of the enumerated types.
func (t PropertyType) Valid() bool {
	parsed, ok := ParsePropertyType(string(t))
	return ok && parsed == t
}

// ListingStatus is the market status of a listing
type ListingStatus string

const (
	StatusActive  ListingStatus = "active"
	StatusPending ListingStatus = "pending"
	StatusSold    ListingStatus = "sold"
)

// Valid reports whether s is a known status.
func (s ListingStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPending, StatusSold:
		return true
	}
	return false
}

// PropertyMetadata holds the structured attributes of an indexed listing.
// PropertyID is immutable and joins the vector index to any external store.
type PropertyMetadata struct {
	PropertyID   string        `json:"property_id" db:"property_id" msgpack:"property_id"`
	PropertyType PropertyType  `json:"property_type" db:"property_type" msgpack:"property_type"`
	Status       ListingStatus `json:"status" db:"status" msgpack:"status"`
	Price        int64         `json:"price" db:"price" msgpack:"price"`
	Bedrooms     float64       `json:"bedrooms" db:"bedrooms" msgpack:"bedrooms"`
	Bathrooms    float64       `json:"bathrooms" db:"bathrooms" msgpack:"bathrooms"`
	SquareFeet   *int64        `json:"square_feet,omitempty" db:"square_feet" msgpack:"square_feet"`
	City         string        `json:"city" db:"city" msgpack:"city"`
	State        string        `json:"state" db:"state" msgpack:"state"`
	Neighborhood string        `json:"neighborhood,omitempty" db:"neighborhood" msgpack:"neighborhood"`
	Amenities    JSONArray     `json:"amenities" db:"amenities" msgpack:"amenities"`
	YearBuilt    *int          `json:"year_built,omitempty" db:"year_built" msgpack:"year_built"`
	DaysOnMarket int           `json:"days_on_market" db:"days_on_market" msgpack:"days_on_market"`
	ListingAgent string        `json:"listing_agent,omitempty" db:"listing_agent" msgpack:"listing_agent"`
}

// Normalize trims text fields, upper-cases the state, canonicalises
// amenities and defaults the status to active.
func (m *PropertyMetadata) Normalize() {
	m.PropertyID = strings.TrimSpace(m.PropertyID)
	m.City = strings.TrimSpace(m.City)
	m.State = strings.ToUpper(strings.TrimSpace(m.State))
	m.Neighborhood = strings.TrimSpace(m.Neighborhood)
	m.ListingAgent = strings.TrimSpace(m.ListingAgent)
	if parsed, ok := ParsePropertyType(string(m.PropertyType)); ok {
		m.PropertyType = parsed
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
	tags, _ := utils.NormalizeAmenities(m.Amenities)
	m.Amenities = tags
}

// Validate checks the ingestion invariants.
func (m *PropertyMetadata) Validate() error {
	switch {
	case m.PropertyID == "":
		return fmt.Errorf("%w: property_id is required", ErrInvalidListing)
	case !m.PropertyType.Valid():
		return fmt.Errorf("%w: %s: unknown property_type %q", ErrInvalidListing, m.PropertyID, m.PropertyType)
	case !m.Status.Valid():
		return fmt.Errorf("%w: %s: unknown status %q", ErrInvalidListing, m.PropertyID, m.Status)
	case m.Price <= 0:
		return fmt.Errorf("%w: %s: price must be positive", ErrInvalidListing, m.PropertyID)
	case m.Bedrooms < 0 || m.Bathrooms < 0:
		return fmt.Errorf("%w: %s: room counts must not be negative", ErrInvalidListing, m.PropertyID)
	case m.SquareFeet != nil && *m.SquareFeet <= 0:
		return fmt.Errorf("%w: %s: square_feet must be positive when known", ErrInvalidListing, m.PropertyID)
	case m.City == "" || m.State == "":
		return fmt.Errorf("%w: %s: city and state are required", ErrInvalidListing, m.PropertyID)
	case m.DaysOnMarket < 0:
		return fmt.Errorf("%w: %s: days_on_market must not be negative", ErrInvalidListing, m.PropertyID)
	}
	return nil
}

// PricePerSqft returns price divided by square feet, or 0 when area is unknown.
func (m *PropertyMetadata) PricePerSqft() float64 {
	if m.SquareFeet == nil || *m.SquareFeet <= 0 {
		return 0
	}
	return float64(m.Price) / float64(*m.SquareFeet)
}

// HasAmenity reports whether the canonical tag is present.
func (m *PropertyMetadata) HasAmenity(tag string) bool {
	for _, a := range m.Amenities {
		if a == tag {
			return true
		}
	}
	return false
}

// PropertyListing is a listing as ingested: free text plus one owned metadata record
type PropertyListing struct {
	Title       string           `json:"title" msgpack:"title"`
	Description string           `json:"description" msgpack:"description"`
	Metadata    PropertyMetadata `json:"metadata" msgpack:"metadata"`
	CreatedAt   time.Time        `json:"created_at" msgpack:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" msgpack:"updated_at"`
}

// ID returns the listing's property id.
func (l *PropertyListing) ID() string {
	return l.Metadata.PropertyID
}

// SearchableContent is the text the listing vector is derived from.
func (l *PropertyListing) SearchableContent() string {
	return strings.TrimSpace(l.Title) + "\n\n" + strings.TrimSpace(l.Description)
}

// Normalize prepares a listing for ingestion.
func (l *PropertyListing) Normalize(now time.Time) {
	l.Title = strings.TrimSpace(l.Title)
	l.Description = strings.TrimSpace(l.Description)
	l.Metadata.Normalize()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
}

// Validate checks a listing for ingestion.
func (l *PropertyListing) Validate() error {
	if l.Title == "" && l.Description == "" {
		return fmt.Errorf("%w: %s: title or description is required", ErrInvalidListing, l.Metadata.PropertyID)
	}
	return l.Metadata.Validate()
}

// IndexedListing pairs a listing with its unit-length embedding
type IndexedListing struct {
	Listing PropertyListing
	Vector  []float32
}

// JSONArray represents a JSON array field
type JSONArray []string

// Value implements driver.Valuer interface. The JSON is sent as text so
// lib/pq does not encode it as bytea.
func (j JSONArray) Value() (driver.Value, error) {
	if j == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan implements sql.Scanner interface
func (j *JSONArray) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("cannot scan %T into JSONArray", value)
	}
}
