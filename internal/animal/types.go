// Package animal defines the canonical dog record and the types shared across
// ingestion, ranking and lookup.
package animal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Age is the coarse life stage of a dog.
type Age string

// Age values.
const (
	AgeBaby    Age = "Baby"
	AgeYoung   Age = "Young"
	AgeAdult   Age = "Adult"
	AgeSenior  Age = "Senior"
	AgeUnknown Age = "Unknown"
)

// Size is the coarse size class of a dog.
type Size string

// Size values.
const (
	SizeSmall      Size = "Small"
	SizeMedium     Size = "Medium"
	SizeLarge      Size = "Large"
	SizeExtraLarge Size = "Extra Large"
	SizeUnknown    Size = "Unknown"
)

// Gender of a dog.
type Gender string

// Gender values.
const (
	GenderMale    Gender = "Male"
	GenderFemale  Gender = "Female"
	GenderUnknown Gender = "Unknown"
)

// Status is the listing lifecycle state. Records are never physically deleted.
type Status string

// Status values.
const (
	StatusAdoptable Status = "adoptable"
	StatusPending   Status = "pending"
	StatusAdopted   Status = "adopted"
	StatusRemoved   Status = "removed"
)

// Unknown is the placeholder for missing location parts.
const Unknown = "Unknown"

// SpeciesDog is the only species this service handles.
const SpeciesDog = "dog"

// ErrInvalidID is returned when an animal ID string cannot be parsed.
var ErrInvalidID = errors.New("invalid animal id")

// ID is the natural key of a record: a provider namespace plus the provider's native id.
type ID struct {
	Provider string `json:"provider"`
	NativeID string `json:"native_id"`
}

// String renders the ID as "provider:nativeID".
func (id ID) String() string {
	if id.Provider == "" {
		return id.NativeID
	}
	return id.Provider + ":" + id.NativeID
}

// ParseID splits "provider:nativeID". A bare native id yields an empty provider.
func ParseID(raw string) (ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ID{}, fmt.Errorf("%w: empty", ErrInvalidID)
	}
	provider, native, found := strings.Cut(raw, ":")
	if !found {
		return ID{NativeID: raw}, nil
	}
	if provider == "" || native == "" {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, raw)
	}
	return ID{Provider: strings.ToLower(provider), NativeID: native}, nil
}

// Breed describes the primary/secondary breed and whether the dog is a mix.
type Breed struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
	Mixed     bool   `json:"mixed"`
}

// Location is where the dog is listed.
type Location struct {
	City     string   `json:"city"`
	State    string   `json:"state"`
	Postcode string   `json:"postcode,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
}

// Attributes are the health and training flags a shelter may publish.
type Attributes struct {
	HouseTrained   Tri `json:"house_trained"`
	SpecialNeeds   Tri `json:"special_needs"`
	SpayedNeutered Tri `json:"spayed_neutered"`
	ShotsCurrent   Tri `json:"shots_current"`
}

// Compatibility records whether the dog is known to be good with others.
type Compatibility struct {
	Children Tri `json:"children"`
	Dogs     Tri `json:"dogs"`
	Cats     Tri `json:"cats"`
}

// Provenance records where this copy of a record came from.
type Provenance struct {
	// SourceProvider is the namespace that owns the native id.
	SourceProvider string `json:"source_provider"`
	// SourceKind is the source this copy was read from (store or a live provider).
	SourceKind string `json:"source_kind"`
	// SourcePriority is lower for more trusted sources.
	SourcePriority int `json:"source_priority"`
}

// Animal is the canonical dog record.
type Animal struct {
	ID              ID            `json:"id"`
	Name            string        `json:"name"`
	Species         string        `json:"species"`
	Breed           Breed         `json:"breed"`
	Age             Age           `json:"age"`
	Size            Size          `json:"size"`
	Gender          Gender        `json:"gender"`
	Photos          []string      `json:"photos"`
	Description     string        `json:"description,omitempty"`
	Location        Location      `json:"location"`
	OrganizationID  string        `json:"organization_id,omitempty"`
	Attributes      Attributes    `json:"attributes"`
	Compatibility   Compatibility `json:"compatibility"`
	EnergyLevel     string        `json:"energy_level,omitempty"`
	CoatColor       string        `json:"coat_color,omitempty"`
	ExternalURL     string        `json:"external_url,omitempty"`
	Provenance      Provenance    `json:"provenance"`
	VisibilityScore float64       `json:"visibility_score"`
	PublishedAt     time.Time     `json:"published_at,omitzero"`
	LastUpdated     time.Time     `json:"last_updated,omitzero"`
	Status          Status        `json:"status"`
}

// Clock abstracts time so scoring and sync runs are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers for audit rows.
type IDGenerator interface {
	NewID() (string, error)
}
