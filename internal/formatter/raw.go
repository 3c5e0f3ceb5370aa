package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/rescue-radar/internal/animal"
)

// SourceKind tags which schema a raw record uses.
type SourceKind string

// Source kinds.
const (
	SourceStore        SourceKind = "store"
	SourceRescueGroups SourceKind = "rescuegroups"
	SourcePetfinder    SourceKind = "petfinder"
)

// RawRecord is one of StoreRaw, RescueGroupsRaw or PetfinderRaw.
type RawRecord interface {
	Kind() SourceKind
	NativeID() string
	rawRecord()
}

// StoreRaw is a persisted row. Nullable columns are pointers.
type StoreRaw struct {
	Provider         string     `json:"provider" db:"provider"`
	ID               string     `json:"native_id" db:"native_id"`
	Name             string     `json:"name" db:"name"`
	BreedPrimary     string     `json:"breed_primary" db:"breed_primary"`
	BreedSecondary   string     `json:"breed_secondary,omitempty" db:"breed_secondary"`
	BreedMixed       *bool      `json:"breed_mixed,omitempty" db:"breed_mixed"`
	Age              string     `json:"age" db:"age"`
	Size             string     `json:"size" db:"size"`
	Gender           string     `json:"gender" db:"gender"`
	Photos           []string   `json:"photos" db:"photos"`
	Description      *string    `json:"description,omitempty" db:"description"`
	City             string     `json:"city" db:"city"`
	State            string     `json:"state" db:"state"`
	Postcode         string     `json:"postcode,omitempty" db:"postcode"`
	Latitude         *float64   `json:"latitude,omitempty" db:"latitude"`
	Longitude        *float64   `json:"longitude,omitempty" db:"longitude"`
	OrganizationID   string     `json:"organization_id,omitempty" db:"organization_id"`
	HouseTrained     *bool      `json:"house_trained,omitempty" db:"house_trained"`
	SpecialNeeds     *bool      `json:"special_needs,omitempty" db:"special_needs"`
	SpayedNeutered   *bool      `json:"spayed_neutered,omitempty" db:"spayed_neutered"`
	ShotsCurrent     *bool      `json:"shots_current,omitempty" db:"shots_current"`
	GoodWithChildren *bool      `json:"good_with_children,omitempty" db:"good_with_children"`
	GoodWithDogs     *bool      `json:"good_with_dogs,omitempty" db:"good_with_dogs"`
	GoodWithCats     *bool      `json:"good_with_cats,omitempty" db:"good_with_cats"`
	EnergyLevel      string     `json:"energy_level,omitempty" db:"energy_level"`
	CoatColor        string     `json:"coat_color,omitempty" db:"coat_color"`
	ExternalURL      string     `json:"external_url,omitempty" db:"external_url"`
	VisibilityScore  *float64   `json:"visibility_score,omitempty" db:"visibility_score"`
	PublishedAt      *time.Time `json:"published_at,omitempty" db:"published_at"`
	LastUpdated      time.Time  `json:"last_updated" db:"last_updated"`
	Status           string     `json:"status" db:"status"`
}

// Kind implements RawRecord.
func (StoreRaw) Kind() SourceKind { return SourceStore }

// NativeID implements RawRecord.
func (r StoreRaw) NativeID() string { return r.ID }

func (StoreRaw) rawRecord() {}

// PetfinderPhoto holds one photo at every resolution Petfinder publishes.
type PetfinderPhoto struct {
	Small  string `json:"small"`
	Medium string `json:"medium"`
	Large  string `json:"large"`
	Full   string `json:"full"`
}

// PetfinderRaw is an animal object from the Petfinder v2 API.
type PetfinderRaw struct {
	ID             int64  `json:"id"`
	OrganizationID string `json:"organization_id"`
	URL            string `json:"url"`
	Species        string `json:"species"`
	Breeds         struct {
		Primary   *string `json:"primary"`
		Secondary *string `json:"secondary"`
		Mixed     bool    `json:"mixed"`
		Unknown   bool    `json:"unknown"`
	} `json:"breeds"`
	Colors struct {
		Primary   *string `json:"primary"`
		Secondary *string `json:"secondary"`
	} `json:"colors"`
	Age        string `json:"age"`
	Gender     string `json:"gender"`
	Size       string `json:"size"`
	Attributes struct {
		SpayedNeutered FlexBool `json:"spayed_neutered"`
		HouseTrained   FlexBool `json:"house_trained"`
		SpecialNeeds   FlexBool `json:"special_needs"`
		ShotsCurrent   FlexBool `json:"shots_current"`
	} `json:"attributes"`
	Environment struct {
		Children FlexBool `json:"children"`
		Dogs     FlexBool `json:"dogs"`
		Cats     FlexBool `json:"cats"`
	} `json:"environment"`
	Tags            []string         `json:"tags"`
	Name            string           `json:"name"`
	Description     *string          `json:"description"`
	Photos          []PetfinderPhoto `json:"photos"`
	Status          string           `json:"status"`
	StatusChangedAt string           `json:"status_changed_at"`
	PublishedAt     string           `json:"published_at"`
	Contact         struct {
		Address struct {
			City     string `json:"city"`
			State    string `json:"state"`
			Postcode string `json:"postcode"`
		} `json:"address"`
	} `json:"contact"`
}

// Kind implements RawRecord.
func (PetfinderRaw) Kind() SourceKind { return SourcePetfinder }

// NativeID implements RawRecord.
func (r PetfinderRaw) NativeID() string { return strconv.FormatInt(r.ID, 10) }

func (PetfinderRaw) rawRecord() {}

// ResourceRef identifies a JSON:API resource by type and id.
type ResourceRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// Relationship is a JSON:API relationship. Data may be a single ref or a list on the wire.
type Relationship struct {
	Data []ResourceRef `json:"data"`
}

// UnmarshalJSON accepts both the to-one and to-many encodings.
func (r *Relationship) UnmarshalJSON(data []byte) error {
	var wire struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("decode relationship: %w", err)
	}
	body := bytes.TrimSpace(wire.Data)
	switch {
	case len(body) == 0 || bytes.Equal(body, []byte("null")):
		r.Data = nil
	case body[0] == '[':
		if err := json.Unmarshal(body, &r.Data); err != nil {
			return fmt.Errorf("decode relationship list: %w", err)
		}
	default:
		var one ResourceRef
		if err := json.Unmarshal(body, &one); err != nil {
			return fmt.Errorf("decode relationship ref: %w", err)
		}
		r.Data = []ResourceRef{one}
	}
	return nil
}

// IncludedResource is an entry of the JSON:API "included" array.
type IncludedResource struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Attributes json.RawMessage `json:"attributes"`
}

// SideTable indexes included resources by type and id.
type SideTable map[ResourceRef]IncludedResource

// NewSideTable builds a SideTable from an "included" array.
func NewSideTable(included []IncludedResource) SideTable {
	table := make(SideTable, len(included))
	for _, res := range included {
		table[ResourceRef{Type: res.Type, ID: res.ID}] = res
	}
	return table
}

// RescueGroupsAnimal is the attributes object of a RescueGroups v5 animal.
type RescueGroupsAnimal struct {
	Name                  string   `json:"name"`
	BreedPrimary          string   `json:"breedPrimary"`
	BreedSecondary        string   `json:"breedSecondary"`
	IsBreedMixed          FlexBool `json:"isBreedMixed"`
	AgeGroup              string   `json:"ageGroup"`
	SizeGroup             string   `json:"sizeGroup"`
	Sex                   string   `json:"sex"`
	DescriptionText       string   `json:"descriptionText"`
	IsKidsOk              FlexBool `json:"isKidsOk"`
	IsDogsOk              FlexBool `json:"isDogsOk"`
	IsCatsOk              FlexBool `json:"isCatsOk"`
	IsHousetrained        FlexBool `json:"isHousetrained"`
	IsSpecialNeeds        FlexBool `json:"isSpecialNeeds"`
	IsAltered             FlexBool `json:"isAltered"`
	IsCurrentVaccinations FlexBool `json:"isCurrentVaccinations"`
	EnergyLevel           string   `json:"energyLevel"`
	ColorDetails          string   `json:"colorDetails"`
	URL                   string   `json:"url"`
	PictureThumbnailURL   string   `json:"pictureThumbnailUrl"`
	AvailableDate         string   `json:"availableDate"`
	CreatedDate           string   `json:"createdDate"`
	UpdatedDate           string   `json:"updatedDate"`
}

// RescueGroupsRaw is one animal resource plus the side table its relationships point into.
type RescueGroupsRaw struct {
	ID            string                  `json:"id"`
	Attributes    RescueGroupsAnimal      `json:"attributes"`
	Relationships map[string]Relationship `json:"relationships"`
	Included      SideTable               `json:"-"`
}

// Kind implements RawRecord.
func (RescueGroupsRaw) Kind() SourceKind { return SourceRescueGroups }

// NativeID implements RawRecord.
func (r RescueGroupsRaw) NativeID() string { return r.ID }

func (RescueGroupsRaw) rawRecord() {}

// FlexBool decodes the many ways providers spell a yes/no flag.
type FlexBool animal.Tri

// Tri returns the tri-state value.
func (b FlexBool) Tri() animal.Tri { return animal.Tri(b) }

// UnmarshalJSON accepts booleans, strings, numbers and null.
func (b *FlexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*b = FlexBool(animal.TriUnknown)
		return nil
	}
	switch data[0] {
	case 't', 'f':
		var v bool
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("decode flag: %w", err)
		}
		*b = FlexBool(animal.TriFromBool(v))
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode flag: %w", err)
		}
		*b = FlexBool(ParseFlag(s))
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("decode flag: %w", err)
		}
		*b = FlexBool(animal.TriFromBool(n != 0))
	}
	return nil
}

// ParseFlag maps a textual flag. Anything unrecognised is unknown, never false.
func ParseFlag(s string) animal.Tri {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "t", "1":
		return animal.TriTrue
	case "no", "n", "false", "f", "0":
		return animal.TriFalse
	default:
		return animal.TriUnknown
	}
}
