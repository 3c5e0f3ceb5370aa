// Package formatter normalizes provider and store records into the canonical
// animal.Animal shape.
//
// Each source has its own raw type; Normalize dispatches on that type and
// never fails on missing optional fields. Missing breed, age, size, gender,
// city and state fall back to documented defaults, and tri-state flags keep
// absence distinct from false.
package formatter

import (
	"encoding/json"
	"strings"

	"github.com/JakeFAU/rescue-radar/internal/animal"
)

// Config controls source precedence.
type Config struct {
	// Priorities maps a source to its precedence; lower wins during dedup.
	Priorities map[SourceKind]int
}

// DefaultPriorities ranks the store above the live providers.
func DefaultPriorities() map[SourceKind]int {
	return map[SourceKind]int{
		SourceStore:        1,
		SourceRescueGroups: 2,
		SourcePetfinder:    3,
	}
}

// Formatter converts raw records into canonical animals. It is stateless and safe for concurrent use.
type Formatter struct {
	priorities map[SourceKind]int
}

// New creates a Formatter.
func New(cfg Config) *Formatter {
	prios := DefaultPriorities()
	for k, v := range cfg.Priorities {
		prios[k] = v
	}
	return &Formatter{priorities: prios}
}

// Priority returns the precedence of a source; unknown sources rank last.
func (f *Formatter) Priority(kind SourceKind) int {
	if p, ok := f.priorities[kind]; ok {
		return p
	}
	return len(f.priorities) + 1
}

// Normalize converts any raw record into the canonical form.
func (f *Formatter) Normalize(raw RawRecord) animal.Animal {
	switch r := raw.(type) {
	case StoreRaw:
		return f.fromStore(r)
	case *StoreRaw:
		return f.fromStore(*r)
	case PetfinderRaw:
		return f.fromPetfinder(r)
	case *PetfinderRaw:
		return f.fromPetfinder(*r)
	case RescueGroupsRaw:
		return f.fromRescueGroups(r)
	case *RescueGroupsRaw:
		return f.fromRescueGroups(*r)
	default:
		return withDefaults(animal.Animal{})
	}
}

func (f *Formatter) fromStore(r StoreRaw) animal.Animal {
	a := animal.Animal{
		ID:          animal.ID{Provider: strings.ToLower(r.Provider), NativeID: r.ID},
		Name:        CleanName(r.Name),
		Breed:       cleanBreed(r.BreedPrimary, r.BreedSecondary, r.BreedMixed != nil && *r.BreedMixed),
		Age:         ParseAge(r.Age),
		Size:        ParseSize(r.Size),
		Gender:      ParseGender(r.Gender),
		Photos:      storePhotos(r.Photos),
		Description: cleanDescription(derefString(r.Description)),
		Location: animal.Location{
			City:     CleanCity(r.City),
			State:    CleanState(r.State),
			Postcode: strings.TrimSpace(r.Postcode),
			Lat:      r.Latitude,
			Lon:      r.Longitude,
		},
		OrganizationID: r.OrganizationID,
		Attributes: animal.Attributes{
			HouseTrained:   animal.TriFromPtr(r.HouseTrained),
			SpecialNeeds:   animal.TriFromPtr(r.SpecialNeeds),
			SpayedNeutered: animal.TriFromPtr(r.SpayedNeutered),
			ShotsCurrent:   animal.TriFromPtr(r.ShotsCurrent),
		},
		Compatibility: animal.Compatibility{
			Children: animal.TriFromPtr(r.GoodWithChildren),
			Dogs:     animal.TriFromPtr(r.GoodWithDogs),
			Cats:     animal.TriFromPtr(r.GoodWithCats),
		},
		EnergyLevel: collapseSpaces(r.EnergyLevel),
		CoatColor:   collapseSpaces(r.CoatColor),
		ExternalURL: r.ExternalURL,
		Provenance: animal.Provenance{
			SourceProvider: strings.ToLower(r.Provider),
			SourceKind:     string(SourceStore),
			SourcePriority: f.Priority(SourceStore),
		},
		LastUpdated: r.LastUpdated.UTC(),
		Status:      ParseStatus(r.Status),
	}
	if r.VisibilityScore != nil {
		a.VisibilityScore = *r.VisibilityScore
	}
	if r.PublishedAt != nil {
		a.PublishedAt = r.PublishedAt.UTC()
	}
	return withDefaults(a)
}

func (f *Formatter) fromPetfinder(r PetfinderRaw) animal.Animal {
	breedMixed := r.Breeds.Mixed
	primary := derefString(r.Breeds.Primary)
	if r.Breeds.Unknown {
		primary = ""
	}
	a := animal.Animal{
		ID:          animal.ID{Provider: string(SourcePetfinder), NativeID: r.NativeID()},
		Name:        CleanName(r.Name),
		Breed:       cleanBreed(primary, derefString(r.Breeds.Secondary), breedMixed),
		Age:         ParseAge(r.Age),
		Size:        ParseSize(r.Size),
		Gender:      ParseGender(r.Gender),
		Photos:      petfinderPhotos(r.Photos),
		Description: cleanDescription(derefString(r.Description)),
		Location: animal.Location{
			City:     CleanCity(r.Contact.Address.City),
			State:    CleanState(r.Contact.Address.State),
			Postcode: strings.TrimSpace(r.Contact.Address.Postcode),
		},
		OrganizationID: r.OrganizationID,
		Attributes: animal.Attributes{
			HouseTrained:   r.Attributes.HouseTrained.Tri(),
			SpecialNeeds:   r.Attributes.SpecialNeeds.Tri(),
			SpayedNeutered: r.Attributes.SpayedNeutered.Tri(),
			ShotsCurrent:   r.Attributes.ShotsCurrent.Tri(),
		},
		Compatibility: animal.Compatibility{
			Children: r.Environment.Children.Tri(),
			Dogs:     r.Environment.Dogs.Tri(),
			Cats:     r.Environment.Cats.Tri(),
		},
		EnergyLevel: energyFromTags(r.Tags),
		CoatColor:   collapseSpaces(derefString(r.Colors.Primary)),
		ExternalURL: r.URL,
		Provenance: animal.Provenance{
			SourceProvider: string(SourcePetfinder),
			SourceKind:     string(SourcePetfinder),
			SourcePriority: f.Priority(SourcePetfinder),
		},
		PublishedAt: parseTime(r.PublishedAt),
		LastUpdated: parseTime(r.StatusChangedAt),
		Status:      ParseStatus(r.Status),
	}
	return withDefaults(a)
}

type rgOrg struct {
	City       string `json:"city"`
	State      string `json:"state"`
	Postalcode string `json:"postalcode"`
}

type rgLocation struct {
	City       string   `json:"city"`
	State      string   `json:"state"`
	Postalcode string   `json:"postalcode"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
}

type rgStatus struct {
	Name string `json:"name"`
}

func (f *Formatter) fromRescueGroups(r RescueGroupsRaw) animal.Animal {
	attrs := r.Attributes
	a := animal.Animal{
		ID:          animal.ID{Provider: string(SourceRescueGroups), NativeID: r.ID},
		Name:        CleanName(attrs.Name),
		Breed:       cleanBreed(attrs.BreedPrimary, attrs.BreedSecondary, attrs.IsBreedMixed.Tri().IsTrue()),
		Age:         ParseAge(attrs.AgeGroup),
		Size:        ParseSize(attrs.SizeGroup),
		Gender:      ParseGender(attrs.Sex),
		Photos:      rescueGroupsPhotos(r),
		Description: cleanDescription(attrs.DescriptionText),
		Attributes: animal.Attributes{
			HouseTrained:   attrs.IsHousetrained.Tri(),
			SpecialNeeds:   attrs.IsSpecialNeeds.Tri(),
			SpayedNeutered: attrs.IsAltered.Tri(),
			ShotsCurrent:   attrs.IsCurrentVaccinations.Tri(),
		},
		Compatibility: animal.Compatibility{
			Children: attrs.IsKidsOk.Tri(),
			Dogs:     attrs.IsDogsOk.Tri(),
			Cats:     attrs.IsCatsOk.Tri(),
		},
		EnergyLevel: collapseSpaces(attrs.EnergyLevel),
		CoatColor:   collapseSpaces(attrs.ColorDetails),
		ExternalURL: attrs.URL,
		Provenance: animal.Provenance{
			SourceProvider: string(SourceRescueGroups),
			SourceKind:     string(SourceRescueGroups),
			SourcePriority: f.Priority(SourceRescueGroups),
		},
		PublishedAt: parseTime(highest(attrs.AvailableDate, attrs.CreatedDate)),
		LastUpdated: parseTime(attrs.UpdatedDate),
		Status:      animal.StatusAdoptable,
	}

	var loc rgLocation
	if ref, ok := r.firstRef("locations"); ok && r.decodeIncluded(ref, &loc) {
		a.Location = animal.Location{
			City: CleanCity(loc.City), State: CleanState(loc.State),
			Postcode: strings.TrimSpace(loc.Postalcode), Lat: loc.Lat, Lon: loc.Lon,
		}
	}
	if ref, ok := r.firstRef("orgs"); ok {
		a.OrganizationID = ref.ID
		var org rgOrg
		if a.Location.City == "" && r.decodeIncluded(ref, &org) {
			a.Location = animal.Location{
				City: CleanCity(org.City), State: CleanState(org.State),
				Postcode: strings.TrimSpace(org.Postalcode),
			}
		}
	}
	var st rgStatus
	if ref, ok := r.firstRef("statuses"); ok && r.decodeIncluded(ref, &st) {
		a.Status = ParseStatus(st.Name)
	}
	return withDefaults(a)
}

func (r RescueGroupsRaw) firstRef(rel string) (ResourceRef, bool) {
	refs := r.Relationships[rel].Data
	if len(refs) == 0 {
		return ResourceRef{}, false
	}
	return refs[0], true
}

func (r RescueGroupsRaw) decodeIncluded(ref ResourceRef, out any) bool {
	res, ok := r.Included[ref]
	if !ok || len(res.Attributes) == 0 {
		return false
	}
	return json.Unmarshal(res.Attributes, out) == nil
}

func energyFromTags(tags []string) string {
	for _, tag := range tags {
		t := strings.ToLower(tag)
		switch {
		case strings.Contains(t, "high energy"), strings.Contains(t, "energetic"), strings.Contains(t, "very active"):
			return "High"
		case strings.Contains(t, "couch potato"), strings.Contains(t, "calm"), strings.Contains(t, "low energy"):
			return "Low"
		}
	}
	return ""
}

func withDefaults(a animal.Animal) animal.Animal {
	a.Species = animal.SpeciesDog
	if a.Name == "" {
		a.Name = animal.Unknown
	}
	if a.Breed.Primary == "" {
		a.Breed = animal.Breed{Primary: DefaultBreed, Mixed: true}
	}
	if a.Age == "" {
		a.Age = animal.AgeUnknown
	}
	if a.Size == "" {
		a.Size = animal.SizeUnknown
	}
	if a.Gender == "" {
		a.Gender = animal.GenderUnknown
	}
	if a.Location.City == "" {
		a.Location.City = animal.Unknown
	}
	if a.Location.State == "" {
		a.Location.State = animal.Unknown
	}
	if a.Photos == nil {
		a.Photos = []string{}
	}
	if a.Status == "" {
		a.Status = animal.StatusAdoptable
	}
	return a
}

// ToStoreRaw converts a canonical record into its persisted row.
func (f *Formatter) ToStoreRaw(a animal.Animal) StoreRaw {
	row := StoreRaw{
		Provider:         a.ID.Provider,
		ID:               a.ID.NativeID,
		Name:             a.Name,
		BreedPrimary:     a.Breed.Primary,
		BreedSecondary:   a.Breed.Secondary,
		BreedMixed:       &a.Breed.Mixed,
		Age:              string(a.Age),
		Size:             string(a.Size),
		Gender:           string(a.Gender),
		Photos:           append([]string{}, a.Photos...),
		City:             a.Location.City,
		State:            a.Location.State,
		Postcode:         a.Location.Postcode,
		Latitude:         a.Location.Lat,
		Longitude:        a.Location.Lon,
		OrganizationID:   a.OrganizationID,
		HouseTrained:     a.Attributes.HouseTrained.Ptr(),
		SpecialNeeds:     a.Attributes.SpecialNeeds.Ptr(),
		SpayedNeutered:   a.Attributes.SpayedNeutered.Ptr(),
		ShotsCurrent:     a.Attributes.ShotsCurrent.Ptr(),
		GoodWithChildren: a.Compatibility.Children.Ptr(),
		GoodWithDogs:     a.Compatibility.Dogs.Ptr(),
		GoodWithCats:     a.Compatibility.Cats.Ptr(),
		EnergyLevel:      a.EnergyLevel,
		CoatColor:        a.CoatColor,
		ExternalURL:      a.ExternalURL,
		LastUpdated:      a.LastUpdated.UTC(),
		Status:           string(a.Status),
	}
	if a.Description != "" {
		desc := a.Description
		row.Description = &desc
	}
	score := a.VisibilityScore
	row.VisibilityScore = &score
	if !a.PublishedAt.IsZero() {
		published := a.PublishedAt.UTC()
		row.PublishedAt = &published
	}
	return row
}
