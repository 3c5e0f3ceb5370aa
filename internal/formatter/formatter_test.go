package formatter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rescue-radar/internal/animal"
)

const petfinderJSON = `{
  "id": 120,
  "organization_id": "TX514",
  "url": "https://www.petfinder.com/dog/rex-120/tx/austin/org-tx514/",
  "species": "Dog",
  "breeds": {"primary": "Labrador Retriever", "secondary": null, "mixed": false, "unknown": false},
  "colors": {"primary": "Black", "secondary": null},
  "age": "Senior",
  "gender": "Male",
  "size": "Large",
  "attributes": {"spayed_neutered": true, "house_trained": false, "special_needs": null, "shots_current": true},
  "environment": {"children": false, "dogs": true, "cats": null},
  "tags": ["Friendly", "Energetic"],
  "name": "  REX   the dog ",
  "description": "Rex loves walks &amp; naps...",
  "photos": [
    {"small": "s1", "medium": "m1", "large": "l1", "full": "f1"},
    {"small": "s2", "medium": "m2", "large": "", "full": ""},
    {"small": "", "medium": "", "large": "", "full": ""}
  ],
  "status": "adoptable",
  "status_changed_at": "2024-03-01T10:00:00+0000",
  "published_at": "2024-02-01T10:00:00+0000",
  "contact": {"address": {"city": "austin", "state": "tx", "postcode": "78701"}}
}`

func TestNormalizePetfinder(t *testing.T) {
	t.Parallel()

	var raw PetfinderRaw
	require.NoError(t, json.Unmarshal([]byte(petfinderJSON), &raw))

	got := New(Config{}).Normalize(raw)

	want := animal.Animal{
		ID:          animal.ID{Provider: "petfinder", NativeID: "120"},
		Name:        "Rex The Dog",
		Species:     animal.SpeciesDog,
		Breed:       animal.Breed{Primary: "Labrador Retriever"},
		Age:         animal.AgeSenior,
		Size:        animal.SizeLarge,
		Gender:      animal.GenderMale,
		Photos:      []string{"f1", "m2"},
		Description: "Rex loves walks & naps...",
		Location:    animal.Location{City: "Austin", State: "TX", Postcode: "78701"},
		Attributes: animal.Attributes{
			HouseTrained:   animal.TriFalse,
			SpecialNeeds:   animal.TriUnknown,
			SpayedNeutered: animal.TriTrue,
			ShotsCurrent:   animal.TriTrue,
		},
		Compatibility: animal.Compatibility{
			Children: animal.TriFalse,
			Dogs:     animal.TriTrue,
			Cats:     animal.TriUnknown,
		},
		OrganizationID: "TX514",
		EnergyLevel:    "High",
		CoatColor:      "Black",
		ExternalURL:    "https://www.petfinder.com/dog/rex-120/tx/austin/org-tx514/",
		Provenance:     animal.Provenance{SourceProvider: "petfinder", SourceKind: "petfinder", SourcePriority: 3},
		PublishedAt:    time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
		LastUpdated:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Status:         animal.StatusAdoptable,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

const rescueGroupsJSON = `{
  "data": [{
    "type": "animals",
    "id": "9001",
    "attributes": {
      "name": "Buddy",
      "breedPrimary": "Plott Hound",
      "breedSecondary": "",
      "isBreedMixed": "No",
      "ageGroup": "Adult",
      "sizeGroup": "X-Large",
      "sex": "Male",
      "descriptionText": "Buddy takes heartworm medication.",
      "isKidsOk": "Yes",
      "isCatsOk": "No",
      "energyLevel": "High",
      "colorDetails": "Brindle",
      "url": "https://rescuegroups.org/a/9001",
      "availableDate": "2024-01-05",
      "updatedDate": "2024-03-02T08:00:00Z"
    },
    "relationships": {
      "pictures": {"data": [{"type": "pictures", "id": "p2"}, {"type": "pictures", "id": "p1"}, {"type": "pictures", "id": "missing"}]},
      "orgs": {"data": [{"type": "orgs", "id": "o7"}]},
      "statuses": {"data": {"type": "statuses", "id": "1"}}
    }
  }],
  "included": [
    {"type": "pictures", "id": "p1", "attributes": {"order": 1, "original": {"url": "p1-orig"}, "large": {"url": "p1-large"}, "small": {"url": "p1-small"}}},
    {"type": "pictures", "id": "p2", "attributes": {"order": 2, "large": {"url": "p2-large"}, "small": {"url": "p2-small"}}},
    {"type": "orgs", "id": "o7", "attributes": {"name": "Hill Country Rescue", "city": "kerrville", "state": "TX", "postalcode": "78028"}},
    {"type": "statuses", "id": "1", "attributes": {"name": "Available"}}
  ]
}`

func decodeRescueGroups(t *testing.T, body string) RescueGroupsRaw {
	t.Helper()
	var doc struct {
		Data     []RescueGroupsRaw  `json:"data"`
		Included []IncludedResource `json:"included"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	require.Len(t, doc.Data, 1)
	raw := doc.Data[0]
	raw.Included = NewSideTable(doc.Included)
	return raw
}

func TestNormalizeRescueGroupsFollowsSideTable(t *testing.T) {
	t.Parallel()

	got := New(Config{}).Normalize(decodeRescueGroups(t, rescueGroupsJSON))

	assert.Equal(t, animal.ID{Provider: "rescuegroups", NativeID: "9001"}, got.ID)
	assert.Equal(t, []string{"p1-orig", "p2-large"}, got.Photos)
	assert.Equal(t, animal.SizeExtraLarge, got.Size)
	assert.Equal(t, animal.Breed{Primary: "Plott Hound"}, got.Breed)
	assert.Equal(t, animal.Location{City: "Kerrville", State: "TX", Postcode: "78028"}, got.Location)
	assert.Equal(t, "o7", got.OrganizationID)
	assert.Equal(t, animal.TriTrue, got.Compatibility.Children)
	assert.Equal(t, animal.TriFalse, got.Compatibility.Cats)
	assert.Equal(t, animal.TriUnknown, got.Compatibility.Dogs)
	assert.Equal(t, animal.StatusAdoptable, got.Status)
	assert.Equal(t, 2, got.Provenance.SourcePriority)
	assert.Equal(t, time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC), got.PublishedAt)
}

func TestNormalizeAppliesDefaults(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	for _, raw := range []RawRecord{StoreRaw{Provider: "petfinder", ID: "1"}, PetfinderRaw{ID: 2}, RescueGroupsRaw{ID: "3"}} {
		got := f.Normalize(raw)
		assert.Equal(t, DefaultBreed, got.Breed.Primary, raw.Kind())
		assert.True(t, got.Breed.Mixed)
		assert.Equal(t, animal.AgeUnknown, got.Age)
		assert.Equal(t, animal.SizeUnknown, got.Size)
		assert.Equal(t, animal.GenderUnknown, got.Gender)
		assert.Equal(t, animal.Unknown, got.Location.City)
		assert.Equal(t, animal.Unknown, got.Location.State)
		assert.NotNil(t, got.Photos)
		assert.Empty(t, got.Photos)
		assert.Equal(t, animal.TriUnknown, got.Compatibility.Children)
		assert.Equal(t, animal.StatusAdoptable, got.Status)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	var raw PetfinderRaw
	require.NoError(t, json.Unmarshal([]byte(petfinderJSON), &raw))
	original := f.Normalize(raw)
	original.VisibilityScore = 42.5

	back := f.Normalize(f.ToStoreRaw(original))

	want := original
	want.Provenance = animal.Provenance{SourceProvider: "petfinder", SourceKind: "store", SourcePriority: 1}
	if diff := cmp.Diff(want, back); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWithPlaceholder(t *testing.T) {
	t.Parallel()

	a := WithPlaceholder(animal.Animal{Photos: []string{}})
	assert.Equal(t, []string{PlaceholderPhotoURL}, a.Photos)

	b := WithPlaceholder(animal.Animal{Photos: []string{"x"}})
	assert.Equal(t, []string{"x"}, b.Photos)
}

func TestFlexBool(t *testing.T) {
	t.Parallel()

	tests := map[string]animal.Tri{
		`true`:    animal.TriTrue,
		`false`:   animal.TriFalse,
		`null`:    animal.TriUnknown,
		`"Yes"`:   animal.TriTrue,
		`"n"`:     animal.TriFalse,
		`""`:      animal.TriUnknown,
		`"maybe"`: animal.TriUnknown,
		`1`:       animal.TriTrue,
		`0`:       animal.TriFalse,
	}
	for input, want := range tests {
		var b FlexBool
		require.NoError(t, json.Unmarshal([]byte(input), &b), input)
		assert.Equal(t, want, b.Tri(), input)
	}
}

func TestParseVocabulary(t *testing.T) {
	t.Parallel()

	assert.Equal(t, animal.AgeBaby, ParseAge("puppy"))
	assert.Equal(t, animal.AgeUnknown, ParseAge("ancient"))
	assert.Equal(t, animal.SizeExtraLarge, ParseSize("xl"))
	assert.Equal(t, animal.GenderFemale, ParseGender("F"))
	assert.Equal(t, animal.StatusPending, ParseStatus("Hold"))
	assert.Equal(t, animal.StatusAdopted, ParseStatus("adopted"))
}
