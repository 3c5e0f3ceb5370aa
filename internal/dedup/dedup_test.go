package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rescue-radar/internal/animal"
)

func dog(provider, id, name, state string, priority int) animal.Animal {
	return animal.Animal{
		ID:         animal.ID{Provider: provider, NativeID: id},
		Name:       name,
		Breed:      animal.Breed{Primary: "Labrador Retriever"},
		Age:        animal.AgeAdult,
		Gender:     animal.GenderMale,
		Location:   animal.Location{City: "Austin", State: state},
		Provenance: animal.Provenance{SourceProvider: provider, SourcePriority: priority},
	}
}

func ids(records []animal.Animal) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID.String()
	}
	return out
}

func TestMergeKeepsLowerPriority(t *testing.T) {
	t.Parallel()

	d := New(DefaultConfig())
	store := dog("petfinder", "1", "Buddy", "TX", 1)
	store.Description = "from the store"
	live := dog("rescuegroups", "77", "BUDDY", "TX", 2)
	live.Description = "from the provider"

	got := d.Merge([]animal.Animal{store}, []animal.Animal{live})
	require.Len(t, got, 1)
	assert.Equal(t, "from the store", got[0].Description)

	got = d.Merge([]animal.Animal{live}, []animal.Animal{store})
	require.Len(t, got, 1)
	assert.Equal(t, "from the store", got[0].Description)
}

func TestMergeTieKeepsFirst(t *testing.T) {
	t.Parallel()

	d := New(DefaultConfig())
	a := dog("rescuegroups", "1", "Buddy", "TX", 2)
	b := dog("rescuegroups", "2", "Buddy", "TX", 2)
	got := d.Merge([]animal.Animal{a}, []animal.Animal{b})
	assert.Equal(t, []string{"rescuegroups:1"}, ids(got))
}

func TestMergeIsIdempotent(t *testing.T) {
	t.Parallel()

	d := New(DefaultConfig())
	existing := []animal.Animal{
		dog("petfinder", "1", "Buddy", "TX", 1),
		dog("petfinder", "2", "Luna", "CA", 1),
	}
	incoming := []animal.Animal{
		dog("rescuegroups", "9", "buddy", "TX", 2),
		dog("rescuegroups", "10", "Max", "TX", 2),
		dog("petfinder", "2", "Luna", "CA", 3),
	}

	once := d.Merge(existing, incoming)
	twice := d.Merge(once, nil)
	assert.Equal(t, once, twice)
	assert.Equal(t, []string{"petfinder:1", "petfinder:2", "rescuegroups:10"}, ids(once))
}

func TestMatchRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cfg    Config
		mutate func(left, right *animal.Animal)
		want   bool
	}{
		{name: "same name and state", cfg: DefaultConfig(), mutate: func(_, _ *animal.Animal) {}, want: true},
		{
			name: "diacritics and punctuation fold", cfg: DefaultConfig(),
			mutate: func(_, r *animal.Animal) { r.Name = " Rósie! " },
			want:   true,
		},
		{name: "different name", cfg: DefaultConfig(), mutate: func(_, r *animal.Animal) { r.Name = "Rosa" }, want: false},
		{
			name: "other state but breed and age", cfg: DefaultConfig(),
			mutate: func(_, r *animal.Animal) { r.Location.State = "OK"; r.Gender = animal.GenderFemale },
			want:   true,
		},
		{
			name: "other state and breed", cfg: DefaultConfig(),
			mutate: func(_, r *animal.Animal) { r.Location.State = "OK"; r.Breed.Primary = "Beagle" },
			want:   false,
		},
		{
			name: "unknown state never matches", cfg: Config{MatchOnState: true},
			mutate: func(l, r *animal.Animal) {
				l.Location.State = animal.Unknown
				r.Location.State = animal.Unknown
			},
			want: false,
		},
		{
			name: "state rule disabled", cfg: Config{MatchOnBreed: true},
			mutate: func(_, r *animal.Animal) { r.Age = animal.AgeUnknown; r.Gender = animal.GenderUnknown },
			want:   false,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			left := dog("a", "1", "Rosie", "TX", 1)
			right := dog("b", "2", "Rosie", "TX", 2)
			tc.mutate(&left, &right)
			assert.Equal(t, tc.want, New(tc.cfg).Same(left, right))
		})
	}
}

func TestSameIDAlwaysMatches(t *testing.T) {
	t.Parallel()

	a := dog("petfinder", "5", "Pepper", "TX", 1)
	b := dog("petfinder", "5", "Pepper Jr", "NM", 3)
	assert.True(t, New(Config{}).Same(a, b))
}

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "chloe", NormalizeName("Chloé"))
	assert.Equal(t, "mrwiggles2", NormalizeName("Mr. Wiggles 2"))
	assert.Empty(t, NormalizeName("Unknown"))
	assert.Empty(t, NormalizeName("   "))
}
