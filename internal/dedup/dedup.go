// Package dedup collapses records that describe the same dog seen through
// more than one source.
//
// Two records are the same dog when their normalized names match and either
// their states match, or their primary breeds match together with their age or
// gender. The record from the more trusted source (lower SourcePriority) is
// kept whole; fields are never merged across records.
package dedup

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/rescue-radar/internal/animal"
)

// Config selects which secondary signals confirm a name match.
type Config struct {
	// MatchOnState accepts a name match when both records list the same state.
	MatchOnState bool `mapstructure:"match_on_state"`
	// MatchOnBreed accepts a name match when primary breed and age or gender agree.
	MatchOnBreed bool `mapstructure:"match_on_breed"`
}

// DefaultConfig enables both rules.
func DefaultConfig() Config {
	return Config{MatchOnState: true, MatchOnBreed: true}
}

// Deduplicator merges record lists.
type Deduplicator struct {
	cfg Config
}

// New creates a Deduplicator.
func New(cfg Config) *Deduplicator {
	return &Deduplicator{cfg: cfg}
}

// Merge returns existing followed by incoming with duplicates collapsed.
// The surviving record keeps the position of the first record of its group.
// Merge(Merge(a, b), nil) equals Merge(a, b).
func (d *Deduplicator) Merge(existing, incoming []animal.Animal) []animal.Animal {
	all := make([]animal.Animal, 0, len(existing)+len(incoming))
	all = append(all, existing...)
	all = append(all, incoming...)

	keys := make([]matchKey, len(all))
	for i := range all {
		keys[i] = newMatchKey(all[i])
	}

	// Replacing a survivor can expose a match with an earlier survivor, so
	// repeat until no pass changes anything.
	for {
		out, outKeys, changed := d.pass(all, keys)
		all, keys = out, outKeys
		if !changed {
			return all
		}
	}
}

func (d *Deduplicator) pass(records []animal.Animal, keys []matchKey) ([]animal.Animal, []matchKey, bool) {
	out := make([]animal.Animal, 0, len(records))
	outKeys := make([]matchKey, 0, len(records))
	changed := false
	for i, rec := range records {
		merged := false
		for j := range out {
			if !d.matches(outKeys[j], keys[i]) {
				continue
			}
			merged = true
			changed = true
			if rec.Provenance.SourcePriority < out[j].Provenance.SourcePriority {
				out[j] = rec
				outKeys[j] = keys[i]
			}
			break
		}
		if !merged {
			out = append(out, rec)
			outKeys = append(outKeys, keys[i])
		}
	}
	return out, outKeys, changed
}

// Same reports whether two records describe the same dog.
func (d *Deduplicator) Same(a, b animal.Animal) bool {
	return d.matches(newMatchKey(a), newMatchKey(b))
}

type matchKey struct {
	id     animal.ID
	name   string
	state  string
	breed  string
	age    string
	gender string
}

func newMatchKey(a animal.Animal) matchKey {
	return matchKey{
		id:     a.ID,
		name:   NormalizeName(a.Name),
		state:  known(a.Location.State),
		breed:  known(a.Breed.Primary),
		age:    known(string(a.Age)),
		gender: known(string(a.Gender)),
	}
}

func (d *Deduplicator) matches(a, b matchKey) bool {
	if a.id.NativeID != "" && a.id == b.id {
		return true
	}
	if a.name == "" || a.name != b.name {
		return false
	}
	if d.cfg.MatchOnState && equalKnown(a.state, b.state) {
		return true
	}
	if d.cfg.MatchOnBreed && equalKnown(a.breed, b.breed) &&
		(equalKnown(a.age, b.age) || equalKnown(a.gender, b.gender)) {
		return true
	}
	return false
}

func known(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "unknown" {
		return ""
	}
	return s
}

func equalKnown(a, b string) bool {
	return a != "" && a == b
}

// NormalizeName folds case and diacritics and drops everything but letters and digits.
func NormalizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.String() == "unknown" {
		return ""
	}
	return b.String()
}
