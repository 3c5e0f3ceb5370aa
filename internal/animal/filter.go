package animal

import (
	"strings"
	"time"
)

// Filter is a normalized search filter. Zero-valued fields do not constrain.
type Filter struct {
	Location         Location
	Breed            string
	Age              Age
	Size             Size
	Gender           Gender
	GoodWithChildren bool
	GoodWithDogs     bool
	GoodWithCats     bool
	SpecialNeeds     bool
	// Status defaults to adoptable when empty.
	Status Status
	// PublishedSince, when non-zero, keeps only listings published on or after it.
	PublishedSince time.Time
}

// Page bounds a store query.
type Page struct {
	Limit  int
	Offset int
}

// EffectiveStatus returns the status the filter selects.
func (f Filter) EffectiveStatus() Status {
	if f.Status == "" {
		return StatusAdoptable
	}
	return f.Status
}

// HasLocation reports whether any location constraint is set.
func (f Filter) HasLocation() bool {
	return f.Location.Postcode != "" || f.Location.State != "" || f.Location.City != ""
}

// Matches applies the filter to a record. Stores that cannot push filters
// down to a query engine use it to filter in memory.
func (f Filter) Matches(a Animal) bool {
	if a.Status != f.EffectiveStatus() {
		return false
	}
	if f.Location.Postcode != "" {
		if a.Location.Postcode != f.Location.Postcode {
			return false
		}
	} else {
		if f.Location.State != "" && !strings.EqualFold(a.Location.State, f.Location.State) {
			return false
		}
		if f.Location.City != "" && !strings.EqualFold(a.Location.City, f.Location.City) {
			return false
		}
	}
	if f.Breed != "" &&
		!strings.EqualFold(a.Breed.Primary, f.Breed) &&
		!strings.EqualFold(a.Breed.Secondary, f.Breed) {
		return false
	}
	if f.Age != "" && a.Age != f.Age {
		return false
	}
	if f.Size != "" && a.Size != f.Size {
		return false
	}
	if f.Gender != "" && a.Gender != f.Gender {
		return false
	}
	if f.GoodWithChildren && !a.Compatibility.Children.IsTrue() {
		return false
	}
	if f.GoodWithDogs && !a.Compatibility.Dogs.IsTrue() {
		return false
	}
	if f.GoodWithCats && !a.Compatibility.Cats.IsTrue() {
		return false
	}
	if f.SpecialNeeds && !a.Attributes.SpecialNeeds.IsTrue() {
		return false
	}
	if !f.PublishedSince.IsZero() && a.PublishedAt.Before(f.PublishedSince) {
		return false
	}
	return true
}
