package resolver

import (
	"strconv"
	"strings"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
)

// Criteria is a caller's search request before normalization.
type Criteria struct {
	Location         string
	Breed            string
	Age              string
	Size             string
	Gender           string
	GoodWithChildren bool
	GoodWithDogs     bool
	GoodWithCats     bool
	SpecialNeeds     bool
	// Explain asks for a score breakdown per returned dog.
	Explain bool
}

// Pagination selects a 1-based page of results.
type Pagination struct {
	Page     int
	PageSize int
}

// window is a validated pagination window.
type window struct {
	offset int
	size   int
}

func (w window) end() int { return w.offset + w.size }

func (r *Resolver) pageWindow(p Pagination) (window, error) {
	if p.Page < 0 {
		return window{}, &InvalidInputError{Field: "page", Value: strconv.Itoa(p.Page), Reason: "must be positive"}
	}
	if p.PageSize < 0 {
		return window{}, &InvalidInputError{Field: "page_size", Value: strconv.Itoa(p.PageSize), Reason: "must be positive"}
	}
	page := max(p.Page, 1)
	size := p.PageSize
	if size == 0 {
		size = r.cfg.DefaultPageSize
	}
	size = min(size, r.cfg.MaxPageSize)
	return window{offset: (page - 1) * size, size: size}, nil
}

// filterFromCriteria validates everything that needs no I/O. Breed is resolved later.
func filterFromCriteria(c Criteria) (animal.Filter, error) {
	loc, err := ParseLocation(c.Location)
	if err != nil {
		return animal.Filter{}, err
	}
	f := animal.Filter{
		Location:         loc,
		GoodWithChildren: c.GoodWithChildren,
		GoodWithDogs:     c.GoodWithDogs,
		GoodWithCats:     c.GoodWithCats,
		SpecialNeeds:     c.SpecialNeeds,
		Status:           animal.StatusAdoptable,
	}
	if v, ok := vocabValue(c.Age); ok {
		if f.Age = formatter.ParseAge(v); f.Age == animal.AgeUnknown {
			return animal.Filter{}, &InvalidInputError{Field: "age", Value: c.Age, Reason: "expected baby, young, adult or senior"}
		}
	}
	if v, ok := vocabValue(c.Size); ok {
		if f.Size = formatter.ParseSize(v); f.Size == animal.SizeUnknown {
			return animal.Filter{}, &InvalidInputError{Field: "size", Value: c.Size, Reason: "expected small, medium, large or extra large"}
		}
	}
	if v, ok := vocabValue(c.Gender); ok {
		if f.Gender = formatter.ParseGender(v); f.Gender == animal.GenderUnknown {
			return animal.Filter{}, &InvalidInputError{Field: "gender", Value: c.Gender, Reason: "expected male or female"}
		}
	}
	return f, nil
}

// vocabValue reports whether s constrains anything; "any" and blanks do not.
func vocabValue(s string) (string, bool) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "any", "either", "no preference":
		return "", false
	}
	return s, true
}
