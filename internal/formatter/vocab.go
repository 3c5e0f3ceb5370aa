package formatter

import (
	"html"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/JakeFAU/rescue-radar/internal/animal"
)

// DefaultBreed is used when no breed is published.
const DefaultBreed = "Mixed Breed"

// ParseAge maps provider and user spellings of an age group.
func ParseAge(s string) animal.Age {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "baby", "puppy":
		return animal.AgeBaby
	case "young", "juvenile", "adolescent":
		return animal.AgeYoung
	case "adult":
		return animal.AgeAdult
	case "senior", "elderly", "older":
		return animal.AgeSenior
	default:
		return animal.AgeUnknown
	}
}

// ParseSize maps provider and user spellings of a size group.
func ParseSize(s string) animal.Size {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "small", "s":
		return animal.SizeSmall
	case "medium", "m", "med":
		return animal.SizeMedium
	case "large", "l":
		return animal.SizeLarge
	case "extra large", "extra-large", "xlarge", "x-large", "xl":
		return animal.SizeExtraLarge
	default:
		return animal.SizeUnknown
	}
}

// ParseGender maps provider and user spellings of sex.
func ParseGender(s string) animal.Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m":
		return animal.GenderMale
	case "female", "f":
		return animal.GenderFemale
	default:
		return animal.GenderUnknown
	}
}

// ParseStatus maps provider listing states. Unrecognised values are adoptable,
// since providers only list animals they consider available.
func ParseStatus(s string) animal.Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "hold", "on hold", "adoption pending":
		return animal.StatusPending
	case "adopted", "found":
		return animal.StatusAdopted
	case "removed", "deleted":
		return animal.StatusRemoved
	default:
		return animal.StatusAdoptable
	}
}

// CleanName trims, collapses whitespace and title-cases a display name.
func CleanName(s string) string {
	s = collapseSpaces(html.UnescapeString(s))
	if s == "" {
		return ""
	}
	return cases.Title(language.English).String(s)
}

// CleanCity title-cases a city, defaulting to Unknown.
func CleanCity(s string) string {
	s = collapseSpaces(s)
	if s == "" {
		return animal.Unknown
	}
	return cases.Title(language.English).String(s)
}

// CleanState upper-cases a state code, defaulting to Unknown.
func CleanState(s string) string {
	s = collapseSpaces(s)
	if s == "" {
		return animal.Unknown
	}
	if len(s) == 2 {
		return strings.ToUpper(s)
	}
	return cases.Title(language.English).String(s)
}

func cleanDescription(s string) string {
	return collapseSpaces(html.UnescapeString(s))
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cleanBreed(primary, secondary string, mixed bool) animal.Breed {
	p := collapseSpaces(primary)
	s := collapseSpaces(secondary)
	if p == "" {
		p, s = s, ""
	}
	if p == "" {
		return animal.Breed{Primary: DefaultBreed, Mixed: true}
	}
	if strings.EqualFold(s, p) {
		s = ""
	}
	lp := strings.ToLower(p)
	if lp == "mixed breed" || lp == "mix" || lp == "mixed" {
		p = DefaultBreed
		mixed = true
	}
	return animal.Breed{Primary: p, Secondary: s, Mixed: mixed || s != ""}
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
