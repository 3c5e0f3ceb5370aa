package resolver

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
)

var postcodePattern = regexp.MustCompile(`^(\d{5})(?:-\d{4})?$`)

// Free text that names no place. Forwarding it to a provider would either
// fail or silently search somewhere arbitrary.
var ambiguousLocations = map[string]struct{}{
	"any":           {},
	"anywhere":      {},
	"around here":   {},
	"close by":      {},
	"countryside":   {},
	"everywhere":    {},
	"here":          {},
	"local":         {},
	"near me":       {},
	"nearby":        {},
	"rural":         {},
	"somewhere":     {},
	"the country":   {},
	"united states": {},
	"us":            {},
	"usa":           {},
	"wherever":      {},
	"you choose":    {},
	"you decide":    {},
	"you pick":      {},
}

// Words that make any phrase containing them a non-place ("rural texas").
var ambiguousWords = map[string]struct{}{
	"anyplace":    {},
	"anywhere":    {},
	"countryside": {},
	"everywhere":  {},
	"near":        {},
	"nearby":      {},
	"rural":       {},
	"somewhere":   {},
	"wherever":    {},
}

// State codes that are also English words. Without a comma they only count
// as a state when written in capitals ("Portland OR").
var wordCodes = map[string]struct{}{
	"HI": {}, "IN": {}, "ME": {}, "OH": {}, "OK": {}, "OR": {}, "PA": {},
}

const ambiguousReason = "ambiguous location, give a zip code or city and state"

var stateNames = map[string]string{
	"AL": "alabama", "AK": "alaska", "AZ": "arizona", "AR": "arkansas", "CA": "california",
	"CO": "colorado", "CT": "connecticut", "DE": "delaware", "DC": "district of columbia",
	"FL": "florida", "GA": "georgia", "HI": "hawaii", "ID": "idaho", "IL": "illinois",
	"IN": "indiana", "IA": "iowa", "KS": "kansas", "KY": "kentucky", "LA": "louisiana",
	"ME": "maine", "MD": "maryland", "MA": "massachusetts", "MI": "michigan", "MN": "minnesota",
	"MS": "mississippi", "MO": "missouri", "MT": "montana", "NE": "nebraska", "NV": "nevada",
	"NH": "new hampshire", "NJ": "new jersey", "NM": "new mexico", "NY": "new york",
	"NC": "north carolina", "ND": "north dakota", "OH": "ohio", "OK": "oklahoma", "OR": "oregon",
	"PA": "pennsylvania", "PR": "puerto rico", "RI": "rhode island", "SC": "south carolina",
	"SD": "south dakota", "TN": "tennessee", "TX": "texas", "UT": "utah", "VT": "vermont",
	"VA": "virginia", "WA": "washington", "WV": "west virginia", "WI": "wisconsin", "WY": "wyoming",
}

var stateCodes = func() map[string]string {
	out := make(map[string]string, len(stateNames))
	for code, name := range stateNames {
		out[name] = code
	}
	return out
}()

// ParseLocation normalizes a postal code, "City, ST", "city st", a state on
// its own, or any of those with the state spelled out. An empty string means
// no location filter. Everything else is rejected with an *InvalidInputError.
func ParseLocation(raw string) (animal.Location, error) {
	text := strings.Join(strings.Fields(raw), " ")
	if text == "" {
		return animal.Location{}, nil
	}
	invalid := func(reason string) error {
		return &InvalidInputError{Field: "location", Value: raw, Reason: reason}
	}

	if isAmbiguousPhrase(text) {
		return animal.Location{}, invalid(ambiguousReason)
	}
	if m := postcodePattern.FindStringSubmatch(text); m != nil {
		return animal.Location{Postcode: m[1]}, nil
	}

	if city, state, found := strings.Cut(text, ","); found {
		if strings.Contains(state, ",") {
			return animal.Location{}, invalid("expected one comma between city and state")
		}
		code, ok := lookupState(state)
		if !ok {
			return animal.Location{}, invalid("unknown state")
		}
		return cityState(city, code, invalid)
	}

	// Without a comma a single ambiguous word anywhere voids the phrase.
	if hasAmbiguousWord(text) {
		return animal.Location{}, invalid(ambiguousReason)
	}
	if code, ok := lookupBareState(text); ok {
		return animal.Location{State: code}, nil
	}
	words := strings.Fields(text)
	// Try two-word state names ("new york") before single tokens.
	for n := min(3, len(words)-1); n >= 1; n-- {
		if code, ok := lookupBareState(strings.Join(words[len(words)-n:], " ")); ok {
			return cityState(strings.Join(words[:len(words)-n], " "), code, invalid)
		}
	}
	return animal.Location{}, invalid("expected a zip code or city and state")
}

func cityState(city, code string, invalid func(string) error) (animal.Location, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return animal.Location{State: code}, nil
	}
	if !hasLetter(city) {
		return animal.Location{}, invalid("city must contain letters")
	}
	if isAmbiguousPhrase(city) || onlyAmbiguousWords(city) {
		return animal.Location{}, invalid(ambiguousReason)
	}
	return animal.Location{City: formatter.CleanCity(city), State: code}, nil
}

func isAmbiguousPhrase(s string) bool {
	_, ok := ambiguousLocations[strings.ToLower(strings.Trim(s, ".!? "))]
	return ok
}

func ambiguousTokens(s string) (ambiguous, total int) {
	for _, w := range strings.Fields(strings.ToLower(s)) {
		total++
		if _, ok := ambiguousWords[strings.Trim(w, ".!?,")]; ok {
			ambiguous++
		}
	}
	return ambiguous, total
}

func hasAmbiguousWord(s string) bool {
	n, _ := ambiguousTokens(s)
	return n > 0
}

// onlyAmbiguousWords keeps real places such as "Rural Hall, NC" while
// rejecting "Somewhere, TX".
func onlyAmbiguousWords(s string) bool {
	n, total := ambiguousTokens(s)
	return total > 0 && n == total
}

// lookupBareState is lookupState for text without a comma, where a
// lowercase "or" or "me" is a word rather than a state.
func lookupBareState(s string) (string, bool) {
	s = strings.TrimSpace(strings.Trim(s, "."))
	if _, word := wordCodes[strings.ToUpper(s)]; word && s != strings.ToUpper(s) {
		return "", false
	}
	return lookupState(s)
}

func lookupState(s string) (string, bool) {
	s = strings.TrimSpace(strings.Trim(s, "."))
	if len(s) == 2 {
		code := strings.ToUpper(s)
		_, ok := stateNames[code]
		return code, ok
	}
	code, ok := stateCodes[strings.ToLower(strings.Join(strings.Fields(s), " "))]
	return code, ok
}

func hasLetter(s string) bool {
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return true
		}
	}
	return false
}
