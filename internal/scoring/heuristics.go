package scoring

import (
	"strings"

	"github.com/JakeFAU/rescue-radar/internal/animal"
)

// popularBreeds is a fixed allow-list of breeds adopters seek out.
var popularBreeds = map[string]struct{}{
	"labrador retriever":            {},
	"golden retriever":              {},
	"german shepherd dog":           {},
	"french bulldog":                {},
	"bulldog":                       {},
	"poodle":                        {},
	"beagle":                        {},
	"rottweiler":                    {},
	"german shorthaired pointer":    {},
	"dachshund":                     {},
	"pembroke welsh corgi":          {},
	"australian shepherd":           {},
	"yorkshire terrier":             {},
	"boxer":                         {},
	"cavalier king charles spaniel": {},
	"doberman pinscher":             {},
	"great dane":                    {},
	"miniature schnauzer":           {},
	"siberian husky":                {},
	"bernese mountain dog":          {},
	"shih tzu":                      {},
	"boston terrier":                {},
	"pomeranian":                    {},
	"havanese":                      {},
	"cocker spaniel":                {},
	"border collie":                 {},
	"chihuahua":                     {},
	"maltese":                       {},
}

var breedAliases = map[string]string{
	"lab":                     "labrador retriever",
	"labrador":                "labrador retriever",
	"golden":                  "golden retriever",
	"german shepherd":         "german shepherd dog",
	"english bulldog":         "bulldog",
	"corgi":                   "pembroke welsh corgi",
	"husky":                   "siberian husky",
	"doberman":                "doberman pinscher",
	"yorkie":                  "yorkshire terrier",
	"standard poodle":         "poodle",
	"miniature poodle":        "poodle",
	"toy poodle":              "poodle",
	"cavalier":                "cavalier king charles spaniel",
	"american cocker spaniel": "cocker spaniel",
}

// IsPopularBreed reports whether a breed name is on the popular allow-list.
func IsPopularBreed(breed string) bool {
	key := strings.ToLower(strings.Join(strings.Fields(breed), " "))
	if alias, ok := breedAliases[key]; ok {
		key = alias
	}
	_, ok := popularBreeds[key]
	return ok
}

var medicalKeywords = []string{
	"heartworm",
	"medication",
	"surgery",
	"amputee",
	"tripod",
	"three-legged",
	"three legged",
	"blind",
	"deaf",
	"diabet",
	"seizure",
	"epilep",
	"arthritis",
	"chronic",
	"special diet",
	"allerg",
	"hospice",
	"incontinen",
}

// HasMedicalKeyword reports whether a description mentions a medical condition.
func HasMedicalKeyword(description string) bool {
	if description == "" {
		return false
	}
	d := strings.ToLower(description)
	for _, kw := range medicalKeywords {
		if strings.Contains(d, kw) {
			return true
		}
	}
	return false
}

var darkCoatWords = []string{"black", "dark", "charcoal", "brindle"}

// IsDarkCoat reports whether a coat color is dark.
func IsDarkCoat(color string) bool {
	c := strings.ToLower(color)
	for _, w := range darkCoatWords {
		if strings.Contains(c, w) {
			return true
		}
	}
	return false
}

// metroCities lists large metro areas; listings elsewhere count as small-town or rural.
var metroCities = toSet(
	"new york", "los angeles", "chicago", "houston", "phoenix",
	"philadelphia", "san antonio", "san diego", "dallas", "austin",
	"jacksonville", "fort worth", "san jose", "columbus", "charlotte",
	"indianapolis", "san francisco", "seattle", "denver", "oklahoma city",
	"nashville", "washington", "el paso", "las vegas", "boston",
	"detroit", "portland", "louisville", "memphis", "baltimore",
	"milwaukee", "albuquerque", "tucson", "fresno", "sacramento",
	"mesa", "kansas city", "atlanta", "omaha", "colorado springs",
	"raleigh", "miami", "virginia beach", "long beach", "oakland",
	"minneapolis", "tulsa", "bakersfield", "tampa", "arlington",
	"new orleans", "cleveland", "pittsburgh", "st. louis", "saint louis",
	"orlando", "cincinnati", "salt lake city", "brooklyn",
)

func toSet(items ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

// IsRural reports whether a location sits outside the metro list. Unknown cities are not rural.
func IsRural(loc animal.Location) bool {
	city := strings.ToLower(strings.TrimSpace(loc.City))
	if city == "" || city == strings.ToLower(animal.Unknown) {
		return false
	}
	_, metro := metroCities[city]
	return !metro
}
