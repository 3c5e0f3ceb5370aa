package ingest

import (
	"strconv"
	"strings"
	"time"

	"github.com/JakeFAU/rescue-radar/internal/animal"
)

// DiversityFilter is one facet of the catalog crawled during a provider pass.
// Providers cap results per query, so the pass slices the catalog several ways.
type DiversityFilter struct {
	Name   string
	Filter animal.Filter
}

// DefaultFilters returns the fixed crawl plan. The recency facet covers
// listings published within recent of now.
func DefaultFilters(now time.Time, recent time.Duration) []DiversityFilter {
	filters := []DiversityFilter{{Name: "all"}}
	for _, s := range []animal.Size{animal.SizeSmall, animal.SizeMedium, animal.SizeLarge, animal.SizeExtraLarge} {
		filters = append(filters, DiversityFilter{Name: "size:" + slug(string(s)), Filter: animal.Filter{Size: s}})
	}
	for _, a := range []animal.Age{animal.AgeBaby, animal.AgeYoung, animal.AgeAdult, animal.AgeSenior} {
		filters = append(filters, DiversityFilter{Name: "age:" + slug(string(a)), Filter: animal.Filter{Age: a}})
	}
	filters = append(filters, DiversityFilter{Name: "special_needs", Filter: animal.Filter{SpecialNeeds: true}})
	if recent > 0 {
		filters = append(filters, DiversityFilter{
			Name:   "recent:" + strconv.Itoa(int(recent.Hours()/24)) + "d",
			Filter: animal.Filter{PublishedSince: now.Add(-recent)},
		})
	}
	for i := range filters {
		filters[i].Filter.Status = animal.StatusAdoptable
	}
	return filters
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "_")
}
