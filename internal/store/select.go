package store

import (
	"cmp"
	"slices"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
)

var matcher = formatter.New(formatter.Config{})

// Select filters, orders and paginates rows for stores without a query engine.
// Rows are ordered by visibility score descending, then natural key.
func Select(rows []formatter.StoreRaw, filter animal.Filter, page animal.Page) QueryResult {
	matched := make([]formatter.StoreRaw, 0, len(rows))
	for _, row := range rows {
		if filter.Matches(matcher.Normalize(row)) {
			matched = append(matched, row)
		}
	}
	slices.SortStableFunc(matched, func(a, b formatter.StoreRaw) int {
		if c := cmp.Compare(score(b), score(a)); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Provider, b.Provider); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	total := len(matched)
	start := min(max(page.Offset, 0), total)
	end := total
	if page.Limit > 0 {
		end = min(start+page.Limit, total)
	}
	return QueryResult{Records: matched[start:end], Total: total}
}

func score(r formatter.StoreRaw) float64 {
	if r.VisibilityScore == nil {
		return 0
	}
	return *r.VisibilityScore
}
