// Package resolver answers searches and lookups by consulting the persisted
// store first and the external providers only when the store cannot fill the
// requested page.
//
// Provider results are normalized, scored and deduplicated against the store
// results before the merged set is sorted by visibility score and paginated.
// Only invalid input and exhaustion of every source reach the caller as
// errors; individual source failures are logged and skipped.
package resolver

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/dedup"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
	"github.com/JakeFAU/rescue-radar/internal/metrics"
	"github.com/JakeFAU/rescue-radar/internal/policy/ratelimit"
	"github.com/JakeFAU/rescue-radar/internal/provider"
	"github.com/JakeFAU/rescue-radar/internal/scoring"
	"github.com/JakeFAU/rescue-radar/internal/store"
)

// SourceStore names the persisted store in Result.SourcesUsed.
const SourceStore = "store"

// Search outcomes reported to metrics.
const (
	outcomeStore     = "store"
	outcomeWaterfall = "waterfall"
	outcomeExhausted = "exhausted"
	outcomeInvalid   = "invalid"
	outcomeCanceled  = "canceled"
)

// Config tunes the waterfall.
type Config struct {
	// MinStoreResults short-circuits the providers once the store alone has this many matches.
	MinStoreResults int `mapstructure:"min_store_results"`
	// MaxConcurrency bounds simultaneous provider calls in one search.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// ProviderPageSize is the number of records requested from each provider.
	ProviderPageSize int `mapstructure:"provider_page_size"`
	// MaxWait is the longest a search waits on a provider rate limiter.
	MaxWait         time.Duration `mapstructure:"max_wait"`
	DefaultPageSize int           `mapstructure:"default_page_size"`
	MaxPageSize     int           `mapstructure:"max_page_size"`
	// SummaryChars truncates descriptions in search results.
	SummaryChars   int           `mapstructure:"summary_chars"`
	BreedThreshold float64       `mapstructure:"breed_threshold"`
	BreedCacheTTL  time.Duration `mapstructure:"breed_cache_ttl"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinStoreResults:  3,
		MaxConcurrency:   2,
		ProviderPageSize: 50,
		MaxWait:          2 * time.Second,
		DefaultPageSize:  10,
		MaxPageSize:      50,
		SummaryChars:     200,
		BreedThreshold:   DefaultBreedThreshold,
		BreedCacheTTL:    DefaultBreedCacheTTL,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinStoreResults <= 0 {
		c.MinStoreResults = d.MinStoreResults
	}
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	if c.ProviderPageSize <= 0 {
		c.ProviderPageSize = d.ProviderPageSize
	}
	if c.MaxWait <= 0 {
		c.MaxWait = d.MaxWait
	}
	if c.DefaultPageSize <= 0 {
		c.DefaultPageSize = d.DefaultPageSize
	}
	if c.MaxPageSize <= 0 {
		c.MaxPageSize = d.MaxPageSize
	}
	if c.SummaryChars <= 0 {
		c.SummaryChars = d.SummaryChars
	}
	return c
}

// Deps are the collaborators a Resolver needs.
type Deps struct {
	Store     store.AnimalRepository
	Providers []provider.Client
	Formatter *formatter.Formatter
	Scorer    *scoring.Scorer
	Dedup     *dedup.Deduplicator
	Clock     animal.Clock
	Logger    *zap.Logger
}

// Result is one page of ranked dogs.
type Result struct {
	Animals []animal.Animal `json:"animals"`
	// Total counts every match across the consulted sources, not just this page.
	Total       int      `json:"total"`
	SourcesUsed []string `json:"sources_used"`
	// Explanations holds score breakdowns keyed by animal id when requested.
	Explanations map[string]scoring.Breakdown `json:"explanations,omitempty"`
}

// Resolver runs the store-then-providers waterfall.
type Resolver struct {
	cfg       Config
	store     store.AnimalRepository
	providers []provider.Client
	formatter *formatter.Formatter
	scorer    *scoring.Scorer
	dedup     *dedup.Deduplicator
	breeds    *BreedMatcher
	logger    *zap.Logger
}

// New creates a Resolver. Providers are consulted in formatter priority order.
func New(cfg Config, deps Deps) (*Resolver, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Formatter == nil || deps.Scorer == nil || deps.Dedup == nil {
		return nil, fmt.Errorf("formatter, scorer and dedup are required")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	providers := slices.Clone(deps.Providers)
	slices.SortStableFunc(providers, func(a, b provider.Client) int {
		return cmp.Compare(deps.Formatter.Priority(a.Kind()), deps.Formatter.Priority(b.Kind()))
	})
	sources := make([]BreedSource, len(providers))
	for i, p := range providers {
		sources[i] = p
	}

	return &Resolver{
		cfg:       cfg,
		store:     deps.Store,
		providers: providers,
		formatter: deps.Formatter,
		scorer:    deps.Scorer,
		dedup:     deps.Dedup,
		breeds:    NewBreedMatcher(sources, cfg.BreedThreshold, cfg.BreedCacheTTL, deps.Clock, logger.Named("breeds")),
		logger:    logger,
	}, nil
}

// Breeds exposes the breed matcher.
func (r *Resolver) Breeds() *BreedMatcher {
	return r.breeds
}

// Search returns one page of dogs matching c, sorted by descending visibility score.
func (r *Resolver) Search(ctx context.Context, c Criteria, p Pagination) (Result, error) {
	win, err := r.pageWindow(p)
	if err != nil {
		metrics.ObserveSearch(outcomeInvalid, nil)
		return Result{}, err
	}
	filter, err := filterFromCriteria(c)
	if err != nil {
		metrics.ObserveSearch(outcomeInvalid, nil)
		return Result{}, err
	}
	// The store is consulted before any provider I/O, so the breed is first
	// resolved against the vocabulary already in memory.
	if c.Breed != "" {
		filter.Breed = r.breeds.Cached(c.Breed)
	}

	var fails failures
	stored, storeTotal, err := r.queryStore(ctx, filter, win)
	if err != nil && ctx.Err() != nil {
		metrics.ObserveSearch(outcomeCanceled, nil)
		return Result{}, ctx.Err()
	}
	if err == nil && r.storeSuffices(storeTotal, win) {
		return r.storeOnly(stored, storeTotal, win, c.Explain), nil
	}

	if c.Breed != "" {
		if breed := r.breeds.Match(ratelimit.WithMaxWait(ctx, r.cfg.MaxWait), c.Breed); breed != filter.Breed {
			filter.Breed = breed
			stored, storeTotal, err = r.queryStore(ctx, filter, win)
			if err != nil && ctx.Err() != nil {
				metrics.ObserveSearch(outcomeCanceled, nil)
				return Result{}, ctx.Err()
			}
			if err == nil && r.storeSuffices(storeTotal, win) {
				return r.storeOnly(stored, storeTotal, win, c.Explain), nil
			}
		}
	}

	sources := make([]string, 0, 1+len(r.providers))
	if err != nil {
		r.logger.Warn("store query failed, falling through to providers", zap.Error(err))
		fails.storeFail()
	} else {
		sources = append(sources, SourceStore)
	}

	merged := stored
	for _, pr := range r.searchProviders(ctx, filter) {
		if ctx.Err() != nil {
			metrics.ObserveSearch(outcomeCanceled, sources)
			return Result{}, ctx.Err()
		}
		if pr.err != nil {
			r.logger.Warn("provider search failed",
				zap.String("provider", pr.name),
				zap.Bool("rate_limited", errors.Is(pr.err, provider.ErrRateLimited)),
				zap.Error(pr.err))
			fails.providerFail(pr.err)
			continue
		}
		fails.providerOK()
		sources = append(sources, pr.name)
		merged = r.dedup.Merge(merged, pr.animals)
	}

	if len(merged) == 0 && fails.exhausted() {
		metrics.ObserveSearch(outcomeExhausted, sources)
		return Result{}, fails.err()
	}

	slices.SortStableFunc(merged, func(a, b animal.Animal) int {
		return cmp.Compare(b.VisibilityScore, a.VisibilityScore)
	})
	res := r.page(merged, len(merged), win.offset, win.size, c.Explain)
	res.SourcesUsed = sources
	metrics.ObserveSearch(outcomeWaterfall, sources)
	return res, nil
}

func (r *Resolver) storeSuffices(total int, win window) bool {
	return total >= win.end() || total >= r.cfg.MinStoreResults
}

func (r *Resolver) storeOnly(stored []animal.Animal, total int, win window, explain bool) Result {
	res := r.page(stored, total, win.offset, win.size, explain)
	res.SourcesUsed = []string{SourceStore}
	metrics.ObserveSearch(outcomeStore, res.SourcesUsed)
	return res
}

// queryStore loads every store match up to the end of the requested window.
// The store returns rows already ranked.
func (r *Resolver) queryStore(ctx context.Context, filter animal.Filter, win window) ([]animal.Animal, int, error) {
	res, err := r.store.Query(ctx, filter, animal.Page{Limit: win.end()})
	if err != nil {
		return nil, 0, err
	}
	out := make([]animal.Animal, 0, len(res.Records))
	for _, row := range res.Records {
		out = append(out, r.fromStore(row))
	}
	return out, res.Total, nil
}

// fromStore normalizes a row, scoring it when ingestion never did.
func (r *Resolver) fromStore(row formatter.StoreRaw) animal.Animal {
	a := r.formatter.Normalize(row)
	if row.VisibilityScore == nil {
		a = r.scorer.Apply(a)
	}
	return a
}

type providerResult struct {
	name    string
	animals []animal.Animal
	err     error
}

// searchProviders fans out to every provider with bounded concurrency and
// returns their results in priority order.
func (r *Resolver) searchProviders(ctx context.Context, filter animal.Filter) []providerResult {
	results := make([]providerResult, len(r.providers))
	// Providers search by radius around the location and use their own breed
	// vocabularies, so only the remaining facets are checked locally.
	local := filter
	local.Location = animal.Location{}
	local.Breed = ""

	var g errgroup.Group
	g.SetLimit(r.cfg.MaxConcurrency)
	for i, p := range r.providers {
		g.Go(func() error {
			results[i] = providerResult{name: p.Name()}
			page, err := p.Search(ratelimit.WithMaxWait(ctx, r.cfg.MaxWait), provider.Query{
				Filter: filter,
				Page:   1,
				Limit:  r.cfg.ProviderPageSize,
			})
			if err != nil {
				results[i].err = err
				return nil
			}
			animals := make([]animal.Animal, 0, len(page.Records))
			for _, raw := range page.Records {
				a := r.scorer.Apply(r.formatter.Normalize(raw))
				if local.Matches(a) {
					animals = append(animals, a)
				}
			}
			results[i].animals = animals
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// page cuts [offset, offset+size) out of ranked and prepares it for callers.
func (r *Resolver) page(ranked []animal.Animal, total, offset, size int, explain bool) Result {
	start := min(max(offset, 0), len(ranked))
	end := min(start+size, len(ranked))
	res := Result{Animals: make([]animal.Animal, 0, end-start), Total: total}
	if explain {
		res.Explanations = make(map[string]scoring.Breakdown, end-start)
	}
	for _, a := range ranked[start:end] {
		if explain {
			res.Explanations[a.ID.String()] = r.scorer.Breakdown(a)
		}
		a.Description = Summarize(a.Description, r.cfg.SummaryChars)
		res.Animals = append(res.Animals, formatter.WithPlaceholder(a))
	}
	return res
}

// GetByID looks a dog up by "provider:nativeID" or a bare native id, trying
// the store before the providers. The full description is returned.
func (r *Resolver) GetByID(ctx context.Context, rawID string) (animal.Animal, error) {
	id, err := animal.ParseID(rawID)
	if err != nil {
		return animal.Animal{}, &InvalidInputError{Field: "id", Value: rawID, Reason: "expected provider:id"}
	}
	namespaces := r.namespaces(id)
	if len(namespaces) == 0 {
		return animal.Animal{}, ErrNotFound
	}

	var fails failures
	for _, ns := range namespaces {
		row, err := r.store.GetByNaturalKey(ctx, animal.ID{Provider: ns, NativeID: id.NativeID})
		switch {
		case err == nil:
			return formatter.WithPlaceholder(r.fromStore(row)), nil
		case errors.Is(err, store.ErrNotFound):
		case ctx.Err() != nil:
			return animal.Animal{}, ctx.Err()
		default:
			r.logger.Warn("store lookup failed", zap.String("id", rawID), zap.Error(err))
			fails.storeFail()
		}
	}

	for _, p := range r.providers {
		if !slices.Contains(namespaces, p.Name()) {
			continue
		}
		raw, err := p.GetByID(ratelimit.WithMaxWait(ctx, r.cfg.MaxWait), id.NativeID)
		switch {
		case err == nil:
			return formatter.WithPlaceholder(r.scorer.Apply(r.formatter.Normalize(raw))), nil
		case errors.Is(err, provider.ErrNotFound):
			fails.providerOK()
		case ctx.Err() != nil:
			return animal.Animal{}, ctx.Err()
		default:
			r.logger.Warn("provider lookup failed", zap.String("provider", p.Name()), zap.String("id", rawID), zap.Error(err))
			fails.providerFail(err)
		}
	}
	if fails.exhausted() {
		return animal.Animal{}, fails.err()
	}
	return animal.Animal{}, ErrNotFound
}

// namespaces lists the provider namespaces an id may live in.
func (r *Resolver) namespaces(id animal.ID) []string {
	if id.Provider != "" {
		// Records from a provider that is no longer configured may still be stored.
		return []string{id.Provider}
	}
	out := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p.Name())
	}
	return out
}

// Summarize shortens s to at most n runes, cutting at a word boundary.
func Summarize(s string, n int) string {
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	cut := string(runes[:n])
	if i := strings.LastIndexByte(cut, ' '); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;:.-") + "..."
}
