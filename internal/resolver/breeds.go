package resolver

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xrash/smetrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/rescue-radar/internal/animal"
)

// Breed matching defaults.
const (
	DefaultBreedThreshold = 0.6
	DefaultBreedCacheTTL  = 24 * time.Hour
)

const (
	// breedRetryBackoff spaces refreshes after one that loaded nothing.
	breedRetryBackoff = 5 * time.Minute
	breedFetchTimeout = 10 * time.Second
)

// BreedSource lists the breed names a provider understands.
type BreedSource interface {
	Name() string
	ListBreeds(ctx context.Context) ([]string, error)
}

var breedShorthand = map[string]string{
	"lab":             "Labrador Retriever",
	"labrador":        "Labrador Retriever",
	"golden":          "Golden Retriever",
	"pit":             "Pit Bull Terrier",
	"pitbull":         "Pit Bull Terrier",
	"pit bull":        "Pit Bull Terrier",
	"gsd":             "German Shepherd Dog",
	"german shepherd": "German Shepherd Dog",
	"aussie":          "Australian Shepherd",
	"doxie":           "Dachshund",
	"yorkie":          "Yorkshire Terrier",
	"staffy":          "Staffordshire Bull Terrier",
	"heeler":          "Australian Cattle Dog / Blue Heeler",
}

// BreedMatcher resolves free-text breeds against the union of the providers'
// vocabularies, refreshed at most once per TTL.
type BreedMatcher struct {
	sources   []BreedSource
	threshold float64
	ttl       time.Duration
	clock     animal.Clock
	logger    *zap.Logger
	refreshes singleflight.Group

	mu        sync.Mutex
	vocab     []string
	fetchedAt time.Time
	failedAt  time.Time
}

// NewBreedMatcher creates a BreedMatcher. Zero threshold and TTL select the defaults.
func NewBreedMatcher(sources []BreedSource, threshold float64, ttl time.Duration, clk animal.Clock, logger *zap.Logger) *BreedMatcher {
	if threshold <= 0 {
		threshold = DefaultBreedThreshold
	}
	if ttl <= 0 {
		ttl = DefaultBreedCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BreedMatcher{sources: sources, threshold: threshold, ttl: ttl, clock: clk, logger: logger}
}

// Match returns the vocabulary entry closest to input, or "" when nothing
// scores at least the threshold. It refreshes the vocabulary when stale.
// When no vocabulary could be loaded the cleaned input is returned.
func (m *BreedMatcher) Match(ctx context.Context, input string) string {
	query := strings.Join(strings.Fields(input), " ")
	if query == "" {
		return ""
	}
	return m.resolve(query, m.Vocabulary(ctx))
}

// Cached is Match without I/O: it uses whatever vocabulary is already
// loaded, however old.
func (m *BreedMatcher) Cached(input string) string {
	query := strings.Join(strings.Fields(input), " ")
	if query == "" {
		return ""
	}
	m.mu.Lock()
	vocab := m.vocab
	m.mu.Unlock()
	return m.resolve(query, vocab)
}

func (m *BreedMatcher) resolve(query string, vocab []string) string {
	lower := strings.ToLower(query)
	expanded, short := breedShorthand[lower]
	if len(vocab) == 0 {
		if short {
			return expanded
		}
		return query
	}
	if short {
		lower = strings.ToLower(expanded)
	}

	best, bestScore := "", 0.0
	for _, candidate := range vocab {
		lc := strings.ToLower(candidate)
		if lc == lower {
			return candidate
		}
		if s := smetrics.JaroWinkler(lower, lc, 0.7, 4); s > bestScore {
			best, bestScore = candidate, s
		}
	}
	if bestScore < m.threshold {
		m.logger.Debug("breed unmatched", zap.String("breed", query), zap.Float64("best_score", bestScore))
		return ""
	}
	return best
}

// Vocabulary returns the cached breed list, refreshing it when stale.
// Concurrent callers share one refresh and stop waiting for it when their
// context ends. A failed refresh keeps the previous list and is not retried
// for breedRetryBackoff.
func (m *BreedMatcher) Vocabulary(ctx context.Context) []string {
	vocab, fresh := m.cached()
	if fresh {
		return vocab
	}
	ch := m.refreshes.DoChan("vocabulary", func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), breedFetchTimeout)
		defer cancel()
		return m.refresh(fetchCtx), nil
	})
	select {
	case <-ctx.Done():
		return vocab
	case res := <-ch:
		if refreshed, ok := res.Val.([]string); ok {
			return refreshed
		}
		return vocab
	}
}

// cached reports the current list and whether it may be used without a refresh.
func (m *BreedMatcher) cached() ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	if len(m.vocab) > 0 && now.Sub(m.fetchedAt) < m.ttl {
		return m.vocab, true
	}
	if !m.failedAt.IsZero() && now.Sub(m.failedAt) < breedRetryBackoff {
		return m.vocab, true
	}
	return m.vocab, false
}

func (m *BreedMatcher) refresh(ctx context.Context) []string {
	seen := make(map[string]struct{})
	var merged []string
	for _, src := range m.sources {
		names, err := src.ListBreeds(ctx)
		if err != nil {
			m.logger.Warn("list breeds failed", zap.String("provider", src.Name()), zap.Error(err))
			continue
		}
		for _, name := range names {
			name = strings.Join(strings.Fields(name), " ")
			key := strings.ToLower(name)
			if name == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, name)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Now()
	if len(merged) == 0 {
		m.failedAt = now
		return m.vocab
	}
	slices.Sort(merged)
	m.vocab = merged
	m.fetchedAt = now
	m.failedAt = time.Time{}
	return m.vocab
}
