// Package ingest implements the batch sync that crawls every provider into the
// persisted store, refreshes what it sees and expires what it no longer sees.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/formatter"
	"github.com/JakeFAU/rescue-radar/internal/metrics"
	"github.com/JakeFAU/rescue-radar/internal/provider"
	"github.com/JakeFAU/rescue-radar/internal/scoring"
	"github.com/JakeFAU/rescue-radar/internal/store"
)

// SweepProvider is the SyncRun provider label used for the stale sweep.
const SweepProvider = "sweep"

// ErrSyncFailed is returned when no provider pass completed.
var ErrSyncFailed = errors.New("every provider pass failed")

// Publisher announces finished syncs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Config controls a sync.
type Config struct {
	// MaxConcurrency bounds how many provider passes run at once.
	MaxConcurrency    int           `mapstructure:"max_concurrency"`
	MaxPagesPerFilter int           `mapstructure:"max_pages_per_filter"`
	PageSize          int           `mapstructure:"page_size"`
	StaleAfter        time.Duration `mapstructure:"stale_after"`
	MaxRuntime        time.Duration `mapstructure:"max_runtime"`
	// MaxWait is the rate limiter budget per provider request.
	MaxWait time.Duration `mapstructure:"max_wait"`
	// MaxConsecutiveFailures aborts a pass after that many failed filters in a row.
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
	RecentWindow           time.Duration `mapstructure:"recent_window"`
	ArchivePrefix          string        `mapstructure:"archive_prefix"`
	Topic                  string        `mapstructure:"topic"`
}

// DefaultConfig returns the sync defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:         2,
		MaxPagesPerFilter:      10,
		PageSize:               100,
		StaleAfter:             30 * 24 * time.Hour,
		MaxRuntime:             30 * time.Minute,
		MaxWait:                2 * time.Minute,
		MaxConsecutiveFailures: 3,
		RecentWindow:           7 * 24 * time.Hour,
		ArchivePrefix:          "sync",
		Topic:                  "sync-completed",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = d.MaxConcurrency
	}
	if c.MaxPagesPerFilter <= 0 {
		c.MaxPagesPerFilter = d.MaxPagesPerFilter
	}
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = d.StaleAfter
	}
	if c.MaxRuntime <= 0 {
		c.MaxRuntime = d.MaxRuntime
	}
	if c.MaxWait <= 0 {
		c.MaxWait = d.MaxWait
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = d.MaxConsecutiveFailures
	}
	return c
}

// Deps are the collaborators of a Pipeline. Blobs and Publisher are optional.
type Deps struct {
	Animals   store.AnimalRepository
	Runs      store.SyncRunRepository
	Providers []provider.Client
	Formatter *formatter.Formatter
	Scorer    *scoring.Scorer
	Clock     animal.Clock
	IDs       animal.IDGenerator
	Blobs     store.BlobStore
	Publisher Publisher
	Logger    *zap.Logger
}

// Summary describes one completed sync.
type Summary struct {
	StartedAt     time.Time            `json:"started_at"`
	FinishedAt    time.Time            `json:"finished_at"`
	Status        animal.SyncRunStatus `json:"status"`
	Added         int                  `json:"added"`
	Updated       int                  `json:"updated"`
	Removed       int                  `json:"removed"`
	WriteFailures int                  `json:"write_failures"`
	Runs          []animal.SyncRun     `json:"runs"`
}

// Pipeline runs syncs. A single Pipeline may run several syncs in sequence;
// callers that need single-flight use the dispatcher.
type Pipeline struct {
	cfg  Config
	deps Deps
	// filters builds the crawl plan for a run; tests replace it.
	filters func(now time.Time) []DiversityFilter
}

// New validates deps and creates a Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Animals == nil:
		return nil, errors.New("ingest: animal repository is required")
	case deps.Runs == nil:
		return nil, errors.New("ingest: sync run repository is required")
	case deps.Formatter == nil || deps.Scorer == nil:
		return nil, errors.New("ingest: formatter and scorer are required")
	case deps.Clock == nil || deps.IDs == nil:
		return nil, errors.New("ingest: clock and id generator are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		filters: func(now time.Time) []DiversityFilter {
			return DefaultFilters(now, cfg.RecentWindow)
		},
	}, nil
}

// RunSync crawls every provider and sweeps stale records. It ignores the
// caller's cancellation but never runs longer than MaxRuntime. The returned
// Summary is always populated; the error is ErrSyncFailed when no pass completed.
func (p *Pipeline) RunSync(ctx context.Context) (Summary, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.MaxRuntime)
	defer cancel()

	metrics.SetSyncInProgress(true)
	defer metrics.SetSyncInProgress(false)

	runStart := p.deps.Clock.Now().UTC()
	logger := p.deps.Logger.With(zap.Time("run_start", runStart))
	logger.Info("sync started", zap.Int("providers", len(p.deps.Providers)))

	passes := p.runPasses(ctx, runStart)

	summary := Summary{StartedAt: runStart}
	anyCompleted := false
	for _, res := range passes {
		summary.Runs = append(summary.Runs, res.run)
		summary.Added += res.run.DogsAdded
		summary.Updated += res.run.DogsUpdated
		summary.WriteFailures += res.writeFailures
		if res.run.Status == animal.SyncCompleted {
			anyCompleted = true
		}
	}

	sweep := p.sweep(ctx, runStart, anyCompleted)
	summary.Runs = append(summary.Runs, sweep)
	summary.Removed = sweep.DogsRemoved
	summary.FinishedAt = p.deps.Clock.Now().UTC()
	summary.Status = animal.SyncCompleted
	if !anyCompleted {
		summary.Status = animal.SyncFailed
	}

	p.publish(ctx, summary)
	logger.Info("sync finished",
		zap.String("status", string(summary.Status)),
		zap.Int("added", summary.Added),
		zap.Int("updated", summary.Updated),
		zap.Int("removed", summary.Removed),
		zap.Int("write_failures", summary.WriteFailures),
	)
	if !anyCompleted {
		return summary, ErrSyncFailed
	}
	return summary, nil
}

// runPasses runs one pass per provider on a bounded pool and returns the
// results in provider order.
func (p *Pipeline) runPasses(ctx context.Context, runStart time.Time) []passResult {
	results := make([]passResult, len(p.deps.Providers))
	if len(results) == 0 {
		return results
	}
	pool, err := ants.NewPool(p.cfg.MaxConcurrency)
	if err != nil {
		p.deps.Logger.Error("create sync pool failed, running passes inline", zap.Error(err))
		for i, client := range p.deps.Providers {
			results[i] = p.runPass(ctx, client, runStart)
		}
		return results
	}
	defer pool.Release()

	var wg sync.WaitGroup
	for i, client := range p.deps.Providers {
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			results[i] = p.runPass(ctx, client, runStart)
		}); err != nil {
			wg.Done()
			p.deps.Logger.Error("submit provider pass failed", zap.String("provider", client.Name()), zap.Error(err))
			results[i] = p.runPass(ctx, client, runStart)
		}
	}
	wg.Wait()
	return results
}

// sweep expires records not refreshed within StaleAfter. It is skipped when
// no pass completed, since then nothing was refreshed.
func (p *Pipeline) sweep(ctx context.Context, runStart time.Time, anyCompleted bool) animal.SyncRun {
	run := p.startRun(ctx, SweepProvider, runStart)
	cutoff := runStart.Add(-p.cfg.StaleAfter)
	run.FiltersApplied = []string{"last_updated<" + cutoff.Format(time.RFC3339)}

	switch {
	case !anyCompleted:
		run.Status = animal.SyncFailed
		run.ErrorMessage = "skipped: no provider pass completed"
	case ctx.Err() != nil:
		run.Status = animal.SyncFailed
		run.ErrorMessage = fmt.Sprintf("skipped: %v", ctx.Err())
	default:
		removed, err := p.deps.Animals.MarkStaleAsRemoved(ctx, cutoff)
		if err != nil {
			run.Status = animal.SyncFailed
			run.ErrorMessage = fmt.Sprintf("mark stale as removed: %v", err)
			p.deps.Logger.Error("stale sweep failed", zap.Error(err))
			break
		}
		run.Status = animal.SyncCompleted
		run.DogsRemoved = removed
		metrics.ObserveSyncRecords(SweepProvider, "removed", removed)
	}
	return p.finishRun(ctx, run)
}

func (p *Pipeline) startRun(ctx context.Context, providerName string, runStart time.Time) animal.SyncRun {
	id, err := p.deps.IDs.NewID()
	if err != nil {
		p.deps.Logger.Warn("generate sync run id failed", zap.Error(err))
		id = fmt.Sprintf("%s-%d", providerName, runStart.UnixNano())
	}
	run := animal.SyncRun{
		ID:             id,
		StartedAt:      p.deps.Clock.Now().UTC(),
		Provider:       providerName,
		FiltersApplied: []string{},
		Status:         animal.SyncInProgress,
	}
	wctx, cancel := writeContext(ctx)
	defer cancel()
	if err := p.deps.Runs.CreateSyncRun(wctx, run); err != nil {
		p.deps.Logger.Error("create sync run failed", zap.String("provider", providerName), zap.Error(err))
	}
	return run
}

// finishRun records the final state of run.
func (p *Pipeline) finishRun(ctx context.Context, run animal.SyncRun) animal.SyncRun {
	finished := p.deps.Clock.Now().UTC()
	run.FinishedAt = &finished

	wctx, cancel := writeContext(ctx)
	defer cancel()
	if err := p.deps.Runs.FinishSyncRun(wctx, run); err != nil {
		p.deps.Logger.Error("finish sync run failed", zap.String("run_id", run.ID), zap.Error(err))
	}
	metrics.ObserveSyncRun(run.Provider, string(run.Status))
	return run
}

func (p *Pipeline) publish(ctx context.Context, summary Summary) {
	if p.deps.Publisher == nil || p.cfg.Topic == "" {
		return
	}
	pctx, cancel := writeContext(ctx)
	defer cancel()
	id, err := p.deps.Publisher.Publish(pctx, p.cfg.Topic, summary)
	if err != nil {
		p.deps.Logger.Warn("publish sync summary failed", zap.Error(err))
		return
	}
	p.deps.Logger.Debug("sync summary published", zap.String("message_id", id))
}

// writeContext detaches audit writes from the run deadline so runs cut short
// by MaxRuntime are still recorded.
func writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
}
