package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rescue-radar/internal/animal"
	"github.com/JakeFAU/rescue-radar/internal/metrics"
	"github.com/JakeFAU/rescue-radar/internal/policy/ratelimit"
	"github.com/JakeFAU/rescue-radar/internal/provider"
	"github.com/JakeFAU/rescue-radar/internal/store"
)

type passResult struct {
	run           animal.SyncRun
	writeFailures int
}

// pass holds the per-provider state of one sync.
type pass struct {
	client   provider.Client
	runStart time.Time
	run      animal.SyncRun
	seen     map[string]struct{}
	failures int
	logger   *zap.Logger
}

// runPass crawls every diversity filter of one provider in order. A pass
// never returns an error; failures end up in its SyncRun.
func (p *Pipeline) runPass(ctx context.Context, client provider.Client, runStart time.Time) passResult {
	ps := &pass{
		client:   client,
		runStart: runStart,
		run:      p.startRun(ctx, client.Name(), runStart),
		seen:     make(map[string]struct{}),
		logger:   p.deps.Logger.With(zap.String("provider", client.Name())),
	}
	ps.logger.Info("provider pass started", zap.String("run_id", ps.run.ID))

	var (
		lastErr     error
		failed      int
		consecutive int
		aborted     bool
	)
	filters := p.filters(runStart)
	for _, f := range filters {
		if ctx.Err() != nil {
			aborted = true
			lastErr = fmt.Errorf("max runtime exceeded: %w", ctx.Err())
			break
		}
		ps.run.FiltersApplied = append(ps.run.FiltersApplied, f.Name)
		if err := p.crawlFilter(ctx, ps, f); err != nil {
			failed++
			consecutive++
			lastErr = err
			ps.logger.Warn("filter crawl failed", zap.String("filter", f.Name), zap.Error(err))
			if consecutive >= p.cfg.MaxConsecutiveFailures {
				aborted = true
				break
			}
			continue
		}
		consecutive = 0
	}

	ps.run.Status, ps.run.ErrorMessage = deriveFinalStatus(ctx, lastErr, failed, len(filters), aborted)
	metrics.ObserveSyncRecords(client.Name(), "added", ps.run.DogsAdded)
	metrics.ObserveSyncRecords(client.Name(), "updated", ps.run.DogsUpdated)
	metrics.ObserveSyncRecords(client.Name(), "failed", ps.failures)
	run := p.finishRun(ctx, ps.run)
	ps.logger.Info("provider pass finished",
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("pages", run.PagesFetched),
		zap.Int("added", run.DogsAdded),
		zap.Int("updated", run.DogsUpdated),
		zap.Int("write_failures", ps.failures),
	)
	return passResult{run: run, writeFailures: ps.failures}
}

// deriveFinalStatus maps how a pass ended to its SyncRun status.
func deriveFinalStatus(ctx context.Context, lastErr error, failed, total int, aborted bool) (animal.SyncRunStatus, string) {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		msg := "max runtime exceeded"
		if lastErr != nil {
			msg = lastErr.Error()
		}
		return animal.SyncFailed, msg
	case aborted:
		return animal.SyncFailed, fmt.Sprintf("aborted after repeated filter failures: %v", lastErr)
	case total > 0 && failed == total:
		return animal.SyncFailed, lastErr.Error()
	case lastErr != nil:
		return animal.SyncCompleted, fmt.Sprintf("%d of %d filters failed, last: %v", failed, total, lastErr)
	default:
		return animal.SyncCompleted, ""
	}
}

// crawlFilter pages through one filter until the provider runs out of pages
// or MaxPagesPerFilter is reached.
func (p *Pipeline) crawlFilter(ctx context.Context, ps *pass, f DiversityFilter) error {
	for page := 1; page <= p.cfg.MaxPagesPerFilter; page++ {
		res, err := ps.client.Search(ratelimit.WithMaxWait(ctx, p.cfg.MaxWait), provider.Query{
			Filter: f.Filter,
			Page:   page,
			Limit:  p.cfg.PageSize,
		})
		if err != nil {
			return fmt.Errorf("search %s page %d: %w", f.Name, page, err)
		}
		ps.run.PagesFetched++
		p.archive(ctx, ps, f, page, res.Raw)

		for _, rec := range res.Records {
			nativeID := rec.NativeID()
			if _, dup := ps.seen[nativeID]; dup {
				continue
			}
			ps.seen[nativeID] = struct{}{}
			p.upsert(ctx, ps, p.deps.Formatter.Normalize(rec))
		}
		if !res.HasMore() {
			return nil
		}
	}
	return nil
}

func (p *Pipeline) upsert(ctx context.Context, ps *pass, a animal.Animal) {
	a.LastUpdated = ps.runStart
	a = p.deps.Scorer.Apply(a)
	result, err := p.deps.Animals.Upsert(ctx, p.deps.Formatter.ToStoreRaw(a))
	if err != nil {
		ps.failures++
		ps.logger.Warn("upsert failed", zap.String("animal_id", a.ID.String()), zap.Error(err))
		return
	}
	switch result {
	case store.Inserted:
		ps.run.DogsAdded++
	case store.Updated:
		ps.run.DogsUpdated++
	}
}

// archive stores the raw page when a blob store is configured. Failures are
// logged only.
func (p *Pipeline) archive(ctx context.Context, ps *pass, f DiversityFilter, page int, raw []byte) {
	if p.deps.Blobs == nil || len(raw) == 0 {
		return
	}
	name := path.Join(
		strings.Trim(p.cfg.ArchivePrefix, "/"),
		ps.runStart.Format("2006-01-02"),
		ps.run.ID,
		ps.client.Name(),
		fmt.Sprintf("%s-%03d.json", strings.ReplaceAll(f.Name, ":", "_"), page),
	)
	if _, err := p.deps.Blobs.PutObject(ctx, name, "application/json", bytes.NewReader(raw)); err != nil {
		ps.logger.Warn("archive page failed", zap.String("path", name), zap.Error(err))
	}
}
