// Package dispatcher runs syncs one at a time, on demand and on a schedule.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rescue-radar/internal/ingest"
)

// ErrAlreadyRunning is returned by TriggerSync while a sync is in flight.
var ErrAlreadyRunning = errors.New("sync already running")

// Syncer runs one sync.
type Syncer interface {
	RunSync(ctx context.Context) (ingest.Summary, error)
}

// Status is a snapshot of the dispatcher state.
type Status struct {
	Running   bool
	LastRunAt time.Time
	Last      *ingest.Summary
	LastError string
}

// Dispatcher guarantees at most one sync runs at a time.
type Dispatcher struct {
	syncer   Syncer
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	status  Status
	wg      sync.WaitGroup
}

// New creates a Dispatcher. A positive interval makes Run trigger syncs
// periodically.
func New(syncer Syncer, interval time.Duration, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{syncer: syncer, interval: interval, logger: logger}
}

// TriggerSync starts a sync in the background and returns immediately. The
// sync outlives ctx.
func (d *Dispatcher) TriggerSync(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return ErrAlreadyRunning
	}
	d.running = true
	d.status.Running = true
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(context.WithoutCancel(ctx))
	}()
	return nil
}

// RunNow runs a sync in the calling goroutine.
func (d *Dispatcher) RunNow(ctx context.Context) (ingest.Summary, error) {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ingest.Summary{}, ErrAlreadyRunning
	}
	d.running = true
	d.status.Running = true
	d.mu.Unlock()
	return d.run(ctx)
}

func (d *Dispatcher) run(ctx context.Context) (ingest.Summary, error) {
	started := time.Now()
	summary, err := d.syncer.RunSync(ctx)
	if err != nil {
		d.logger.Error("sync failed", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
	} else {
		d.logger.Info("sync completed", zap.Duration("elapsed", time.Since(started)))
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.status = Status{LastRunAt: started, Last: &summary}
	if err != nil {
		d.status.LastError = err.Error()
	}
	return summary, err
}

// Status returns the current state.
func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Run blocks until ctx is done, triggering a sync every interval when one is
// configured. It waits for an in-flight sync before returning.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.wg.Wait()
	if d.interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.TriggerSync(ctx); err != nil {
				d.logger.Debug("scheduled sync skipped", zap.Error(err))
			}
		}
	}
}

// Wait blocks until background syncs finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
