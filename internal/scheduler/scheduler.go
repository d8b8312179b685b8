package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/gammazero/workerpool"

	"github.com/edgewatch/cloudflare-analytics-exporter/internal/cloudflare"
	"github.com/edgewatch/cloudflare-analytics-exporter/internal/config"
	"github.com/edgewatch/cloudflare-analytics-exporter/internal/logging"
	"github.com/edgewatch/cloudflare-analytics-exporter/internal/models"
)

// DefaultDrainTimeout bounds the graceful-shutdown wait for in-flight tasks.
const DefaultDrainTimeout = 30 * time.Second

// Resolver yields the zone/dataset snapshot for one cycle.
type Resolver interface {
	Resolve(ctx context.Context) (*cloudflare.Snapshot, error)
}

// Fetcher runs one task's query against the analytics API.
type Fetcher interface {
	Fetch(ctx context.Context, task models.PollTask) (models.Rows, error)
}

// Sink receives task outcomes and cycle accounting.
type Sink interface {
	Apply(task models.PollTask, rows models.Rows) error
	RecordTaskFailure(task models.PollTask)
	RecordCycle(succeeded, failed int)
	RecordSkippedCycle()
}

// Scheduler drives the fixed-interval poll loop: each tick it resolves the
// zone directory, fans the (zone, dataset) tasks out over a bounded worker
// pool and drains the cycle before accepting another tick. Cycles never
// overlap; a tick that fires mid-drain is skipped and logged, never queued.
type Scheduler struct {
	interval     time.Duration
	workers      int
	resolver     Resolver
	fetcher      Fetcher
	sink         Sink
	drainTimeout time.Duration

	// ticks overrides the interval ticker in tests.
	ticks <-chan time.Time
	now   func() time.Time
}

// New builds a scheduler from validated configuration.
func New(cfg *config.Config, resolver Resolver, fetcher Fetcher, sink Sink) *Scheduler {
	return &Scheduler{
		interval:     cfg.ScrapeInterval,
		workers:      cfg.MaxWorkers,
		resolver:     resolver,
		fetcher:      fetcher,
		sink:         sink,
		drainTimeout: DefaultDrainTimeout,
		now:          time.Now,
	}
}

// WithTicks replaces the interval ticker, for tests driving cycles by hand.
func (s *Scheduler) WithTicks(ticks <-chan time.Time) *Scheduler {
	s.ticks = ticks
	return s
}

// WithClock replaces the wall clock used to compute task windows.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Run loops until ctx is cancelled. On shutdown, in-flight tasks finish
// their current attempt but no new cycle is dispatched; the drain timeout
// bounds the wait.
func (s *Scheduler) Run(ctx context.Context) {
	ticks := s.ticks
	if ticks == nil {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	pool := workerpool.New(s.workers)
	defer pool.Stop()

	// Task context outlives ctx so workers are not cancelled mid-attempt;
	// it is cut only when the drain timeout expires.
	taskCtx, cancelTasks := context.WithCancel(context.Background())
	defer cancelTasks()

	logging.Info("Scheduler started", map[string]interface{}{
		"interval_seconds": int(s.interval / time.Second),
		"workers":          s.workers,
	})

	cycleDone := make(chan struct{}, 1)
	draining := false

	for {
		select {
		case <-ctx.Done():
			if draining {
				select {
				case <-cycleDone:
				case <-time.After(s.drainTimeout):
					logging.Warn("Drain timeout reached, abandoning in-flight tasks", nil)
					cancelTasks()
				}
			}
			logging.Info("Scheduler stopped", nil)
			return

		case <-ticks:
			if draining {
				logging.Warn("Previous cycle still draining, skipping tick", nil)
				s.sink.RecordSkippedCycle()
				continue
			}
			draining = true
			go func() {
				s.runCycle(taskCtx, pool)
				cycleDone <- struct{}{}
			}()

		case <-cycleDone:
			draining = false
		}
	}
}

// RunCycle executes a single resolve/dispatch/drain cycle. Shutdown follows
// the same contract as Run: in-flight tasks finish their current attempt,
// bounded by the drain timeout.
func (s *Scheduler) RunCycle(ctx context.Context) {
	pool := workerpool.New(s.workers)
	defer pool.Stop()

	taskCtx, cancelTasks := context.WithCancel(context.Background())
	defer cancelTasks()

	done := make(chan struct{})
	go func() {
		s.runCycle(taskCtx, pool)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		select {
		case <-done:
		case <-time.After(s.drainTimeout):
			logging.Warn("Drain timeout reached, abandoning in-flight tasks", nil)
			cancelTasks()
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context, pool *workerpool.WorkerPool) {
	started := s.now()

	snapshot, err := s.resolver.Resolve(ctx)
	if err != nil {
		logging.Error("Zone directory resolution failed, cycle degraded", map[string]interface{}{
			"error": err.Error(),
		})
		s.sink.RecordCycle(0, 1)
		return
	}

	tasks := s.buildTasks(snapshot)
	logging.Debug("Dispatching poll tasks", map[string]interface{}{
		"tasks": len(tasks),
		"zones": len(snapshot.Zones),
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, failed := 0, 0

	for _, task := range tasks {
		task := task
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			if err := s.runTask(ctx, task); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			mu.Lock()
			succeeded++
			mu.Unlock()
		})
	}
	wg.Wait()

	s.sink.RecordCycle(succeeded, failed)
	fields := map[string]interface{}{
		"succeeded":        succeeded,
		"failed":           failed,
		"duration_seconds": s.now().Sub(started).Seconds(),
	}
	if succeeded == 0 && failed > 0 {
		logging.Warn("Degraded cycle: no task succeeded", fields)
		return
	}
	logging.Info("Cycle complete", fields)
}

// runTask contains one task's outcome: failures are logged and counted but
// never abort sibling tasks or the cycle.
func (s *Scheduler) runTask(ctx context.Context, task models.PollTask) error {
	rows, err := s.fetcher.Fetch(ctx, task)
	if err != nil {
		logging.Error("Poll task failed, prior values retained", map[string]interface{}{
			"zone":    task.Zone.Name,
			"dataset": string(task.Dataset),
			"error":   err.Error(),
		})
		s.sink.RecordTaskFailure(task)
		return err
	}
	if err := s.sink.Apply(task, rows); err != nil {
		logging.Error("Failed to apply rows", map[string]interface{}{
			"zone":    task.Zone.Name,
			"dataset": string(task.Dataset),
			"error":   err.Error(),
		})
		s.sink.RecordTaskFailure(task)
		return err
	}
	return nil
}

// buildTasks creates one task per (zone, enabled dataset) plus a single
// account-scoped quota task. The window ends at the current minute and
// spans one scrape interval.
func (s *Scheduler) buildTasks(snapshot *cloudflare.Snapshot) []models.PollTask {
	end := s.now().UTC().Truncate(time.Minute)
	window := models.Window{Start: end.Add(-s.interval), End: end}

	var tasks []models.PollTask
	for _, zone := range snapshot.Zones {
		for _, dataset := range snapshot.Datasets {
			if !zone.PollsDataset(dataset) {
				continue
			}
			tasks = append(tasks, models.PollTask{
				Zone:    zone,
				Account: snapshot.Account,
				Dataset: dataset,
				Window:  window,
			})
		}
	}
	if snapshot.Quota {
		tasks = append(tasks, models.PollTask{
			Account: snapshot.Account,
			Dataset: models.DatasetQuota,
			Window:  window,
		})
	}
	return tasks
}
