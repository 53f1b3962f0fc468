package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/logger"
)

// ExecutionBroadcaster receives execution lifecycle events. It lets the
// server push live updates without schedule importing it.
type ExecutionBroadcaster interface {
	BroadcastExecutionStarted(job *Job, exec *Execution)
	BroadcastExecutionCompleted(job *Job, exec *Execution)
}

// Executor runs one due job. The delivery service implements it.
type Executor interface {
	ExecuteScheduled(ctx context.Context, jobID string, triggeredAt time.Time) (*Execution, error)
}

// Ticker fires recurring jobs whose next execution has passed.
type Ticker struct {
	store     *Store
	execStore *ExecutionStore
	executor  Executor
	interval  time.Duration
	workers   int
	retention int
	cleanup   time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	pulseLog  *zap.SugaredLogger

	mu              sync.Mutex
	lastTickAt      time.Time
	lastCleanupAt   time.Time
	ticksSinceStart int64
	dispatched      int64
	lastNextJobID   string
}

// TickerConfig contains configuration for the ticker
type TickerConfig struct {
	Interval      time.Duration // how often to look for due jobs
	Workers       int           // max executions running at once per tick
	RetentionDays int           // execution history TTL; 0 keeps everything
	CleanupEvery  time.Duration // how often to apply the TTL
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval:      30 * time.Second,
		Workers:       2,
		RetentionDays: 90,
		CleanupEvery:  time.Hour,
	}
}

// NewTicker creates a ticker bound to ctx; cancelling ctx stops it.
func NewTicker(ctx context.Context, store *Store, execStore *ExecutionStore, executor Executor, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	if log == nil {
		log = logger.ComponentLogger("ticker")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickerConfig().Interval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.CleanupEvery <= 0 {
		cfg.CleanupEvery = DefaultTickerConfig().CleanupEvery
	}
	tickerCtx, cancel := context.WithCancel(ctx)

	return &Ticker{
		store:     store,
		execStore: execStore,
		executor:  executor,
		interval:  cfg.Interval,
		workers:   cfg.Workers,
		retention: cfg.RetentionDays,
		cleanup:   cfg.CleanupEvery,
		ctx:       tickerCtx,
		cancel:    cancel,
		pulseLog:  logger.AddPulseSymbol(log),
	}
}

// Start begins the ticker loop
func (t *Ticker) Start() {
	t.wg.Add(1)
	go t.run()
	t.pulseLog.Infow("Ticker started", "interval", t.interval, "workers", t.workers)
}

// Stop stops the loop and waits for in-flight executions of the current tick.
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.pulseLog.Infow("Ticker stopped")
}

func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case tickTime := <-ticker.C:
			t.mu.Lock()
			t.lastTickAt = tickTime
			t.ticksSinceStart++
			t.mu.Unlock()

			if _, err := t.RunDue(t.ctx, tickTime); err != nil && !errors.Is(err, context.Canceled) {
				t.pulseLog.Warnw("Tick error", logger.FieldError, err, "tick", t.ticksSinceStart)
			}
			t.logNextJob(tickTime)
			t.maybeCleanup(tickTime)
		}
	}
}

// RunDue dispatches every job due at now to the executor, at most workers
// at a time, and waits for them. A failed execution is logged and does not
// stop the others. Returns the number of jobs dispatched.
func (t *Ticker) RunDue(ctx context.Context, now time.Time) (int, error) {
	jobs, err := t.store.ListJobsDue(ctx, now)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list due jobs")
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)

	dispatched := 0
	for _, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		dispatched++
		g.Go(func() error {
			t.runJob(gctx, job, now)
			return nil
		})
	}
	_ = g.Wait()

	t.mu.Lock()
	t.dispatched += int64(dispatched)
	t.mu.Unlock()
	return dispatched, ctx.Err()
}

func (t *Ticker) runJob(ctx context.Context, job *Job, now time.Time) {
	t.pulseLog.Infow("Executing scheduled job",
		logger.FieldJobID, job.ID,
		"name", job.Name,
		"due", job.NextExecution)

	exec, err := t.executor.ExecuteScheduled(ctx, job.ID, now)
	if err != nil {
		t.pulseLog.Errorw("Scheduled job failed",
			logger.FieldJobID, job.ID,
			logger.FieldError, err)
		return
	}
	if exec != nil {
		t.pulseLog.Infow("Scheduled job finished",
			logger.FieldJobID, job.ID,
			logger.FieldExecutionID, exec.ID,
			logger.FieldStatus, exec.Status)
	}
}

// logNextJob logs time until the next scheduled job when it changes.
func (t *Ticker) logNextJob(now time.Time) {
	next, err := t.store.NextScheduled(t.ctx)
	if err != nil {
		t.pulseLog.Warnw("Failed to get next scheduled job", logger.FieldError, err)
		return
	}

	id := ""
	if next != nil {
		id = next.ID
	}
	t.mu.Lock()
	changed := id != t.lastNextJobID
	t.lastNextJobID = id
	t.mu.Unlock()
	if !changed {
		return
	}

	if next == nil || next.NextExecution == nil {
		t.pulseLog.Infow("No scheduled executions")
		return
	}
	until := next.NextExecution.Sub(now)
	if until < 0 {
		until = 0
	}
	t.pulseLog.Infow("Next scheduled execution",
		logger.FieldJobID, next.ID,
		"name", next.Name,
		"in", until.Round(time.Second),
		logger.FieldNextRun, next.NextExecution.Format(time.RFC3339))
}

func (t *Ticker) maybeCleanup(now time.Time) {
	if t.execStore == nil || t.retention <= 0 {
		return
	}
	t.mu.Lock()
	due := now.Sub(t.lastCleanupAt) >= t.cleanup
	if due {
		t.lastCleanupAt = now
	}
	t.mu.Unlock()
	if !due {
		return
	}

	n, err := t.execStore.CleanupOldExecutions(t.ctx, t.retention)
	if err != nil {
		t.pulseLog.Warnw("Execution cleanup failed", logger.FieldError, err)
		return
	}
	if n > 0 {
		t.pulseLog.Infow("Removed old executions", logger.FieldCount, n, "retention_days", t.retention)
	}
}

// GetStats returns ticker statistics
func (t *Ticker) GetStats() map[string]interface{} {
	t.mu.Lock()
	defer t.mu.Unlock()

	return map[string]interface{}{
		"last_tick_at":      t.lastTickAt,
		"ticks_since_start": t.ticksSinceStart,
		"dispatched":        t.dispatched,
		"interval":          t.interval.String(),
		"workers":           t.workers,
	}
}
