// Package orchestrator drives the pipeline: it schedules collection and
// analysis cycles at a market-aware cadence and serializes them against
// manually triggered runs through a single reentrancy guard.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/news-pipeline/internal/analyzer"
	"github.com/mohamedkhairy/news-pipeline/internal/archiver"
	"github.com/mohamedkhairy/news-pipeline/internal/collector"
	"github.com/mohamedkhairy/news-pipeline/internal/config"
	"github.com/mohamedkhairy/news-pipeline/internal/markethours"
	"github.com/mohamedkhairy/news-pipeline/internal/storage"
	"github.com/mohamedkhairy/news-pipeline/pkg/logger"
)

var (
	cyclesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_cycles_completed_total",
		Help: "Scheduled pipeline cycles that ran to completion",
	})

	cyclePanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orchestrator_phase_panics_total",
		Help: "Panics recovered inside a pipeline phase",
	}, []string{"phase"})

	triggerRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orchestrator_trigger_rejections_total",
		Help: "Manual triggers rejected because a run was in progress",
	})
)

// ErrAlreadyRunning is returned when a trigger arrives while the loop or
// another trigger holds the guard.
var ErrAlreadyRunning = errors.New("pipeline already running")

// Status is a point-in-time snapshot of the pipeline. Readers get a copy.
type Status struct {
	Running       bool      `json:"running"`
	CurrentTask   string    `json:"current_task,omitempty"`
	CycleCount    int64     `json:"cycle_count"`
	LastCycleID   string    `json:"last_cycle_id,omitempty"`
	LastCycleAt   time.Time `json:"last_cycle_at"`
	NextCycleAt   time.Time `json:"next_cycle_at"`
	LastCollected int       `json:"last_collected"`
	LastAnalyzed  int       `json:"last_analyzed"`
	LastArchived  int       `json:"last_archived"`
	LastError     string    `json:"last_error,omitempty"`
	UniverseSize  int       `json:"universe_size"`
}

// Orchestrator owns the scheduling loop and the manual trigger entry
// points. All of them funnel through the same guard, so at most one
// collect/analyze/archive run is in flight at a time.
type Orchestrator struct {
	universe  storage.UniverseSource
	collector *collector.Collector
	analyzer  *analyzer.Analyzer
	archiver  *archiver.Archiver
	cfg       config.PipelineConfig

	mu      sync.Mutex
	busy    bool
	status  Status
	tickers map[string]string // cached universe, refreshed each cycle

	now  func() time.Time
	stop chan struct{}
	done chan struct{}
}

// New wires the orchestrator.
func New(u storage.UniverseSource, c *collector.Collector, a *analyzer.Analyzer, arc *archiver.Archiver, cfg config.PipelineConfig) *Orchestrator {
	return &Orchestrator{
		universe:  u,
		collector: c,
		analyzer:  a,
		archiver:  arc,
		cfg:       cfg,
		tickers:   make(map[string]string),
		now:       time.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Status returns a snapshot copy.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// acquire takes the guard or reports the task currently holding it.
func (o *Orchestrator) acquire(task string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return false
	}
	o.busy = true
	o.status.Running = true
	o.status.CurrentTask = task
	return true
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.busy = false
	o.status.Running = false
	o.status.CurrentTask = ""
}

// Start runs the scheduling loop until Stop is called or ctx is canceled.
func (o *Orchestrator) Start(ctx context.Context) {
	go o.run(ctx)
}

// Stop signals the loop and waits for it to exit. The loop checks the
// signal every second while sleeping, so shutdown latency between cycles
// stays near one second.
func (o *Orchestrator) Stop() {
	close(o.stop)
	<-o.done
}

func (o *Orchestrator) run(ctx context.Context) {
	defer close(o.done)
	logger.Info("Orchestrator started",
		logger.Duration("market_interval", o.cfg.MarketInterval),
		logger.Duration("off_hours_interval", o.cfg.OffHoursInterval),
	)

	for {
		select {
		case <-o.stop:
			logger.Info("Orchestrator stopped")
			return
		case <-ctx.Done():
			logger.Info("Orchestrator context canceled")
			return
		default:
		}

		o.Cycle(ctx)

		interval := markethours.Cadence(o.now(), o.cfg.MarketInterval, o.cfg.OffHoursInterval)
		o.mu.Lock()
		o.status.NextCycleAt = o.now().Add(interval)
		o.mu.Unlock()

		if !o.sleep(ctx, interval) {
			logger.Info("Orchestrator stopped")
			return
		}
	}
}

// sleep waits for d in one-second ticks. Returns false when interrupted.
func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) bool {
	deadline := o.now().Add(d)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for o.now().Before(deadline) {
		select {
		case <-o.stop:
			return false
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return true
}

// Cycle runs one scheduled pass: refresh universe, collect, analyze what
// was collected plus a slack for stragglers, and archive every Nth cycle.
// A cycle already in progress (for example a manual trigger) skips this
// tick rather than queueing behind it.
func (o *Orchestrator) Cycle(ctx context.Context) {
	if !o.acquire("scheduled_cycle") {
		logger.Debug("Cycle skipped, pipeline busy")
		return
	}
	defer o.release()

	cycleID := uuid.NewString()
	o.mu.Lock()
	o.status.CycleCount++
	cycle := o.status.CycleCount
	o.status.LastCycleID = cycleID
	o.status.LastCycleAt = o.now()
	o.status.LastError = ""
	o.mu.Unlock()

	logger.Info("Cycle starting",
		logger.Int64("cycle", cycle),
		logger.String("cycle_id", cycleID),
	)

	o.phase(cycle, "refresh_universe", func() {
		tickers, err := o.universe.Active(ctx)
		if err != nil {
			// Keep the previous universe; an empty cycle is worse
			// than a stale one.
			logger.Warn("Universe refresh failed, using cached set",
				logger.ErrorField(err),
				logger.Int("cached", len(o.tickers)),
			)
			o.setError(err)
			return
		}
		o.tickers = tickers
		o.mu.Lock()
		o.status.UniverseSize = len(tickers)
		o.mu.Unlock()
	})

	var collected int
	o.phase(cycle, "collect", func() {
		collected = o.collector.RunOnce(ctx, o.tickers)
		o.mu.Lock()
		o.status.LastCollected = collected
		o.mu.Unlock()
	})

	o.phase(cycle, "analyze", func() {
		analyzed, err := o.analyzer.RunOnce(ctx, collected+o.cfg.AnalyzeSlack)
		if err != nil {
			logger.Error("Analyze phase failed",
				logger.ErrorField(err),
				logger.Int64("cycle", cycle),
			)
			o.setError(err)
		}
		o.mu.Lock()
		o.status.LastAnalyzed = analyzed
		o.mu.Unlock()
	})

	if cycle%int64(o.cfg.ArchiveEveryN) == 0 {
		o.phase(cycle, "archive", func() {
			archived, err := o.archiver.RunOnce(ctx, o.cfg.ArchiveBudget)
			if err != nil {
				logger.Error("Archive phase failed",
					logger.ErrorField(err),
					logger.Int64("cycle", cycle),
				)
				o.setError(err)
			}
			o.mu.Lock()
			o.status.LastArchived = archived
			o.mu.Unlock()
		})
	}

	cyclesCompleted.Inc()
	logger.Info("Cycle finished",
		logger.Int64("cycle", cycle),
		logger.String("cycle_id", cycleID),
		logger.Int("collected", o.Status().LastCollected),
		logger.Int("analyzed", o.Status().LastAnalyzed),
	)
}

// phase runs fn with panic recovery. A panicking phase is logged with the
// cycle number and the cycle continues with the next phase.
func (o *Orchestrator) phase(cycle int64, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			cyclePanics.WithLabelValues(name).Inc()
			logger.Error("Phase panicked",
				logger.String("phase", name),
				logger.Int64("cycle", cycle),
				logger.Any("panic", r),
			)
			o.mu.Lock()
			o.status.LastError = name + " panicked"
			o.mu.Unlock()
		}
	}()
	fn()
}

func (o *Orchestrator) setError(err error) {
	o.mu.Lock()
	o.status.LastError = err.Error()
	o.mu.Unlock()
}

// Collect is the manual trigger: collect for the current universe, then
// analyze what came in.
func (o *Orchestrator) Collect(ctx context.Context) (collected, analyzed int, err error) {
	if !o.acquire("manual_collect") {
		triggerRejections.Inc()
		return 0, 0, ErrAlreadyRunning
	}
	defer o.release()

	tickers, uerr := o.universe.Active(ctx)
	if uerr != nil {
		logger.Warn("Universe refresh failed, using cached set",
			logger.ErrorField(uerr),
		)
		tickers = o.tickers
	} else {
		o.tickers = tickers
	}

	collected = o.collector.RunOnce(ctx, tickers)
	analyzed, err = o.analyzer.RunOnce(ctx, collected+o.cfg.AnalyzeSlack)
	o.mu.Lock()
	o.status.LastCollected = collected
	o.status.LastAnalyzed = analyzed
	o.mu.Unlock()
	return collected, analyzed, err
}

// Analyze is the manual trigger for draining the analyzer group with a
// fixed budget.
func (o *Orchestrator) Analyze(ctx context.Context) (int, error) {
	if !o.acquire("manual_analyze") {
		triggerRejections.Inc()
		return 0, ErrAlreadyRunning
	}
	defer o.release()

	analyzed, err := o.analyzer.RunOnce(ctx, o.cfg.ManualAnalyzeBudget)
	o.mu.Lock()
	o.status.LastAnalyzed = analyzed
	o.mu.Unlock()
	return analyzed, err
}

// Archive is the manual trigger for the archiver group.
func (o *Orchestrator) Archive(ctx context.Context) (int, error) {
	if !o.acquire("manual_archive") {
		triggerRejections.Inc()
		return 0, ErrAlreadyRunning
	}
	defer o.release()

	archived, err := o.archiver.RunOnce(ctx, o.cfg.ArchiveBudget)
	o.mu.Lock()
	o.status.LastArchived = archived
	o.mu.Unlock()
	return archived, err
}
