package workers

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Pipeline is the unit of work the scheduler repeats
type Pipeline interface {
	RunAll(ctx context.Context) []BatchResult
}

// SchedulerConfig configures the polling loop
type SchedulerConfig struct {
	Interval     time.Duration
	InitialDelay time.Duration
	RunTimeout   time.Duration
}

// RunMetrics tracks scheduler statistics
type RunMetrics struct {
	TotalRuns     atomic.Int64
	FailedBatches atomic.Int64
	ItemErrors    atomic.Int64
	LastRun       atomic.Value // time.Time
	LastDuration  atomic.Value // time.Duration
}

// Scheduler runs the pipeline on a fixed interval until stopped
type Scheduler struct {
	ctx      context.Context
	cancel   context.CancelFunc
	config   SchedulerConfig
	pipeline Pipeline
	paused   atomic.Bool
	logger   *slog.Logger
	metrics  *RunMetrics
	done     chan struct{}
	once     sync.Once
}

// NewScheduler creates a scheduler bound to parent; cancelling parent stops it
func NewScheduler(parent context.Context, config SchedulerConfig, pipeline Pipeline, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = config.Interval
	}

	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{
		ctx:      ctx,
		cancel:   cancel,
		config:   config,
		pipeline: pipeline,
		logger:   logger,
		metrics:  &RunMetrics{},
		done:     make(chan struct{}),
	}
}

// Start begins the background loop
func (s *Scheduler) Start() {
	s.once.Do(func() {
		s.logger.Info("Starting scheduler",
			"interval", s.config.Interval,
			"initial_delay", s.config.InitialDelay)
		go s.loop()
	})
}

// Stop cancels the loop and waits for an in-flight run to return
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cancel()
	s.once.Do(func() { close(s.done) })
	<-s.done
}

// Pause skips scheduled runs until Resume
func (s *Scheduler) Pause() {
	s.paused.Store(true)
	s.logger.Info("Scheduler paused")
}

// Resume re-enables scheduled runs
func (s *Scheduler) Resume() {
	s.paused.Store(false)
	s.logger.Info("Scheduler resumed")
}

func (s *Scheduler) IsPaused() bool {
	return s.paused.Load()
}

func (s *Scheduler) Metrics() *RunMetrics {
	return s.metrics
}

// Done is closed when the loop has exited
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	initial := time.NewTimer(s.config.InitialDelay)
	defer initial.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("Scheduler loop stopped")
			return

		case <-initial.C:
			s.RunOnce()

		case <-ticker.C:
			if !s.paused.Load() {
				s.RunOnce()
			}
		}
	}
}

// RunOnce performs a single pipeline run under the run timeout
func (s *Scheduler) RunOnce() []BatchResult {
	start := time.Now()
	s.metrics.TotalRuns.Add(1)

	ctx, cancel := context.WithTimeout(s.ctx, s.config.RunTimeout)
	defer cancel()

	results := s.pipeline.RunAll(ctx)

	for _, r := range results {
		if r.Error != "" {
			s.metrics.FailedBatches.Add(1)
		}
		s.metrics.ItemErrors.Add(int64(len(r.Errors)))
	}

	duration := time.Since(start)
	s.metrics.LastRun.Store(time.Now())
	s.metrics.LastDuration.Store(duration)

	s.logger.Info("Scheduled run completed", "duration", duration, "batches", len(results))
	return results
}
