package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Stepper advances a simulation by one tick.
type Stepper interface {
	Tick(ctx context.Context) TickReport
}

// TimeSource delivers the scheduler's tick signals.
type TimeSource interface {
	C() <-chan time.Time
	Stop()
}

type wallClock struct {
	t *time.Ticker
}

func (w wallClock) C() <-chan time.Time { return w.t.C }
func (w wallClock) Stop()               { w.t.Stop() }

// WallClock returns a TimeSource backed by time.Ticker.
func WallClock(interval time.Duration) TimeSource {
	return wallClock{t: time.NewTicker(interval)}
}

// OverrunPolicy decides what happens to an interval that elapses while a
// tick is still running. Ticks never overlap under either policy.
type OverrunPolicy string

const (
	// OverrunSkip drops the missed interval.
	OverrunSkip OverrunPolicy = "skip"
	// OverrunQueue runs one catch-up tick right after the slow one.
	OverrunQueue OverrunPolicy = "queue"
)

// ErrSchedulerRunning is returned by Start on a running scheduler.
var ErrSchedulerRunning = errors.New("scheduler already running")

// Scheduler drives a Stepper on a fixed interval.
type Scheduler struct {
	target    Stepper
	interval  time.Duration
	policy    OverrunPolicy
	newSource func(time.Duration) TimeSource

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	skipped atomic.Uint64
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithOverrunPolicy sets the overrun policy (default OverrunSkip).
func WithOverrunPolicy(p OverrunPolicy) SchedulerOption {
	return func(s *Scheduler) { s.policy = p }
}

// WithTimeSource replaces the wall clock, e.g. with a manual source in tests.
func WithTimeSource(fn func(time.Duration) TimeSource) SchedulerOption {
	return func(s *Scheduler) { s.newSource = fn }
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(target Stepper, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		target:    target,
		interval:  interval,
		policy:    OverrunSkip,
		newSource: WallClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins ticking in a background goroutine. Ticks run with a context
// derived from ctx that is not cancelled by Stop, so an in-flight tick
// always finishes. Cancelling ctx stops the scheduler like Stop does.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return ErrSchedulerRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	src := s.newSource(s.interval)
	go s.loop(loopCtx, context.WithoutCancel(ctx), src, done)

	slog.Info("tick scheduler started", "interval", s.interval, "overrun_policy", s.policy)
	return nil
}

// Stop halts the scheduler. When Stop returns, no further tick will start;
// a tick that was already running has completed. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done
	slog.Info("tick scheduler stopped", "skipped_intervals", s.skipped.Load())
}

// Running reports whether the scheduler loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

// TickNow runs one tick synchronously, independent of the interval. It is
// serialized with scheduled ticks by the target's own lock.
func (s *Scheduler) TickNow(ctx context.Context) TickReport {
	return s.target.Tick(ctx)
}

// Skipped returns how many intervals were dropped under OverrunSkip.
func (s *Scheduler) Skipped() uint64 {
	return s.skipped.Load()
}

// release clears the running state when the loop exits on its own, e.g.
// because the parent context was cancelled. A Stop in progress has already
// cleared it.
func (s *Scheduler) release(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done {
		return
	}
	s.cancel()
	s.cancel, s.done = nil, nil
	slog.Info("tick scheduler stopped by context", "skipped_intervals", s.skipped.Load())
}

func (s *Scheduler) loop(ctx, tickCtx context.Context, src TimeSource, done chan struct{}) {
	defer close(done)
	defer s.release(done)
	defer src.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-src.C():
		}
		// Stop may race with a pending signal; never start a tick after it.
		if ctx.Err() != nil {
			return
		}

		rep := s.target.Tick(tickCtx)

		if s.policy == OverrunSkip {
			select {
			case <-src.C():
				n := s.skipped.Add(1)
				slog.Warn("tick overran interval, skipping",
					"tick", rep.Tick,
					"duration", rep.Duration,
					"interval", s.interval,
					"skipped_total", n,
				)
			default:
			}
		}
	}
}
