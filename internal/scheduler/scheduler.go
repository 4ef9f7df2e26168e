// Package scheduler owns the single sync worker: periodic triggers, manual
// triggers, retry backoff and constraint checks.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"example.com/companion/internal/syncjob"
	"example.com/companion/internal/synclog"
)

const (
	defaultInterval       = 15 * time.Minute
	defaultBaseDelay      = 30 * time.Second
	defaultConstraintPoll = time.Minute
	maxBackoff            = time.Hour

	triggerPeriodic = "periodic"
	triggerManual   = "manual"
	triggerImport   = "import"
)

type controlChange int

const (
	changeNone controlChange = iota
	changePaused
	changeResumed
	changeInterval
)

// ErrStopped is returned by Import once the worker loop has exited.
var ErrStopped = errors.New("scheduler stopped")

// Runner executes one sync invocation.
type Runner interface {
	Run(ctx context.Context, req syncjob.Request) syncjob.Result
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithConstraints adds checks that must pass before a periodic or manual run.
func WithConstraints(constraints ...Constraint) Option {
	return func(s *Scheduler) { s.constraints = append(s.constraints, constraints...) }
}

// WithBaseDelay sets the first retry delay; later retries double it.
func WithBaseDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.baseDelay = d
		}
	}
}

// WithConstraintPoll sets how long to wait before re-checking unmet constraints.
func WithConstraintPoll(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.constraintPoll = d
		}
	}
}

type importRequest struct {
	ctx   context.Context
	reply chan syncjob.Result
}

// Scheduler runs sync jobs on one goroutine so at most one invocation is
// active. It starts paused; Reschedule activates periodic runs.
type Scheduler struct {
	runner         Runner
	constraints    []Constraint
	baseDelay      time.Duration
	constraintPoll time.Duration
	logger         *zap.Logger

	trigger chan struct{}
	wake    chan struct{}
	imports chan importRequest

	mu          sync.Mutex
	interval    time.Duration
	paused      bool
	rescheduled bool
	cancelRun   context.CancelFunc
	stop        context.CancelFunc

	shutdownComplete chan struct{}
}

// New constructs a paused Scheduler.
func New(runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		runner:           runner,
		baseDelay:        defaultBaseDelay,
		constraintPoll:   defaultConstraintPoll,
		logger:           zap.NewNop(),
		trigger:          make(chan struct{}, 1),
		wake:             make(chan struct{}, 1),
		imports:          make(chan importRequest),
		interval:         defaultInterval,
		paused:           true,
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncNow requests an immediate run. Requests made while one is pending or
// running collapse into a single extra run.
func (s *Scheduler) SyncNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
		mergedTriggerCounter.Inc()
	}
}

// Reschedule sets the periodic interval. A paused scheduler resumes and runs
// immediately; an active one runs next after the new interval.
func (s *Scheduler) Reschedule(interval time.Duration) {
	if interval <= 0 {
		interval = defaultInterval
	}
	s.mu.Lock()
	s.interval = interval
	s.rescheduled = true
	s.mu.Unlock()
	s.notify()
}

// Pause stops periodic runs and cancels the run in flight, if any.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.rescheduled = false
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.mu.Unlock()
	s.notify()
}

// Paused reports whether periodic runs are disabled.
func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Interval returns the current periodic interval.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// Import runs the initial import on the worker and waits for its result.
// Cancelling ctx cancels the import.
func (s *Scheduler) Import(ctx context.Context) (syncjob.Result, error) {
	req := importRequest{ctx: ctx, reply: make(chan syncjob.Result, 1)}
	select {
	case s.imports <- req:
	case <-ctx.Done():
		return syncjob.Result{}, ctx.Err()
	case <-s.shutdownComplete:
		return syncjob.Result{}, ErrStopped
	}
	select {
	case res := <-req.reply:
		if err := ctx.Err(); err != nil {
			return res, err
		}
		return res, nil
	case <-ctx.Done():
		return syncjob.Result{}, ctx.Err()
	}
}

// Start runs the worker loop until ctx is cancelled or Stop is called. It
// should be called in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.stop = cancel
	s.mu.Unlock()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer func() {
		timer.Stop()
		cancel()
		close(s.shutdownComplete)
	}()

	attempt := 1
	for {
		var trigger string
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			interval, change := s.takeControl()
			switch change {
			case changePaused:
				timer.Stop()
				attempt = 1
				nextRunGauge.Set(0)
			case changeResumed:
				attempt = 1
				s.arm(timer, 0)
			case changeInterval:
				attempt = 1
				s.arm(timer, interval)
			}
			continue
		case req := <-s.imports:
			req.reply <- s.runImport(ctx, req.ctx)
			continue
		case <-s.trigger:
			trigger = triggerManual
			attempt = 1
		case <-timer.C:
			trigger = triggerPeriodic
		}

		p := s.runPeriodic(ctx, trigger, attempt)
		if p.stopped {
			return
		}
		attempt = p.attempt
		if p.regular && s.Paused() {
			continue
		}
		s.arm(timer, p.delay)
	}
}

// Stop cancels the worker loop and any run in flight.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop := s.stop
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Wait blocks until the worker loop has exited.
func (s *Scheduler) Wait() {
	<-s.shutdownComplete
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// takeControl consumes a pending Pause or Reschedule.
func (s *Scheduler) takeControl() (time.Duration, controlChange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.rescheduled {
		if s.paused {
			return s.interval, changePaused
		}
		return s.interval, changeNone
	}
	s.rescheduled = false
	if s.paused {
		s.paused = false
		return s.interval, changeResumed
	}
	return s.interval, changeInterval
}

func (s *Scheduler) arm(timer *time.Timer, delay time.Duration) {
	timer.Reset(delay)
	nextRunGauge.Set(float64(time.Now().Add(delay).Unix()))
}

// nextRun is what the loop does after a periodic or manual run.
type nextRun struct {
	attempt int
	delay   time.Duration
	// regular is set when the next run is the ordinary interval tick, which
	// is skipped while paused. Retries and deferrals are armed regardless.
	regular bool
	stopped bool
}

// runPeriodic checks constraints and runs one periodic invocation.
func (s *Scheduler) runPeriodic(ctx context.Context, trigger string, attempt int) nextRun {
	for _, c := range s.constraints {
		if err := c.Check(ctx); err != nil {
			if ctx.Err() != nil {
				return nextRun{stopped: true}
			}
			constraintBlockedCounter.WithLabelValues(c.Name()).Inc()
			s.logger.Info("sync deferred, constraint not met",
				zap.String("constraint", c.Name()),
				zap.Duration("recheck_in", s.constraintPoll),
				zap.Error(err),
			)
			return nextRun{attempt: attempt, delay: s.constraintPoll}
		}
	}

	res := s.execute(ctx, trigger, syncjob.Request{Type: synclog.TypePeriodic, Attempt: attempt})
	switch res.Outcome {
	case syncjob.OutcomeRetry:
		delay := s.backoffDelay(attempt)
		s.logger.Info("sync retry scheduled", zap.Int("next_attempt", attempt+1), zap.Duration("delay", delay))
		return nextRun{attempt: attempt + 1, delay: delay}
	case syncjob.OutcomeCancelled:
		if ctx.Err() != nil {
			return nextRun{stopped: true}
		}
	}
	return nextRun{attempt: 1, delay: s.Interval(), regular: true}
}

func (s *Scheduler) runImport(loopCtx, callerCtx context.Context) syncjob.Result {
	ctx, cancel := context.WithCancel(loopCtx)
	defer cancel()
	stopAfter := context.AfterFunc(callerCtx, cancel)
	defer stopAfter()
	return s.execute(ctx, triggerImport, syncjob.Request{Type: synclog.TypeInitialImport, Attempt: 1})
}

func (s *Scheduler) execute(ctx context.Context, trigger string, req syncjob.Request) syncjob.Result {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelRun = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancelRun = nil
		s.mu.Unlock()
		cancel()
	}()

	triggeredCounter.WithLabelValues(trigger).Inc()
	return s.runner.Run(runCtx, req)
}

// backoffDelay calculates exponential backoff capped at one hour.
func (s *Scheduler) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		return maxBackoff
	}
	delay := time.Duration(1<<uint(attempt-1)) * s.baseDelay
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}
