package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/darkace1998/FlowSentry/internal/config"
	"github.com/darkace1998/FlowSentry/internal/logging"
	"github.com/darkace1998/FlowSentry/internal/model"
)

// Polling intervals used when the configured value is not positive.
const (
	DefaultStatusInterval = 5 * time.Second
	DefaultFlowsInterval  = 10 * time.Second
)

// ErrStopped is returned by actions issued after Stop.
var ErrStopped = errors.New("session: scheduler stopped")

// Backend is the subset of the backend API the scheduler drives.
type Backend interface {
	FetchFlows(ctx context.Context) ([]model.FlowRecord, error)
	FetchStatus(ctx context.Context) (model.ApiStatus, error)
	StartCapture(ctx context.Context) error
	StopCapture(ctx context.Context) error
}

// Scheduler polls the backend on two independent cadences and runs user
// actions. Every fetch runs on its own goroutine so timers and actions never
// wait on each other; results are applied through the Session.
type Scheduler struct {
	backend     Backend
	session     *Session
	statusEvery time.Duration
	flowsEvery  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	stop   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool

	log *logging.Logger
}

// NewScheduler creates a scheduler for sess using the intervals in cfg.
// Non-positive intervals fall back to DefaultStatusInterval and
// DefaultFlowsInterval.
func NewScheduler(b Backend, sess *Session, cfg config.PollConfig) *Scheduler {
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}
	if cfg.FlowsInterval <= 0 {
		cfg.FlowsInterval = DefaultFlowsInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		backend:     b,
		session:     sess,
		statusEvery: cfg.StatusInterval,
		flowsEvery:  cfg.FlowsInterval,
		ctx:         ctx,
		cancel:      cancel,
		stop:        make(chan struct{}),
		log:         logging.Default().Named("scheduler"),
	}
}

// Start issues the initial full load and status fetch, then starts both
// polling timers. It returns immediately. Calling Start twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started || s.closed {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Info("polling status every %s, flows every %s", s.statusEvery, s.flowsEvery)

	s.dispatch(s.loadInitial)
	s.dispatch(s.pollStatus)
	go s.loop()
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	statusTicker := time.NewTicker(s.statusEvery)
	defer statusTicker.Stop()
	flowsTicker := time.NewTicker(s.flowsEvery)
	defer flowsTicker.Stop()

	for {
		select {
		case <-statusTicker.C:
			s.dispatch(s.pollStatus)
		case <-flowsTicker.C:
			s.dispatch(s.pollFlows)
		case <-s.stop:
			return
		}
	}
}

// Stop tears the session down: later completions are discarded, timers
// stop, in-flight requests are cancelled, and Stop waits for every
// goroutine the scheduler started. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.session.Close()
	s.cancel()
	close(s.stop)
	s.wg.Wait()
	s.log.Info("stopped")
}

// Refresh replaces the stored flows with a fresh full fetch.
func (s *Scheduler) Refresh(ctx context.Context) error {
	return s.run(ctx, func(ctx context.Context) error {
		flows, err := s.backend.FetchFlows(ctx)
		s.session.ApplyRefresh(flows, err)
		return err
	})
}

// StartCapture asks the backend to start sniffing and then re-fetches status.
func (s *Scheduler) StartCapture(ctx context.Context) error {
	return s.run(ctx, func(ctx context.Context) error {
		return s.capture(ctx, true)
	})
}

// StopCapture asks the backend to stop sniffing and then re-fetches status.
func (s *Scheduler) StopCapture(ctx context.Context) error {
	return s.run(ctx, func(ctx context.Context) error {
		return s.capture(ctx, false)
	})
}

func (s *Scheduler) capture(ctx context.Context, start bool) error {
	var err error
	if start {
		err = s.backend.StartCapture(ctx)
	} else {
		err = s.backend.StopCapture(ctx)
	}
	s.session.ApplyCapture(start, err)
	if err != nil {
		return err
	}
	s.pollStatus(ctx)
	return nil
}

func (s *Scheduler) loadInitial(ctx context.Context) {
	flows, err := s.backend.FetchFlows(ctx)
	s.session.ApplyInitialLoad(flows, err)
}

func (s *Scheduler) pollFlows(ctx context.Context) {
	flows, err := s.backend.FetchFlows(ctx)
	s.session.ApplyIncremental(flows, err)
}

func (s *Scheduler) pollStatus(ctx context.Context) {
	st, err := s.backend.FetchStatus(ctx)
	s.session.ApplyStatus(st, err)
}

// dispatch runs fn on a tracked goroutine. It reports false once the
// scheduler is stopped.
func (s *Scheduler) dispatch(fn func(ctx context.Context)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
	return true
}

// run dispatches an action and waits for its result or for ctx to end. The
// action itself is bounded by the scheduler's lifetime, not by ctx.
func (s *Scheduler) run(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	if !s.dispatch(func(sctx context.Context) { done <- fn(sctx) }) {
		return ErrStopped
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
