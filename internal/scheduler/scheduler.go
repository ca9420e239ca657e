// Package scheduler provides the two execution contexts of the snapshot
// core: a foreground context (single logical thread, FIFO task order,
// concurrency cap of one) on which all state mutation and event delivery
// happen, and a background pool for I/O such as content loads.
//
// Foreground tasks receive a context carrying a capability token; mutation
// APIs assert the token via MustForeground and fail fast on violation. The
// queue is unbounded, so a foreground task may re-enter Post without
// deadlocking: the new task runs in its proper turn behind already-queued
// work, never out of order.
package scheduler

import (
	"context"
	"sync"

	"github.com/conneroisu/templens/internal/faults"
	"github.com/conneroisu/templens/internal/logging"
)

// Task is a unit of work. Foreground tasks receive the foreground context;
// background tasks receive a plain context.
type Task func(ctx context.Context)

// foregroundKey marks a context as belonging to a scheduler's foreground.
type foregroundKey struct{}

// Scheduler owns the foreground goroutine and the background worker pool.
type Scheduler struct {
	logger  logging.Logger
	workers int

	mutex   sync.Mutex
	cond    *sync.Cond
	queue   []Task
	bgQueue []Task
	stopped bool
	started bool

	wg sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWorkers sets the background pool size.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// New creates a stopped scheduler. Call Start before posting work.
func New(logger logging.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &Scheduler{
		logger:  logger.WithComponent("scheduler"),
		workers: 4,
	}
	s.cond = sync.NewCond(&s.mutex)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the foreground goroutine and the background workers. Tasks
// posted before Start are retained and run once started. The scheduler stops
// when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mutex.Lock()
	if s.started {
		s.mutex.Unlock()
		panic(faults.Programmingf("scheduler started twice"))
	}
	s.started = true
	s.mutex.Unlock()

	fgCtx := context.WithValue(ctx, foregroundKey{}, s)

	s.wg.Add(1)
	go s.foregroundLoop(fgCtx)

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.backgroundLoop(ctx)
	}

	go func() {
		<-ctx.Done()
		s.mutex.Lock()
		s.stopped = true
		s.mutex.Unlock()
		s.cond.Broadcast()
	}()
}

// Stop waits for the foreground goroutine and background workers to exit.
// The context passed to Start must already be cancelled.
func (s *Scheduler) Stop() {
	s.wg.Wait()
}

// Post enqueues fn on the foreground context in FIFO order. Safe to call
// from any goroutine, including from a running foreground task.
func (s *Scheduler) Post(fn Task) {
	s.mutex.Lock()
	s.queue = append(s.queue, fn)
	s.mutex.Unlock()
	s.cond.Broadcast()
}

// PostBackground enqueues fn on the background pool. Background tasks carry
// no ordering guarantee relative to each other or to foreground work.
func (s *Scheduler) PostBackground(fn Task) {
	s.mutex.Lock()
	s.bgQueue = append(s.bgQueue, fn)
	s.mutex.Unlock()
	s.cond.Broadcast()
}

// Run posts fn to the foreground and blocks until it has executed. It must
// not be called from a foreground task; use Post there instead.
func (s *Scheduler) Run(fn Task) {
	done := make(chan struct{})
	s.Post(func(ctx context.Context) {
		defer close(done)
		fn(ctx)
	})
	<-done
}

// IsForeground reports whether ctx belongs to this scheduler's foreground.
func (s *Scheduler) IsForeground(ctx context.Context) bool {
	owner, _ := ctx.Value(foregroundKey{}).(*Scheduler)
	return owner == s
}

// MustForeground panics with a ProgrammingError when ctx is not this
// scheduler's foreground context. Mutation entry points call this first.
func (s *Scheduler) MustForeground(ctx context.Context) {
	if !s.IsForeground(ctx) {
		panic(faults.Programmingf("operation requires the foreground context"))
	}
}

func (s *Scheduler) foregroundLoop(fgCtx context.Context) {
	defer s.wg.Done()
	for {
		s.mutex.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped && len(s.queue) == 0 {
			s.mutex.Unlock()
			return
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mutex.Unlock()

		fn(fgCtx)
	}
}

func (s *Scheduler) backgroundLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		s.mutex.Lock()
		for len(s.bgQueue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped && len(s.bgQueue) == 0 {
			s.mutex.Unlock()
			return
		}
		fn := s.bgQueue[0]
		s.bgQueue = s.bgQueue[1:]
		s.mutex.Unlock()

		fn(ctx)
	}
}
