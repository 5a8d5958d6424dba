package sync

import (
	"context"
	"log"
	"os"
	gosync "sync"
	"time"

	"github.com/overcooked/overcooked/internal/remote"
)

// Scheduler runs the drainer with enqueue-or-replace semantics: any number
// of Schedule calls while a run is queued or in flight coalesce into one
// subsequent run. Runs are gated on replica reachability; a retryable
// failure re-arms the scheduler after RetryInterval. At most one drain run
// is ever active.
type Scheduler struct {
	drainer *Drainer
	replica remote.Replica
	logger  *log.Logger

	// RetryInterval is the delay before a failed or offline run is
	// rescheduled.
	RetryInterval time.Duration

	signal chan struct{}

	mu      gosync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler creates a scheduler for the given drainer.
func NewScheduler(drainer *Drainer, replica remote.Replica, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(os.Stderr, "[drain] ", log.LstdFlags)
	}
	return &Scheduler{
		drainer:       drainer,
		replica:       replica,
		logger:        logger,
		RetryInterval: 30 * time.Second,
		signal:        make(chan struct{}, 1),
	}
}

// Schedule requests a drain run. Idempotent and non-blocking; a request
// while one is already queued coalesces into it.
func (s *Scheduler) Schedule() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Start launches the scheduling loop. Call Stop to end it.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop ends the scheduling loop and waits for any in-flight run. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.signal:
		}

		if err := s.replica.Ping(ctx); err != nil {
			s.logger.Printf("Replica unreachable, retrying in %s", s.RetryInterval)
			s.rearm(ctx)
			continue
		}

		if err := s.drainer.RunOnce(ctx); err != nil {
			s.logger.Printf("Drain failed, retrying in %s: %v", s.RetryInterval, err)
			s.rearm(ctx)
		}
	}
}

// rearm schedules another run after RetryInterval unless ctx ends first.
func (s *Scheduler) rearm(ctx context.Context) {
	timer := time.NewTimer(s.RetryInterval)
	go func() {
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			s.Schedule()
		}
	}()
}
