package eventbus

import (
	"sync"
	"time"

	"github.com/ehrlich-b/go-balldevice/internal/interfaces"
)

// DelayScheduler is the named, cancellable one-shot timer service: a map
// from name to cancellation token, per the design doc's re-architecture
// guidance. Scheduling the same name twice cancels the previous timer
// first, matching the source's "add_switch_handler with a name replaces
// any prior registration under that name" behavior for confirmation
// timeouts and hold-coil releases.
type DelayScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewDelayScheduler creates an empty scheduler.
func NewDelayScheduler() *DelayScheduler {
	return &DelayScheduler{timers: make(map[string]*time.Timer)}
}

// Schedule arranges for callback to run after d, under name. A prior
// pending delay with the same name is cancelled first.
func (s *DelayScheduler) Schedule(name string, d time.Duration, callback func()) {
	s.mu.Lock()
	if existing, ok := s.timers[name]; ok {
		existing.Stop()
	}
	timer := time.AfterFunc(d, func() {
		s.mu.Lock()
		delete(s.timers, name)
		s.mu.Unlock()
		callback()
	})
	s.timers[name] = timer
	s.mu.Unlock()
}

// Cancel stops the pending delay registered under name, if any.
// Idempotent: cancelling an unknown or already-fired name is a no-op.
func (s *DelayScheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.timers[name]; ok {
		timer.Stop()
		delete(s.timers, name)
	}
}

// CancelAll stops every pending delay in the scheduler, whichever
// device scheduled it.
func (s *DelayScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, timer := range s.timers {
		timer.Stop()
		delete(s.timers, name)
	}
}

// Pending reports whether a delay is currently scheduled under name.
func (s *DelayScheduler) Pending(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[name]
	return ok
}

// SystemClock is the real-time interfaces.Clock implementation.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

var (
	_ interfaces.DelayScheduler = (*DelayScheduler)(nil)
	_ interfaces.Clock          = SystemClock{}
)
