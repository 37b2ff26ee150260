// Package interfaces declares the collaborators the ball-device core
// consumes but does not implement: the debounced switch controller, the
// coil driver, the event bus, the clock, and the logging/observability
// seams. Keeping them here (rather than in the root package) avoids
// import cycles between the root package and internal/eventbus.
package interfaces

import "time"

// SwitchController reports debounced switch transitions. Debouncing of
// raw GPIO happens below this interface; the core only sees transitions
// that have already settled for at least the requested duration.
type SwitchController interface {
	// AddSwitchHandler registers callback to fire when switch name
	// reaches activeState (true=active, false=inactive) and has held
	// that state for at least ms. It returns a key usable with
	// RemoveSwitchHandler.
	AddSwitchHandler(name string, activeState bool, ms time.Duration, callback func()) int

	// RemoveSwitchHandler cancels a previously registered handler.
	RemoveSwitchHandler(key int)

	// IsActive reports whether switch name is currently active and has
	// held that state for at least ms (ms=0 means "currently active").
	IsActive(name string, ms time.Duration) bool

	// IsInactive is the inactive-state mirror of IsActive.
	IsInactive(name string, ms time.Duration) bool
}

// Driver is the coil/actuator abstraction for eject and hold mechanisms.
type Driver interface {
	Pulse() error
	Enable() error
	Disable() error
}

// Event is a single published occurrence on the bus. Payload is mutable
// for relay-style events: handlers observe and may rewrite it in
// descending priority order.
type Event struct {
	Name    string
	Payload map[string]any
}

// EventBus is the process-wide, single-threaded, cooperative dispatcher
// described in the concurrency model: post is fire-and-forget, post-queue
// defers its completion callback until the event has fully drained
// (the "post-commit" hook), and post-relay threads a mutable payload
// through handlers from highest to lowest priority.
type EventBus interface {
	Post(name string, payload map[string]any)
	PostQueue(name string, payload map[string]any, onDrained func())
	PostRelay(name string, payload map[string]any, onDrained func(map[string]any))
	AddHandler(name string, priority int, callback func(map[string]any)) int
	RemoveHandler(key int)
	RemoveHandlersByKeys(keys []int)
}

// DelayScheduler is the named, cancellable one-shot timer service used
// for confirmation timeouts, hold-coil release, and ball-save timing.
type DelayScheduler interface {
	Schedule(name string, after time.Duration, callback func())
	Cancel(name string)
	CancelAll()
}

// Clock is injected so tests can control elapsed time deterministically.
type Clock interface {
	Now() time.Time
}

// Logger is the leveled logging seam, matching internal/logging's shape.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Observer is the metrics collection seam, matching metrics.go's shape.
// Implementations must be safe for concurrent use.
type Observer interface {
	ObserveEjectAttempt(device string, balls int)
	ObserveEjectSuccess(device string, balls int, latencyNs uint64)
	ObserveEjectFailure(device string, permanent bool)
	ObserveSwitchTransition(device, switchName string, active bool)
	ObserveCount(device string, balls int)
}
