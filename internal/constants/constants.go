package constants

import "time"

// Default switch-debounce delays. These are the minimum time a switch
// must hold a new state before the switch-to-count mapper treats the
// transition as real, filtering out contact bounce and ball jostle.
const (
	// DefaultEntranceCountDelay is how long a ball-switch must be active
	// (0->1) before it is counted as a new ball.
	DefaultEntranceCountDelay = 300 * time.Millisecond

	// DefaultExitCountDelay is how long a ball-switch must be inactive
	// (1->0) before it is counted as a ball having left.
	DefaultExitCountDelay = 300 * time.Millisecond
)

// Default eject mechanism timings.
const (
	// DefaultEjectTimeout is the confirmation deadline used when a
	// device/target pair has no explicit eject_timeouts entry.
	DefaultEjectTimeout = 6 * time.Second

	// DefaultHoldCoilReleaseTime is how long a hold coil is de-energized
	// to let a single ball pass before re-enabling.
	DefaultHoldCoilReleaseTime = 500 * time.Millisecond

	// DefaultMechanicalEjectTriggerTime is how long a ball-switch must be
	// inactive before a player-pulled plunger is considered to have fired.
	DefaultMechanicalEjectTriggerTime = 2 * time.Second

	// FakeConfirmDelay is the fixed settle time for confirm_eject_type=fake.
	FakeConfirmDelay = 1 * time.Millisecond
)

// Default ball-save timings.
const (
	// DefaultHurryUpTime is how long before the active time ends the
	// hurry-up warning fires.
	DefaultHurryUpTime = 3 * time.Second

	// DefaultGracePeriod is how long after active_time elapses a drained
	// ball is still eligible for saving.
	DefaultGracePeriod = 1500 * time.Millisecond
)

// UnboundedRetries signals max_eject_attempts == 0 (unlimited).
const UnboundedRetries = 0

// UnlimitedBallSaves signals balls_to_save == -1 (unlimited saves).
const UnlimitedBallSaves = -1

// SingleBallPerEject is the sentinel value of balls_per_eject that means
// "eject exactly one ball"; any other configured value means "eject all".
const SingleBallPerEject = 1
