package balldevice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-balldevice/internal/eventbus"
	"github.com/ehrlich-b/go-balldevice/internal/interfaces"
)

func buildConfirmPair(t *testing.T, confirmType ConfirmType, switchName, eventName string) (source, target *Device, bus *eventbus.Bus, switches *MockSwitchController) {
	t.Helper()
	bus = eventbus.NewBus()
	delays := eventbus.NewDelayScheduler()
	switches = NewMockSwitchController()
	coil := NewMockDriver()

	cfgs := []Config{
		{
			Name:              "source",
			BallSwitches:      []string{"source1"},
			EjectCoil:         "source_coil",
			EjectTargets:      []string{"target"},
			ConfirmEjectType:  confirmType,
			ConfirmSwitchName: switchName,
			ConfirmEventName:  eventName,
		},
		{Name: "target", BallSwitches: []string{"target1"}},
	}
	switches.SetState("source1", true)
	machine, err := NewMachine(cfgs, bus, delays, switches, func(Config) interfaces.Driver { return coil })
	require.NoError(t, err)
	return machine.Device("source"), machine.Device("target"), bus, switches
}

// TestTargetConfirmSucceedsOnBallEnter exercises the default strategy
// end-to-end via the public Eject path (already covered more fully in
// device_test.go's clean-eject scenario); here it asserts the strategy's
// cancel path removes its bus subscription so a later unrelated arrival
// at the target does not spuriously re-trigger the stale callback.
func TestTargetConfirmSucceedsOnBallEnter(t *testing.T) {
	source, target, bus, switches := buildConfirmPair(t, ConfirmTarget, "", "")

	require.NoError(t, source.Eject(1, "", time.Minute))
	switches.SetState("source1", false)
	switches.SetState("target1", true)

	assert.Equal(t, StateIdle, source.State())

	var successCount int
	bus.AddHandler(evBallEnter("target"), confirmHandlerPriority, func(map[string]any) { successCount++ })
	// A later arrival at target with no attempt in progress must not
	// resolve anything on source (the busKey was already removed).
	switches.SetState("target1", false)
	switches.SetState("target1", true)
	assert.Equal(t, StateIdle, source.State())
}

// TestSwitchConfirmSucceedsOnNamedSwitch verifies confirm_eject_type=switch
// resolves when the configured switch (not necessarily on the target)
// activates, independent of any ball_enter traffic.
func TestSwitchConfirmSucceedsOnNamedSwitch(t *testing.T) {
	source, _, _, switches := buildConfirmPair(t, ConfirmSwitch, "optical_eye", "")

	require.NoError(t, source.Eject(1, "", time.Minute))
	assert.Equal(t, StateAttempting, source.State())

	switches.SetState("optical_eye", true)
	assert.Equal(t, StateIdle, source.State())
}

// TestEventConfirmSucceedsOnNamedEvent verifies confirm_eject_type=event
// resolves when the configured bus event is published, e.g. by a rule
// elsewhere in the machine.
func TestEventConfirmSucceedsOnNamedEvent(t *testing.T) {
	source, _, bus, _ := buildConfirmPair(t, ConfirmEvent, "", "ball_captured")

	require.NoError(t, source.Eject(1, "", time.Minute))
	assert.Equal(t, StateAttempting, source.State())

	bus.Post("ball_captured", nil)
	assert.Equal(t, StateIdle, source.State())
}

// TestCountConfirmSucceedsWhenCountSettlesAfterDeparture verifies
// confirm_eject_type=count resolves purely from CountBalls settling back
// to delta==0 after the departure latch is set, with no external signal.
func TestCountConfirmSucceedsWhenCountSettlesAfterDeparture(t *testing.T) {
	bus := eventbus.NewBus()
	delays := eventbus.NewDelayScheduler()
	switches := NewMockSwitchController()
	coil := NewMockDriver()
	switches.SetState("source1", true)
	switches.SetState("source2", true)

	cfgs := []Config{
		{
			Name:             "source",
			BallSwitches:     []string{"source1", "source2"},
			EjectCoil:        "source_coil",
			EjectTargets:     []string{"target"},
			ConfirmEjectType: ConfirmCount,
		},
		{Name: "target", Capacity: 5},
	}
	machine, err := NewMachine(cfgs, bus, delays, switches, func(Config) interfaces.Driver { return coil })
	require.NoError(t, err)
	source := machine.Device("source")

	require.NoError(t, source.Eject(1, "", time.Minute))
	assert.Equal(t, StateAttempting, source.State())

	// source1 leaves: balls drop to 1, latch set, count settles (delta 0
	// against the just-decremented value) — count-confirm resolves here.
	switches.SetState("source1", false)
	assert.Equal(t, StateIdle, source.State())
	assert.Equal(t, 1, source.Balls())
}

// TestFakeConfirmSucceedsOnTimer verifies confirm_eject_type=fake resolves
// unconditionally after FakeConfirmDelay, used for captive/lock releases
// with no observable signal.
func TestFakeConfirmSucceedsOnTimer(t *testing.T) {
	bus := eventbus.NewBus()
	delays := eventbus.NewDelayScheduler()
	switches := NewMockSwitchController()
	coil := NewMockDriver()

	cfgs := []Config{
		{
			Name:             "lock",
			EntranceSwitch:   "lock_entrance",
			Capacity:         1,
			EjectCoil:        "lock_coil",
			EjectTargets:     []string{"playfield"},
			ConfirmEjectType: ConfirmFake,
		},
		{Name: "playfield", Tags: []string{"playfield"}},
	}
	machine, err := NewMachine(cfgs, bus, delays, switches, func(Config) interfaces.Driver { return coil })
	require.NoError(t, err)
	lock := machine.Device("lock")

	// One entrance-switch activation seats a ball (the first activation
	// after construction is the suppressed initial count).
	switches.SetState("lock_entrance", true)
	require.Equal(t, 1, lock.Balls())

	require.NoError(t, lock.Eject(1, "", 0))
	assert.Equal(t, StateAttempting, lock.State())

	// FakeConfirmDelay is 1ms; give the real timer time to fire.
	time.Sleep(15 * time.Millisecond)
	assert.Equal(t, StateIdle, lock.State())
}

// TestConfirmationCancelsCleanlyForMechanicalEject is the regression test
// for the callback-decoupling fix: a mechanical eject's confirmation must
// tear down without relying on ejectInProgressTarget (which a mechanical
// attempt never sets), and a bounce-back failure must not leak the
// confirmation handler.
func TestConfirmationCancelsCleanlyForMechanicalEject(t *testing.T) {
	bus := eventbus.NewBus()
	delays := eventbus.NewDelayScheduler()
	switches := NewMockSwitchController()
	coil := NewMockDriver()
	switches.SetState("plunger1", true)

	cfgs := []Config{
		{
			Name:             "plunger",
			BallSwitches:     []string{"plunger1"},
			MechanicalEject:  true,
			EjectTargets:     []string{"playfield"},
			ConfirmEjectType: ConfirmTarget,
		},
		{Name: "playfield", Tags: []string{"playfield"}},
	}
	machine, err := NewMachine(cfgs, bus, delays, switches, func(Config) interfaces.Driver { return coil })
	require.NoError(t, err)
	plunger := machine.Device("plunger")

	require.NoError(t, plunger.SetupPlayerControlledEject(1, "", ""))

	// The player pulls the plunger: the ball-switch releases.
	switches.SetState("plunger1", false)
	assert.Equal(t, 0, plunger.Balls())

	// It never arrives and bounces straight back in.
	switches.SetState("plunger1", true)
	assert.Equal(t, 1, plunger.Balls(), "a bounce-back restores the ball to the count")

	// A second attempt must be able to install a fresh confirmation
	// without the first one leaking (ejectInProgressTarget was never set
	// for a mechanical eject, so cancellation cannot rely on it).
	require.NoError(t, plunger.SetupPlayerControlledEject(1, "", ""))
	switches.SetState("plunger1", false)
	switches.SetState("playfield1", true) // arbitrary: playfield has no switches, so this is a no-op
	assert.Equal(t, 0, plunger.Balls())
}
