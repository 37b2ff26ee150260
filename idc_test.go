package balldevice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-balldevice/internal/eventbus"
	"github.com/ehrlich-b/go-balldevice/internal/interfaces"
)

// TestNewMachineResolvesTargetsAfterSelfInit verifies two-phase
// construction: every device's own switch handlers are live (phase 1)
// before eject_targets are resolved and cross-device subscriptions wired
// (phase 2), so a device's own initial CountBalls is never influenced by
// a peer's handlers.
func TestNewMachineResolvesTargetsAfterSelfInit(t *testing.T) {
	bus := eventbus.NewBus()
	delays := eventbus.NewDelayScheduler()
	switches := NewMockSwitchController()
	coil := NewMockDriver()
	switches.SetState("trough1", true)

	cfgs := []Config{
		{Name: "trough", BallSwitches: []string{"trough1"}, EjectCoil: "trough_coil", EjectTargets: []string{"plunger"}},
		{Name: "plunger", BallSwitches: []string{"plunger1"}},
	}
	machine, err := NewMachine(cfgs, bus, delays, switches, func(Config) interfaces.Driver { return coil })
	require.NoError(t, err)

	trough := machine.Device("trough")
	plunger := machine.Device("plunger")
	require.Equal(t, 1, trough.Balls())
	require.Equal(t, 0, plunger.Balls())
	assert.Equal(t, plunger, trough.targets[0], "phase 2 must resolve eject_targets to live *Device pointers")
}

// TestNewMachineRejectsUnresolvableEjectTarget verifies a dangling
// eject_targets entry fails construction with a named, structured error
// rather than a nil-pointer panic down the line.
func TestNewMachineRejectsUnresolvableEjectTarget(t *testing.T) {
	bus := eventbus.NewBus()
	delays := eventbus.NewDelayScheduler()
	switches := NewMockSwitchController()
	coil := NewMockDriver()

	cfgs := []Config{
		{Name: "trough", EjectTargets: []string{"nowhere"}},
	}
	_, err := NewMachine(cfgs, bus, delays, switches, func(Config) interfaces.Driver { return coil })
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeDeviceNotFound))
	assert.Contains(t, err.Error(), "nowhere")
}

// TestNewMachineRejectsDuplicateDeviceName verifies two devices sharing a
// name fail construction rather than silently overwriting one another in
// the registry.
func TestNewMachineRejectsDuplicateDeviceName(t *testing.T) {
	bus := eventbus.NewBus()
	delays := eventbus.NewDelayScheduler()
	switches := NewMockSwitchController()
	coil := NewMockDriver()

	cfgs := []Config{
		{Name: "trough"},
		{Name: "trough"},
	}
	_, err := NewMachine(cfgs, bus, delays, switches, func(Config) interfaces.Driver { return coil })
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrCodeInvalidConfig))
}

// TestIDCClaimsAnnouncedArrivalEvenWithoutAPriorRequest is the regression
// test for the arrival-claim fix: a device receiving a directly-
// initiated (non-requested) delivery must still claim it via the
// ball_eject_attempt/ball_enter transit reconciliation, not treat it as
// unexpected and re-eject it.
func TestIDCClaimsAnnouncedArrivalEvenWithoutAPriorRequest(t *testing.T) {
	bus := eventbus.NewBus()
	delays := eventbus.NewDelayScheduler()
	switches := NewMockSwitchController()
	coil := NewMockDriver()
	switches.SetState("trough1", true)

	cfgs := []Config{
		{Name: "trough", BallSwitches: []string{"trough1"}, EjectCoil: "trough_coil", EjectTargets: []string{"plunger"}, Tags: []string{"trough"}},
		{Name: "plunger", BallSwitches: []string{"plunger1"}, EjectTargets: []string{"playfield"}, EjectCoil: "plunger_coil"},
		{Name: "playfield", Tags: []string{"playfield"}},
	}
	machine, err := NewMachine(cfgs, bus, delays, switches, func(Config) interfaces.Driver { return coil })
	require.NoError(t, err)
	trough := machine.Device("trough")
	plunger := machine.Device("plunger")
	require.Equal(t, 0, plunger.numBallsRequested, "plunger never called RequestBall for this delivery")

	require.NoError(t, trough.Eject(1, "", 0))
	switches.SetState("trough1", false)
	switches.SetState("plunger1", true)

	assert.Equal(t, 1, plunger.Balls())
	assert.Equal(t, 1, coil.PulseCalls, "plunger must not immediately re-eject the ball it just claimed")
	assert.Equal(t, 0, plunger.numBallsInTransit, "the claim listener must have reconciled transit back to zero")
}

// TestIDCTransitListenerTornDownOnceTransitSettles verifies the one-shot
// ball_enter reconciliation handler removes itself once no transit
// remains outstanding, so it does not linger and mis-claim a later,
// unrelated arrival.
func TestIDCTransitListenerTornDownOnceTransitSettles(t *testing.T) {
	bus := eventbus.NewBus()
	delays := eventbus.NewDelayScheduler()
	switches := NewMockSwitchController()
	coil := NewMockDriver()
	switches.SetState("trough1", true)

	cfgs := []Config{
		{Name: "trough", BallSwitches: []string{"trough1"}, EjectCoil: "trough_coil", EjectTargets: []string{"plunger"}, Tags: []string{"trough"}},
		{Name: "plunger", BallSwitches: []string{"plunger1"}},
	}
	machine, err := NewMachine(cfgs, bus, delays, switches, func(Config) interfaces.Driver { return coil })
	require.NoError(t, err)
	trough := machine.Device("trough")
	plunger := machine.Device("plunger")

	require.NoError(t, trough.Eject(1, "", 0))
	switches.SetState("trough1", false)
	switches.SetState("plunger1", true)
	require.Equal(t, 0, plunger.idcReceiveKey, "the claim listener removes itself once transit settles")

	// A later, unrelated arrival at plunger (no attempt announced) is
	// unclaimed and, since plunger has no eject targets, simply kept.
	switches.SetState("plunger1", false)
	switches.SetState("plunger1", true)
	assert.Equal(t, 1, plunger.Balls())
}

// TestOnSourceEjectFailedRetiresTransitWithoutAnArrival verifies a source
// abandoning an attempt (confirmation timeout/permanent failure) decrements
// the target's transit counter and tears down the claim listener even
// though no ball_enter ever arrived.
func TestOnSourceEjectFailedRetiresTransitWithoutAnArrival(t *testing.T) {
	bus := eventbus.NewBus()
	delays := eventbus.NewDelayScheduler()
	switches := NewMockSwitchController()
	coil := NewMockDriver()
	switches.SetState("trough1", true)

	cfgs := []Config{
		{
			Name:             "trough",
			BallSwitches:     []string{"trough1"},
			EjectCoil:        "trough_coil",
			EjectTargets:     []string{"plunger"},
			MaxEjectAttempts: 1,
			Tags:             []string{"trough"},
		},
		{Name: "plunger", BallSwitches: []string{"plunger1"}},
	}
	machine, err := NewMachine(cfgs, bus, delays, switches, func(Config) interfaces.Driver { return coil })
	require.NoError(t, err)
	trough := machine.Device("trough")
	plunger := machine.Device("plunger")

	require.NoError(t, trough.Eject(1, "", 0))
	assert.Equal(t, 1, plunger.numBallsInTransit)
	assert.NotEqual(t, 0, plunger.idcReceiveKey)

	trough.EjectFailed(true, false) // exhausts the single-attempt budget: permanent failure

	assert.Equal(t, 0, plunger.numBallsInTransit, "a permanently failed attempt must retire the transit it announced")
	assert.Equal(t, 0, plunger.idcReceiveKey, "the claim listener must be torn down once transit settles to zero")
}
