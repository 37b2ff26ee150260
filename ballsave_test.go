package balldevice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-balldevice/internal/eventbus"
	"github.com/ehrlich-b/go-balldevice/internal/interfaces"
)

func buildBallSaveSource(t *testing.T) (*Machine, *eventbus.Bus, *eventbus.DelayScheduler, *MockDriver) {
	t.Helper()
	bus := eventbus.NewBus()
	delays := eventbus.NewDelayScheduler()
	switches := NewMockSwitchController()
	coil := NewMockDriver()
	switches.SetState("trough1", true)
	switches.SetState("trough2", true)
	switches.SetState("trough3", true)

	cfgs := []Config{
		{
			Name:         "trough",
			BallSwitches: []string{"trough1", "trough2", "trough3"},
			EjectCoil:    "trough_coil",
			EjectTargets: []string{"playfield"},
			Tags:         []string{"trough"},
		},
		{Name: "playfield", Tags: []string{"playfield"}},
	}
	machine, err := NewMachine(cfgs, bus, delays, switches, func(Config) interfaces.Driver { return coil })
	require.NoError(t, err)
	return machine, bus, delays, coil
}

// TestBallSaveSwallowsDrainAndReplacesBall exercises SPEC_FULL.md §8
// scenario 6: an armed ball-save swallows a drain, ejects a replacement
// from its source, and depletes its budget to self-disable.
func TestBallSaveSwallowsDrainAndReplacesBall(t *testing.T) {
	machine, bus, delays, coil := buildBallSaveSource(t)
	trough := machine.Device("trough")

	bs := NewBallSave(BallSaveConfig{
		Name:        "main",
		Source:      trough,
		ActiveTime:  5 * time.Second,
		GracePeriod: time.Second,
		BallsToSave: 2,
		AutoLaunch:  true,
	}, bus, delays)

	var enabledCount int
	bus.AddHandler(evBallSaveEnabled("main"), 0, func(map[string]any) { enabledCount++ })
	bs.Enable()
	assert.True(t, bs.Enabled())
	assert.Equal(t, 1, enabledCount)
	assert.Equal(t, 2, bs.SavesRemaining())
	assert.True(t, delays.Pending(delayGracePeriod("main")))

	var final1 map[string]any
	bus.PostRelay(evBallDrain(), map[string]any{"balls": 1, "balls_in_play": 1}, func(p map[string]any) {
		final1 = p
	})
	assert.Equal(t, 0, final1["balls"])
	assert.Equal(t, 1, bs.SavesRemaining())
	assert.Equal(t, 1, coil.PulseCalls)
	assert.Equal(t, StateAttempting, trough.State())
	trough.ejectSuccess() // resolve the in-flight attempt so the next Eject can proceed

	var final2 map[string]any
	bus.PostRelay(evBallDrain(), map[string]any{"balls": 1, "balls_in_play": 1}, func(p map[string]any) {
		final2 = p
	})
	assert.Equal(t, 0, final2["balls"])
	assert.Equal(t, 0, bs.SavesRemaining())
	assert.False(t, bs.Enabled(), "budget exhausted should self-disable")
	assert.Equal(t, 2, coil.PulseCalls)
	trough.ejectSuccess()

	// Budget exhausted and disabled: a further drain passes through
	// untouched.
	var final3 map[string]any
	bus.PostRelay(evBallDrain(), map[string]any{"balls": 1, "balls_in_play": 1}, func(p map[string]any) {
		final3 = p
	})
	assert.Equal(t, 1, final3["balls"])
	assert.Equal(t, 2, coil.PulseCalls, "disabled ball-save must not eject again")
}

// TestBallSaveReenableResetsBudget verifies the idempotence property from
// SPEC_FULL.md §8: Disable leaves the remaining budget untouched, but a
// fresh Enable always resets to the configured total.
func TestBallSaveReenableResetsBudget(t *testing.T) {
	_, bus, delays, _ := buildBallSaveSource(t)
	bs := NewBallSave(BallSaveConfig{Name: "main", Source: nil, ActiveTime: time.Second, BallsToSave: 3}, bus, delays)

	bs.Enable()
	bs.savesRemaining = 1 // simulate two saves already consumed
	bs.Disable()
	assert.Equal(t, 1, bs.SavesRemaining(), "Disable must not touch the budget")
	assert.False(t, delays.Pending(delayGracePeriod("main")))
	assert.False(t, delays.Pending(delayHurryUp("main")))

	bs.Enable()
	assert.Equal(t, 3, bs.SavesRemaining(), "Enable always resets the budget")
}

// TestBallSaveHurryUpScheduledBeforeGracePeriod verifies the hurry-up
// timer, when configured, is scheduled to fire before active_time elapses.
func TestBallSaveHurryUpScheduledBeforeGracePeriod(t *testing.T) {
	_, bus, delays, _ := buildBallSaveSource(t)
	bs := NewBallSave(BallSaveConfig{
		Name:        "main",
		ActiveTime:  10 * time.Second,
		HurryUpTime: 3 * time.Second,
		BallsToSave: UnlimitedBallSaves,
	}, bus, delays)

	bs.Enable()
	assert.True(t, delays.Pending(delayHurryUp("main")))
	assert.True(t, delays.Pending(delayGracePeriod("main")))
}

// TestBallSaveIgnoresDrainWithNoBallsInPlay confirms an idle table (no ball
// actually in play) does not consume the save budget.
func TestBallSaveIgnoresDrainWithNoBallsInPlay(t *testing.T) {
	machine, bus, delays, coil := buildBallSaveSource(t)
	bs := NewBallSave(BallSaveConfig{Name: "main", Source: machine.Device("trough"), ActiveTime: time.Second, BallsToSave: 1}, bus, delays)
	bs.Enable()

	var final map[string]any
	bus.PostRelay(evBallDrain(), map[string]any{"balls": 1, "balls_in_play": 0}, func(p map[string]any) {
		final = p
	})
	assert.Equal(t, 1, final["balls"], "no balls in play means nothing to save, drain passes through")
	assert.Equal(t, 1, bs.SavesRemaining())
	assert.Equal(t, 0, coil.PulseCalls)
}
