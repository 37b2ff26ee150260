package balldevice

import (
	"time"

	"github.com/ehrlich-b/go-balldevice/internal/interfaces"
)

// drainHandlerPriority is the priority the ball-save adjunct's
// ball_drain relay handler registers at: high enough to swallow a
// drain before any tilt/game-over bookkeeping sees it.
const drainHandlerPriority = 200

// BallSaveConfig configures one ball-save adjunct instance (SPEC_FULL.md
// §4.6), supplemented from original_source/mpf/devices/ball_save.py.
type BallSaveConfig struct {
	Name string

	// Source is the playfield device a saved ball is returned to.
	Source *Device

	ActiveTime time.Duration
	GracePeriod time.Duration
	HurryUpTime time.Duration

	// BallsToSave is the save budget; -1 means unlimited.
	BallsToSave int

	// AutoLaunch requests a ball automatically rather than waiting for
	// the player to plunge manually.
	AutoLaunch bool
}

// BallSave is the ball-save adjunct: while enabled it swallows
// ball_drain events and returns a replacement ball to its source
// playfield, up to its configured budget.
type BallSave struct {
	cfg    BallSaveConfig
	bus    interfaces.EventBus
	delays interfaces.DelayScheduler

	enabled        bool
	savesRemaining int

	drainKey int
}

// NewBallSave builds a ball-save adjunct wired to bus/delays, disabled
// until Enable is called.
func NewBallSave(cfg BallSaveConfig, bus interfaces.EventBus, delays interfaces.DelayScheduler) *BallSave {
	return &BallSave{cfg: cfg, bus: bus, delays: delays, savesRemaining: cfg.BallsToSave}
}

// Enable arms the adjunct for ActiveTime, resetting saves_remaining to
// the configured budget (an explicit re-enable always resets it — a
// mid-game disable followed by Enable starts a clean budget, matching
// the idempotence property in SPEC_FULL.md §8).
func (bs *BallSave) Enable() {
	if bs.enabled {
		return
	}
	bs.enabled = true
	bs.savesRemaining = bs.cfg.BallsToSave

	bs.drainKey = bs.bus.AddHandler(evBallDrain(), drainHandlerPriority, bs.onBallDrain)

	bs.bus.Post(evBallSaveEnabled(bs.cfg.Name), nil)

	if bs.cfg.HurryUpTime > 0 && bs.cfg.HurryUpTime < bs.cfg.ActiveTime {
		hurryIn := bs.cfg.ActiveTime - bs.cfg.HurryUpTime
		bs.delays.Schedule(delayHurryUp(bs.cfg.Name), hurryIn, func() {
			bs.bus.Post(evBallSaveHurryUp(bs.cfg.Name), nil)
		})
	}

	bs.delays.Schedule(delayGracePeriod(bs.cfg.Name), bs.cfg.ActiveTime, func() {
		bs.bus.Post(evBallSaveGracePeriod(bs.cfg.Name), nil)
		bs.delays.Schedule(bs.cfg.Name+"_ball_save_disable", bs.cfg.GracePeriod, bs.Disable)
	})
}

// Disable tears down the adjunct immediately: both the hurry-up and
// grace-period named delays are cancelled so a later re-enable starts a
// clean timer pair, and saves_remaining is left untouched (only Enable
// resets it).
func (bs *BallSave) Disable() {
	if !bs.enabled {
		return
	}
	bs.enabled = false
	bs.bus.RemoveHandler(bs.drainKey)
	bs.delays.Cancel(delayHurryUp(bs.cfg.Name))
	bs.delays.Cancel(delayGracePeriod(bs.cfg.Name))
	bs.delays.Cancel(bs.cfg.Name + "_ball_save_disable")
	bs.bus.Post(evBallSaveDisabled(bs.cfg.Name), nil)
}

// onBallDrain is the high-priority ball_drain relay handler: while
// armed and the source playfield has balls in play, it swallows the
// drain (final payload reports balls: 0 to lower-priority handlers),
// replaces the ball, and — unless unlimited — decrements the budget,
// disabling itself once exhausted.
func (bs *BallSave) onBallDrain(payload map[string]any) {
	if !bs.enabled {
		return
	}
	ballsInPlay, _ := payload["balls_in_play"].(int)
	if ballsInPlay <= 0 {
		return
	}
	if bs.cfg.BallsToSave != -1 && bs.savesRemaining <= 0 {
		return
	}

	drained, _ := payload["balls"].(int)
	if drained <= 0 {
		drained = 1
	}
	payload["balls"] = 0
	bs.bus.Post(evBallSaveSaving(bs.cfg.Name), map[string]any{"source": bs.cfg.Source.Name(), "balls": drained})

	if bs.cfg.AutoLaunch {
		_ = bs.cfg.Source.Eject(1, "", 0)
	} else {
		_ = bs.cfg.Source.SetupPlayerControlledEject(1, "", "")
	}

	if bs.cfg.BallsToSave != -1 {
		bs.savesRemaining--
		if bs.savesRemaining <= 0 {
			bs.Disable()
		}
	}
}

// SavesRemaining reports the current save budget (-1 for unlimited).
func (bs *BallSave) SavesRemaining() int { return bs.savesRemaining }

// Enabled reports whether the adjunct is currently armed.
func (bs *BallSave) Enabled() bool { return bs.enabled }
