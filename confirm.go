package balldevice

import (
	"time"

	"github.com/ehrlich-b/go-balldevice/internal/constants"
)

// confirmHandlerPriority is the bus priority confirmation handlers
// register at, ahead of ordinary rule/scoring subscribers so a
// confirmed eject resolves before anything else reacts to the arrival.
const confirmHandlerPriority = 100

// confirmStrategy is the sum type for the five eject-confirmation
// strategies selected by Config.ConfirmEjectType. install arms whatever
// handlers/timers the strategy needs against the source device d and
// its target, invoking onSuccess once confirmed and onTimeout (if
// timeout > 0) if the deadline elapses first; cancel tears all of them
// back down, whether or not the attempt concluded. Strategies are
// deliberately ignorant of which caller installed them (the automatic
// engine or a mechanical eject), so they carry their own target
// reference rather than reaching back through Device.ejectInProgressTarget.
type confirmStrategy interface {
	install(d *Device, target *Device, timeout time.Duration, onSuccess, onTimeout func())
	cancel(d *Device)
}

// newConfirmStrategy builds the strategy named by typ, defaulting to
// targetConfirm for an empty/unrecognized value (config.go validates
// this properly at load time; this fallback only protects devices built
// directly via newDevice in tests).
func newConfirmStrategy(typ ConfirmType, switchName, eventName string) confirmStrategy {
	switch typ {
	case ConfirmSwitch:
		return &switchConfirm{switchName: switchName}
	case ConfirmEvent:
		return &eventConfirm{eventName: eventName}
	case ConfirmCount:
		return &countConfirm{}
	case ConfirmFake:
		return &fakeConfirm{}
	default:
		return &targetConfirm{}
	}
}

// installConfirmation (re)builds d.confirm from its configured type and
// installs it against target with the given timeout, wired to the
// automatic engine's ejectSuccess/EjectFailed. A zero timeout arms no
// deadline timer (used for player-controlled ejects, which never time
// out on their own).
func (d *Device) installConfirmation(target *Device, timeout time.Duration) {
	d.installConfirmationWithCallbacks(target, timeout, d.ejectSuccess, func() { d.EjectFailed(true, false) })
}

// installConfirmationWithCallbacks is the general form used by both the
// automatic engine and mechanical eject, which resolve success/timeout
// differently.
func (d *Device) installConfirmationWithCallbacks(target *Device, timeout time.Duration, onSuccess, onTimeout func()) {
	d.confirm = newConfirmStrategy(d.cfg.ConfirmEjectType, d.cfg.ConfirmSwitchName, d.cfg.ConfirmEventName)
	d.confirm.install(d, target, timeout, onSuccess, onTimeout)
}

// cancelConfirmation tears down whatever the active strategy installed.
// Safe to call with no strategy installed.
func (d *Device) cancelConfirmation() {
	if d.confirm == nil {
		return
	}
	d.confirm.cancel(d)
	d.confirm = nil
	d.delays.Cancel(delayEjectTimeout(d.cfg.Name))
	for _, k := range d.switchHandlerKeys {
		d.switchCtrl.RemoveSwitchHandler(k)
	}
	d.switchHandlerKeys = nil
}

// targetConfirm succeeds when the target reports ball_enter, handled at
// confirmHandlerPriority. The target's IDC transit listener shares that
// priority and is registered earlier (when the attempt is announced), so
// it runs first. Against a playfield target with ball switches it
// additionally accepts the first configured playfield switch going
// active; count-based confirmation is not used for playfield targets.
type targetConfirm struct {
	target    *Device
	busKey    int
	switchKey int
}

func (c *targetConfirm) install(d *Device, target *Device, timeout time.Duration, onSuccess, onTimeout func()) {
	c.target = target
	c.busKey = target.bus.AddHandler(evBallEnter(target.cfg.Name), confirmHandlerPriority, func(map[string]any) {
		onSuccess()
	})
	target.busHandlerKeys = append(target.busHandlerKeys, c.busKey)

	if target.cfg.IsPlayfield && len(target.cfg.BallSwitches) > 0 {
		c.switchKey = target.switchCtrl.AddSwitchHandler(target.cfg.BallSwitches[0], true, 0, func() {
			onSuccess()
		})
		target.switchHandlerKeys = append(target.switchHandlerKeys, c.switchKey)
	}

	if timeout > 0 && onTimeout != nil {
		d.delays.Schedule(delayEjectTimeout(d.cfg.Name), timeout, onTimeout)
	}
}

func (c *targetConfirm) cancel(d *Device) {
	if c.target == nil {
		return
	}
	c.target.bus.RemoveHandler(c.busKey)
	if c.switchKey != 0 {
		c.target.switchCtrl.RemoveSwitchHandler(c.switchKey)
	}
}

// switchConfirm succeeds when a specific named switch (typically on the
// target, but addressed globally) goes active.
type switchConfirm struct {
	switchName string
	key        int
}

func (c *switchConfirm) install(d *Device, target *Device, timeout time.Duration, onSuccess, onTimeout func()) {
	c.key = d.switchCtrl.AddSwitchHandler(c.switchName, true, 0, func() {
		onSuccess()
	})
	d.switchHandlerKeys = append(d.switchHandlerKeys, c.key)
	if timeout > 0 && onTimeout != nil {
		d.delays.Schedule(delayEjectTimeout(d.cfg.Name), timeout, onTimeout)
	}
}

func (c *switchConfirm) cancel(d *Device) {
	d.switchCtrl.RemoveSwitchHandler(c.key)
}

// eventConfirm succeeds when a named event is published on the bus,
// e.g. a rule elsewhere in the machine signaling a captured/scored ball.
type eventConfirm struct {
	eventName string
	key       int
}

func (c *eventConfirm) install(d *Device, target *Device, timeout time.Duration, onSuccess, onTimeout func()) {
	c.key = d.bus.AddHandler(c.eventName, confirmHandlerPriority, func(map[string]any) {
		onSuccess()
	})
	d.busHandlerKeys = append(d.busHandlerKeys, c.key)
	if timeout > 0 && onTimeout != nil {
		d.delays.Schedule(delayEjectTimeout(d.cfg.Name), timeout, onTimeout)
	}
}

func (c *eventConfirm) cancel(d *Device) {
	d.bus.RemoveHandler(c.key)
}

// countConfirm succeeds from within CountBalls itself: once the ball
// leaves (ejectedBallDidLeaveDevice latched) and the count settles back
// to delta==0, the device confirms its own eject without any external
// evidence — CountBalls calls onSuccess directly via confirmOnSuccess.
// It waits out exit_count_delay rather than latching on the raw switch
// edge, resolving the original source's open TODO (see SPEC_FULL.md §9)
// about honoring that delay for count confirmation.
type countConfirm struct{}

func (c *countConfirm) install(d *Device, target *Device, timeout time.Duration, onSuccess, onTimeout func()) {
	d.confirmOnSuccess = onSuccess
	if timeout > 0 && onTimeout != nil {
		d.delays.Schedule(delayEjectTimeout(d.cfg.Name), timeout, onTimeout)
	}
}

func (c *countConfirm) cancel(d *Device) {
	d.confirmOnSuccess = nil
}

// fakeConfirm succeeds unconditionally on a 1ms delay: used for
// captive/lock releases where no ball physically changes location that
// any switch or event could observe.
type fakeConfirm struct{}

func (c *fakeConfirm) install(d *Device, target *Device, timeout time.Duration, onSuccess, onTimeout func()) {
	d.delays.Schedule(delayFakeConfirm(d.cfg.Name), constants.FakeConfirmDelay, func() {
		onSuccess()
	})
}

func (c *fakeConfirm) cancel(d *Device) {
	d.delays.Cancel(delayFakeConfirm(d.cfg.Name))
}
