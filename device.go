// Package balldevice implements the ball-device coordination core of a
// pinball machine controller: the switch-to-count mapper, the eject
// engine, and the inter-device coordinator that hands balls between
// devices.
package balldevice

import (
	"container/list"
	"time"

	"github.com/ehrlich-b/go-balldevice/internal/constants"
	"github.com/ehrlich-b/go-balldevice/internal/interfaces"
)

// ConfirmType selects one of the five eject-confirmation strategies.
type ConfirmType string

const (
	ConfirmTarget ConfirmType = "target"
	ConfirmSwitch ConfirmType = "switch"
	ConfirmEvent  ConfirmType = "event"
	ConfirmCount  ConfirmType = "count"
	ConfirmFake   ConfirmType = "fake"
)

// Config is a single device's static configuration, normally produced by
// LoadMachineConfig from a TOML machine file.
type Config struct {
	Name string

	// Capacity is the max balls this device can hold. Zero means "derive
	// from len(BallSwitches)".
	Capacity int

	BallSwitches   []string
	JamSwitch      string
	EntranceSwitch string

	EntranceCountDelay time.Duration
	ExitCountDelay     time.Duration

	EjectCoil           string
	HoldCoil            string
	HoldCoilReleaseTime time.Duration

	EjectTargets []string
	EjectTimeouts map[string]time.Duration

	ConfirmEjectType  ConfirmType
	ConfirmSwitchName string
	ConfirmEventName  string

	MaxEjectAttempts int
	BallsPerEject    int

	MechanicalEject            bool
	MechanicalEjectTriggerTime time.Duration
	EjectEvents                []string

	CapturesFrom string
	Tags         []string

	// IsPlayfield marks a degenerate device with effectively unlimited
	// capacity, set automatically when Tags contains "playfield".
	IsPlayfield bool
}

// hasTag reports whether tag is present in cfg.Tags.
func (cfg Config) hasTag(tag string) bool {
	for _, t := range cfg.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ejectRequest is one entry of the eject_queue: a target and the
// confirmation deadline to use for the attempt against it.
type ejectRequest struct {
	target  *Device
	timeout time.Duration
}

// Device is a single ball device's runtime state plus its static Config.
// A Device is driven entirely by its Machine's shared event bus, delay
// scheduler, and switch controller; it is deliberately not internally
// locked, because the concurrency model (SPEC_FULL.md §5) guarantees
// exactly one goroutine ever touches it.
type Device struct {
	cfg     Config
	machine *Machine

	switchCtrl  interfaces.SwitchController
	ejectDriver interfaces.Driver
	bus         interfaces.EventBus
	delays      interfaces.DelayScheduler
	clock       interfaces.Clock
	log         interfaces.Logger
	obs         interfaces.Observer

	// SCM state
	balls              int
	valid              bool
	needFirstTimeCount bool

	// EE state
	ejectQueue                *list.List // of *ejectRequest
	ejectInProgressTarget     *Device
	numBallsEjecting          int
	numEjectAttempts          int
	numJamSwitchCount         int
	numBallsRequested         int
	numBallsInTransit         int
	ejectedBallDidLeaveDevice bool
	attemptStart              time.Time
	attemptID                 string

	// confirmation
	confirm          confirmStrategy
	confirmOnSuccess func()

	// mechanical eject state
	mechanicalEjectInProgress int
	numMechanicalAttempts     int
	waitingForEjectTrigger    bool
	manualEjectTarget         *Device
	mechanicalTriggerKey      int

	// hold-coil release guard
	holdReleaseInProgress bool

	// IDC bookkeeping: handler key for the one-shot ball_enter listener
	// installed when an upstream eject attempt toward this device is
	// announced, 0 if none installed.
	idcReceiveKey int

	// targets resolved at init phase 2, parallel to cfg.EjectTargets.
	targets []*Device

	// usesHoldCoil tracks which coil config drives ejectDriver, to
	// distinguish eject-coil (pulse) from hold-coil (enable/disable)
	// behavior in performEject.
	usesHoldCoil bool

	// busHandlerKeys / switchHandlerKeys track ephemeral subscriptions
	// installed for the current attempt (one-shot ball-switch latches,
	// confirmation handlers), cleared on Stop()/cancelConfirmation.
	// Handlers bound once during self-init (phase 1) are never removed.
	busHandlerKeys    []int
	switchHandlerKeys []int
}

// Name returns the device's configured name.
func (d *Device) Name() string { return d.cfg.Name }

// Balls returns the last valid ball count.
func (d *Device) Balls() int { return d.balls }

// Capacity returns the device's configured or derived capacity.
func (d *Device) Capacity() int { return d.cfg.Capacity }

// AdditionalBallCapacity returns how many more balls this device can
// accept right now, accounting for balls already promised by upstream
// requests. A device with an eject in progress does not accept new
// balls toward capacity (invariant 3), so it reports zero.
func (d *Device) AdditionalBallCapacity() int {
	if d.ejectInProgressTarget != nil {
		return 0
	}
	if d.cfg.IsPlayfield {
		return 1 << 30
	}
	room := d.cfg.Capacity - d.balls - d.numBallsRequested - d.numBallsInTransit
	if room < 0 {
		return 0
	}
	return room
}

func newDevice(cfg Config) *Device {
	if cfg.Capacity == 0 {
		cfg.Capacity = len(cfg.BallSwitches)
	}
	if cfg.EntranceCountDelay == 0 {
		cfg.EntranceCountDelay = constants.DefaultEntranceCountDelay
	}
	if cfg.ExitCountDelay == 0 {
		cfg.ExitCountDelay = constants.DefaultExitCountDelay
	}
	if cfg.HoldCoilReleaseTime == 0 {
		cfg.HoldCoilReleaseTime = constants.DefaultHoldCoilReleaseTime
	}
	if cfg.MechanicalEjectTriggerTime == 0 {
		cfg.MechanicalEjectTriggerTime = constants.DefaultMechanicalEjectTriggerTime
	}
	if cfg.BallsPerEject == 0 {
		cfg.BallsPerEject = constants.SingleBallPerEject
	}
	if cfg.ConfirmEjectType == "" {
		cfg.ConfirmEjectType = ConfirmTarget
	}
	cfg.IsPlayfield = cfg.hasTag("playfield")

	return &Device{
		cfg:                cfg,
		ejectQueue:         list.New(),
		needFirstTimeCount: true,
		usesHoldCoil:       cfg.HoldCoil != "",
	}
}

// timeoutFor returns the configured confirmation deadline for target,
// falling back to the package default when unset.
func (d *Device) timeoutFor(target *Device) time.Duration {
	if d.cfg.EjectTimeouts != nil {
		if to, ok := d.cfg.EjectTimeouts[target.Name()]; ok && to > 0 {
			return to
		}
	}
	return constants.DefaultEjectTimeout
}

// defaultTarget returns the first configured eject target.
func (d *Device) defaultTarget() (*Device, error) {
	if len(d.targets) == 0 {
		return nil, NewDeviceError("Eject", d.cfg.Name, ErrCodeInvalidConfig, "no eject targets configured")
	}
	return d.targets[0], nil
}

// resolveTarget looks up name among d's configured targets, or returns
// the default target if name is empty.
func (d *Device) resolveTarget(name string) (*Device, error) {
	if name == "" {
		return d.defaultTarget()
	}
	for _, t := range d.targets {
		if t.Name() == name {
			return t, nil
		}
	}
	return nil, NewHandoffError("Eject", d.cfg.Name, name, ErrCodeDeviceNotFound, "unresolvable eject target")
}

// Stop clears the eject queue, cancels any in-flight confirmation, and
// recounts balls. It quiesces this device only; peer state is untouched.
func (d *Device) Stop() {
	d.ejectQueue.Init()
	d.cancelConfirmation()
	d.ejectInProgressTarget = nil
	d.numBallsEjecting = 0
	d.mechanicalEjectInProgress = 0
	d.waitingForEjectTrigger = false
	d.delays.Cancel(delayHoldRelease(d.cfg.Name))
	d.delays.Cancel(delayFakeConfirm(d.cfg.Name))
	for _, k := range d.busHandlerKeys {
		d.bus.RemoveHandler(k)
	}
	d.busHandlerKeys = nil
	for _, k := range d.switchHandlerKeys {
		d.switchCtrl.RemoveSwitchHandler(k)
	}
	d.switchHandlerKeys = nil
	d.CountBalls()
}
