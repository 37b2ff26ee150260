package balldevice

import (
	"github.com/ehrlich-b/go-balldevice/internal/eventbus"
	"github.com/ehrlich-b/go-balldevice/internal/interfaces"
	"github.com/ehrlich-b/go-balldevice/internal/logging"
)

// idcHandlerPriority is the priority the coordinator's own bookkeeping
// handlers register at: above ordinary rule subscribers (so transit
// counters are consistent before anything else reacts) but below
// confirmation handlers, which must resolve an attempt first. The
// exception is the ball_enter transit listener installed by
// onSourceEjectAttempt, which registers at confirmHandlerPriority.
const idcHandlerPriority = 50

// Machine owns every device in a configuration and the shared
// collaborators (event bus, delay scheduler, switch controller, clock,
// logger, observer) they are built against. Per the registry-owns-
// devices design, a Device never holds a reference to another Device
// except through Machine-resolved pointers filled in at phase 2;
// nothing reaches for a package-level global.
type Machine struct {
	bus        interfaces.EventBus
	delays     interfaces.DelayScheduler
	switchCtrl interfaces.SwitchController
	clock      interfaces.Clock
	log        interfaces.Logger
	obs        interfaces.Observer

	devices map[string]*Device
	order   []string
}

// MachineOption configures optional Machine collaborators; omitted
// options fall back to concrete defaults (SystemClock, the default
// stderr logger from logging.NewLogger(nil), and NoOpObserver).
type MachineOption func(*Machine)

func WithClock(c interfaces.Clock) MachineOption           { return func(m *Machine) { m.clock = c } }
func WithLogger(l interfaces.Logger) MachineOption          { return func(m *Machine) { m.log = l } }
func WithObserver(o interfaces.Observer) MachineOption       { return func(m *Machine) { m.obs = o } }
func WithSwitchController(s interfaces.SwitchController) MachineOption {
	return func(m *Machine) { m.switchCtrl = s }
}

// NewMachine builds every device from cfgs (phase 1: self-init, each
// device binds handlers for its own switches only) and then resolves
// eject_targets across the whole set and wires the IDC's cross-device
// subscriptions (phase 2: cross-init). Construction fails fast with
// ErrCodeDeviceNotFound if any eject target name is unresolvable.
func NewMachine(cfgs []Config, bus interfaces.EventBus, delays interfaces.DelayScheduler, switchCtrl interfaces.SwitchController, driverFor func(cfg Config) interfaces.Driver, opts ...MachineOption) (*Machine, error) {
	m := &Machine{
		bus:        bus,
		delays:     delays,
		switchCtrl: switchCtrl,
		devices:    make(map[string]*Device, len(cfgs)),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.clock == nil {
		m.clock = eventbus.SystemClock{}
	}
	if m.log == nil {
		m.log = logging.NewLogger(nil)
	}
	if m.obs == nil {
		m.obs = NoOpObserver{}
	}

	for _, cfg := range cfgs {
		if _, exists := m.devices[cfg.Name]; exists {
			return nil, NewDeviceError("NewMachine", cfg.Name, ErrCodeInvalidConfig, "duplicate device name")
		}
		d := newDevice(cfg)
		d.machine = m
		d.bus = m.bus
		d.delays = m.delays
		d.switchCtrl = m.switchCtrl
		d.clock = m.clock
		d.log = m.log
		d.obs = m.obs
		if driverFor != nil {
			d.ejectDriver = driverFor(cfg)
		}
		m.devices[cfg.Name] = d
		m.order = append(m.order, cfg.Name)
	}

	for _, name := range m.order {
		m.devices[name].selfInit()
	}

	for _, name := range m.order {
		d := m.devices[name]
		for _, targetName := range d.cfg.EjectTargets {
			t, ok := m.devices[targetName]
			if !ok {
				return nil, NewHandoffError("NewMachine", d.cfg.Name, targetName, ErrCodeDeviceNotFound, "unresolvable eject target")
			}
			d.targets = append(d.targets, t)
		}
	}

	for _, name := range m.order {
		m.devices[name].crossInit()
	}

	for _, name := range m.order {
		m.devices[name].CountBalls()
	}

	return m, nil
}

// Device returns the named device, or nil if it does not exist.
func (m *Machine) Device(name string) *Device { return m.devices[name] }

// Devices returns every device in configuration order.
func (m *Machine) Devices() []*Device {
	out := make([]*Device, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.devices[name])
	}
	return out
}

// Stop quiesces every device, in configuration order.
func (m *Machine) Stop() {
	for _, name := range m.order {
		m.devices[name].Stop()
	}
}

// selfInit binds handlers sourced purely from this device's own
// configuration (phase 1): ball-switch and jam-switch debounce edges
// feed CountBalls, a bare entrance switch feeds the no-ball-switches
// fallback, and (if armed) a ball-switch release can trigger a
// mechanical eject.
func (d *Device) selfInit() {
	for _, sw := range d.cfg.BallSwitches {
		// Bound for the device's whole lifetime; Stop() never removes
		// these; only ephemeral per-attempt handlers land in
		// switchHandlerKeys.
		d.switchCtrl.AddSwitchHandler(sw, true, d.cfg.EntranceCountDelay, func() {
			d.CountBalls()
		})
		d.switchCtrl.AddSwitchHandler(sw, false, d.cfg.ExitCountDelay, func() {
			d.CountBalls()
		})
		d.switchCtrl.AddSwitchHandler(sw, false, d.cfg.MechanicalEjectTriggerTime, func() {
			d.onMechanicalEjectSwitchReleased()
		})
		if d.obs != nil {
			obs := d.obs
			name := d.cfg.Name
			swName := sw
			d.switchCtrl.AddSwitchHandler(swName, true, 0, func() { obs.ObserveSwitchTransition(name, swName, true) })
			d.switchCtrl.AddSwitchHandler(swName, false, 0, func() { obs.ObserveSwitchTransition(name, swName, false) })
		}
	}

	if d.cfg.JamSwitch != "" {
		d.switchCtrl.AddSwitchHandler(d.cfg.JamSwitch, true, 0, func() {
			d.numJamSwitchCount++
		})
	}

	if d.cfg.EntranceSwitch != "" && len(d.cfg.BallSwitches) == 0 {
		d.switchCtrl.AddSwitchHandler(d.cfg.EntranceSwitch, true, d.cfg.EntranceCountDelay, func() {
			d.onEntranceSwitchActivated()
		})
	}
}

// crossInit wires the IDC's cross-device subscriptions (phase 2): each
// device listens to its resolved targets' ball_request/ok_to_receive,
// and to each source that names it as an eject target for attempt/
// failure bookkeeping (SPEC_FULL.md §4.5).
// These subscriptions are structural (bound for the device's whole
// lifetime, like selfInit's switch handlers) and are deliberately not
// tracked in busHandlerKeys: Stop() quiesces in-flight attempt state,
// not a device's permanent wiring to its peers.
func (d *Device) crossInit() {
	for _, t := range d.targets {
		d.bus.AddHandler(evBallRequest(t.cfg.Name), idcHandlerPriority, func(map[string]any) {
			d.doEject()
		})
		d.bus.AddHandler(evOkToReceive(t.cfg.Name), idcHandlerPriority, func(map[string]any) {
			d.doEject()
		})
	}

	for _, source := range d.machine.Devices() {
		isSource := false
		for _, t := range source.targets {
			if t == d {
				isSource = true
				break
			}
		}
		if !isSource {
			continue
		}
		src := source
		d.bus.AddHandler(evEjectAttempt(src.cfg.Name), idcHandlerPriority, func(payload map[string]any) {
			d.onSourceEjectAttempt(src, payload)
		})
		d.bus.AddHandler(evEjectFailed(src.cfg.Name), idcHandlerPriority, func(payload map[string]any) {
			d.onSourceEjectFailed(src, payload)
		})
	}
}

// onSourceEjectAttempt increments num_balls_in_transit for a send
// announced by source, and installs a high-priority ball_enter listener
// (if not already installed) that reconciles num_balls_requested/
// num_balls_in_transit against the actual arrival, relaying any excess
// as unexpected (§4.5). This installs for every announced attempt, not
// only while we were the one asking: an upstream device is free to feed
// balls we never requested, and an unclaimed arrival is exactly the
// "unexpected balls" case handleUnexpectedBalls exists for.
func (d *Device) onSourceEjectAttempt(source *Device, payload map[string]any) {
	balls, _ := payload["balls"].(int)
	if balls <= 0 {
		balls = 1
	}
	d.numBallsInTransit += balls

	if d.idcReceiveKey == 0 {
		d.idcReceiveKey = d.bus.AddHandler(evBallEnter(d.cfg.Name), confirmHandlerPriority, func(payload map[string]any) {
			d.onOwnBallEnterForTransit(payload)
		})
		d.busHandlerKeys = append(d.busHandlerKeys, d.idcReceiveKey)
	}
}

// onOwnBallEnterForTransit is the reconciliation handler installed by
// onSourceEjectAttempt for as long as any transit remains outstanding.
// The claim is bounded by num_balls_in_transit, the authoritative count
// of balls a source has announced but not yet confirmed arrived;
// num_balls_requested is reduced alongside it but never below zero,
// since an arrival can be legitimately unrequested.
func (d *Device) onOwnBallEnterForTransit(payload map[string]any) {
	arrived, _ := payload["balls"].(int)
	claim := arrived
	if claim > d.numBallsInTransit {
		claim = d.numBallsInTransit
	}
	reqClaim := claim
	if reqClaim > d.numBallsRequested {
		reqClaim = d.numBallsRequested
	}
	d.numBallsRequested -= reqClaim
	d.numBallsInTransit -= claim
	payload["balls"] = arrived - claim

	if d.numBallsInTransit <= 0 && d.idcReceiveKey != 0 {
		d.bus.RemoveHandler(d.idcReceiveKey)
		d.idcReceiveKey = 0
	}
}

// onSourceEjectFailed decrements num_balls_in_transit for an attempt
// source abandoned, tearing down the reconciliation listener once no
// transit remains outstanding.
func (d *Device) onSourceEjectFailed(source *Device, payload map[string]any) {
	balls, _ := payload["balls"].(int)
	if balls <= 0 {
		balls = 1
	}
	d.numBallsInTransit -= balls
	if d.numBallsInTransit < 0 {
		d.numBallsInTransit = 0
	}
	if d.numBallsInTransit == 0 && d.idcReceiveKey != 0 {
		d.bus.RemoveHandler(d.idcReceiveKey)
		d.idcReceiveKey = 0
	}
}
