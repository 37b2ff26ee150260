package balldevice

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehrlich-b/go-balldevice/internal/constants"
)

// EjectState is a readable projection of the eject engine's state,
// derived from the runtime fields rather than stored redundantly: FAILED
// and PERMANENT_FAILURE are momentary — EjectFailed resolves into either
// QUEUED (retry) or IDLE (permanent failure) within the same call, so
// neither is ever an observable resting state.
type EjectState int

const (
	StateIdle EjectState = iota
	StateQueued
	StateAttempting
)

// State reports the device's current position in the eject lifecycle.
func (d *Device) State() EjectState {
	if d.ejectInProgressTarget != nil {
		return StateAttempting
	}
	if d.ejectQueue.Len() > 0 {
		return StateQueued
	}
	return StateIdle
}

// Eject appends balls copies of (target, timeout) to the eject queue and
// kicks the engine. An empty target resolves to the first configured
// eject target; a zero timeout resolves to the per-target configured
// value.
func (d *Device) Eject(balls int, target string, timeout time.Duration) error {
	if balls < 1 {
		return NewDeviceError("Eject", d.cfg.Name, ErrCodeInvalidConfig, "balls must be >= 1")
	}
	tgt, err := d.resolveTarget(target)
	if err != nil {
		return err
	}
	to := timeout
	if to == 0 {
		to = d.timeoutFor(tgt)
	}
	for i := 0; i < balls; i++ {
		d.ejectQueue.PushBack(&ejectRequest{target: tgt, timeout: to})
	}
	d.doEject()
	return nil
}

// EjectAll queues every ball currently held for target, returning false
// (and queuing nothing) if the device is empty.
func (d *Device) EjectAll(target string) (bool, error) {
	if d.balls <= 0 {
		return false, nil
	}
	return true, d.Eject(d.balls, target, 0)
}

// RequestBall asks upstream to deliver up to balls, clamped to the
// remaining room for promised-but-not-yet-arrived balls. It declines
// (returns 0) while an eject is in progress or the device has no spare
// capacity, and publishes a ball_request event naming this device for
// exactly the number actually requested.
func (d *Device) RequestBall(balls int) int {
	if d.ejectInProgressTarget != nil {
		return 0
	}
	room := d.cfg.Capacity - d.balls - d.numBallsRequested
	if room <= 0 {
		return 0
	}
	n := balls
	if n > room {
		n = room
	}
	if n <= 0 {
		return 0
	}
	d.numBallsRequested += n
	d.bus.Post(evBallRequest(d.cfg.Name), map[string]any{"balls": n})
	return n
}

// doEject drives the QUEUED -> ATTEMPTING transition (SPEC_FULL.md
// §4.2). It is re-entrant-safe: calling it with an attempt already in
// progress, or an empty queue, is a no-op.
func (d *Device) doEject() {
	if d.ejectQueue.Len() == 0 || d.ejectInProgressTarget != nil {
		return
	}

	if d.balls == 0 && d.numBallsInTransit == 0 {
		d.RequestBall(1)
		return
	}

	frontElem := d.ejectQueue.Front()
	front := frontElem.Value.(*ejectRequest)
	if front.target.AdditionalBallCapacity() == 0 {
		// Wait for the target's ok_to_receive before retrying.
		return
	}
	d.ejectQueue.Remove(frontElem)

	d.ejectInProgressTarget = front.target
	d.numEjectAttempts++

	if d.cfg.JamSwitch != "" {
		d.numJamSwitchCount = 0
		if d.switchCtrl.IsActive(d.cfg.JamSwitch, 0) {
			d.numJamSwitchCount = 1
		}
	}

	if d.cfg.BallsPerEject == constants.SingleBallPerEject {
		d.numBallsEjecting = 1
	} else {
		d.numBallsEjecting = d.balls + d.mechanicalEjectInProgress
	}

	d.attemptStart = d.clock.Now()
	d.attemptID = uuid.NewString()
	if d.obs != nil {
		d.obs.ObserveEjectAttempt(d.cfg.Name, d.numBallsEjecting)
	}
	d.log.Debug("eject attempt starting", "device", d.cfg.Name, "attempt_id", d.attemptID, "balls", d.numBallsEjecting)

	target := front.target
	timeout := front.timeout
	payload := map[string]any{
		"balls":        d.numBallsEjecting,
		"target":       target.Name(),
		"timeout":      timeout,
		"num_attempts": d.numEjectAttempts,
	}
	d.bus.PostQueue(evEjectAttempt(d.cfg.Name), payload, func() {
		d.performEject(target, timeout)
	})
}

// performEject fires once the queued ball_eject_attempt event has fully
// drained: it installs confirmation, arms the departure latch, and
// finally activates the physical mechanism, so the coil pulses only
// after every same-tick bus handler has seen a coherent pre-pulse state.
func (d *Device) performEject(target *Device, timeout time.Duration) {
	d.installConfirmation(target, timeout)
	d.ejectedBallDidLeaveDevice = false

	if len(d.cfg.BallSwitches) == 0 {
		d.balls -= d.numBallsEjecting
		if d.balls < 0 {
			d.balls = 0
		}
		d.ejectedBallDidLeaveDevice = true
	} else {
		for _, sw := range d.cfg.BallSwitches {
			if d.switchCtrl.IsActive(sw, 0) {
				sw := sw
				var key int
				key = d.switchCtrl.AddSwitchHandler(sw, false, 0, func() {
					if d.balls > 0 {
						d.balls--
					}
					d.ejectedBallDidLeaveDevice = true
					d.switchCtrl.RemoveSwitchHandler(key)
				})
				d.switchHandlerKeys = append(d.switchHandlerKeys, key)
			}
		}
	}

	switch {
	case d.cfg.EjectCoil != "":
		_ = d.ejectDriver.Pulse()
	case d.usesHoldCoil:
		d.holdReleaseInProgress = true
		_ = d.ejectDriver.Disable()
		d.delays.Schedule(delayHoldRelease(d.cfg.Name), d.cfg.HoldCoilReleaseTime, func() {
			d.holdReleaseInProgress = false
			if d.balls > 0 {
				_ = d.ejectDriver.Enable()
			}
		})
	}
}

// ejectSuccess resets per-attempt counters, publishes
// ball_eject_success, cancels any pending confirmation, and either
// drains the next queue entry or announces spare capacity.
func (d *Device) ejectSuccess() {
	target := d.ejectInProgressTarget
	balls := d.numBallsEjecting
	attemptID := d.attemptID

	d.cancelConfirmation()
	d.ejectInProgressTarget = nil
	d.numBallsEjecting = 0
	d.numEjectAttempts = 0
	d.numJamSwitchCount = 0
	d.attemptID = ""

	latencyNs := uint64(0)
	if !d.attemptStart.IsZero() {
		latencyNs = uint64(d.clock.Now().Sub(d.attemptStart))
	}
	if d.obs != nil && target != nil {
		d.obs.ObserveEjectSuccess(d.cfg.Name, balls, latencyNs)
	}

	if target != nil {
		d.log.Debug("eject attempt succeeded", "device", d.cfg.Name, "attempt_id", attemptID, "target", target.Name(), "balls", balls)
		d.bus.Post(evEjectSuccess(d.cfg.Name), map[string]any{"balls": balls, "target": target.Name()})
	}

	if d.ejectQueue.Len() > 0 {
		d.doEject()
	} else {
		d.bus.Post(evOkToReceive(d.cfg.Name), map[string]any{"balls": d.AdditionalBallCapacity()})
	}
}

// EjectFailed handles a confirmation timeout, a jam-switch return, or an
// explicit request to abandon the current attempt: the queue head is
// re-inserted at the front (LIFO on retry, FIFO on enqueue) with the
// default timeout, the failure is published, and — if retries remain or
// forceRetry is set — a fresh attempt starts immediately; otherwise the
// attempt is permanently failed.
func (d *Device) EjectFailed(retry, forceRetry bool) {
	target := d.ejectInProgressTarget
	if target == nil {
		return
	}
	numAttempts := d.numEjectAttempts
	balls := d.numBallsEjecting
	attemptID := d.attemptID

	d.cancelConfirmation()
	d.ejectInProgressTarget = nil
	d.numBallsEjecting = 0
	d.attemptID = ""

	d.ejectQueue.PushFront(&ejectRequest{target: target, timeout: d.timeoutFor(target)})

	withinBudget := d.cfg.MaxEjectAttempts == constants.UnboundedRetries || numAttempts < d.cfg.MaxEjectAttempts
	willRetry := retry && (withinBudget || forceRetry)
	if d.obs != nil && willRetry {
		// A failure that exhausts the budget is recorded once, as
		// permanent, by ejectPermanentlyFailed.
		d.obs.ObserveEjectFailure(d.cfg.Name, false)
	}
	d.bus.Post(evEjectFailed(d.cfg.Name), map[string]any{
		"target":       target.Name(),
		"balls":        balls,
		"num_attempts": numAttempts,
	})

	if !d.ejectedBallDidLeaveDevice {
		d.log.Warn("eject failed without ever observing the ball leave", "device", d.cfg.Name, "target", target.Name(), "attempt_id", attemptID)
	}

	if willRetry {
		d.doEject()
		return
	}
	d.ejectPermanentlyFailed(target)
}

// ejectPermanentlyFailed discards the retry and publishes the
// intentionally-malformed permanent-failure event name (see events.go).
func (d *Device) ejectPermanentlyFailed(target *Device) {
	// The head we just re-queued in EjectFailed is the one giving up;
	// remove it rather than leave a dead entry the engine will never
	// retry (MaxEjectAttempts already exhausted for this target).
	if d.ejectQueue.Len() > 0 {
		d.ejectQueue.Remove(d.ejectQueue.Front())
	}
	d.numEjectAttempts = 0
	d.numJamSwitchCount = 0
	if d.obs != nil {
		d.obs.ObserveEjectFailure(d.cfg.Name, true)
	}
	d.bus.Post(evPermanentFailure(d.cfg.Name), map[string]any{"target": target.Name()})
	d.doEject()
}
