package balldevice

// SetupPlayerControlledEject arms a manual eject instead of driving a
// coil automatically (SPEC_FULL.md §4.4). With neither a mechanical
// plunger switch nor eject_events configured, this falls through to the
// ordinary automatic path. Otherwise it subscribes to triggerEvent (if
// given), records the target, and requests any balls still missing.
func (d *Device) SetupPlayerControlledEject(balls int, target string, triggerEvent string) error {
	if !d.cfg.MechanicalEject && len(d.cfg.EjectEvents) == 0 {
		return d.Eject(balls, target, 0)
	}

	tgt, err := d.resolveTarget(target)
	if err != nil {
		return err
	}
	d.manualEjectTarget = tgt
	d.waitingForEjectTrigger = true

	if triggerEvent != "" {
		d.mechanicalTriggerKey = d.bus.AddHandler(triggerEvent, confirmHandlerPriority, func(map[string]any) {
			d.mechanicalEjectInProgress++
		})
		d.busHandlerKeys = append(d.busHandlerKeys, d.mechanicalTriggerKey)
	}

	if need := balls - d.balls; need > 0 {
		d.RequestBall(need)
	}
	return nil
}

// onMechanicalEjectSwitchReleased fires when a ball-switch transitions
// 1→0 while waitingForEjectTrigger is set: the plunger was pulled. It
// posts the mechanical-attempt event, installs confirmation with a
// zero deadline (a player-controlled eject never times out on its own),
// and optimistically zeroes the ball count.
func (d *Device) onMechanicalEjectSwitchReleased() {
	if !d.waitingForEjectTrigger || d.manualEjectTarget == nil {
		return
	}
	target := d.manualEjectTarget
	d.mechanicalEjectInProgress++
	d.numMechanicalAttempts++
	d.waitingForEjectTrigger = false

	d.bus.Post(evMechanicalAttempt(d.cfg.Name), map[string]any{"balls": 1, "target": target.Name()})
	d.installConfirmationWithCallbacks(target, 0, d.mechanicalEjectSuccess, nil)
	d.ejectedBallDidLeaveDevice = false

	d.balls = 0
}

// mechanicalEjectSuccess is the confirmation success callback for a
// player-controlled eject: unlike the automatic engine's ejectSuccess
// there is no queue or attempt budget to reset, just the in-flight
// counter and the confirmation strategy it owned.
func (d *Device) mechanicalEjectSuccess() {
	if d.mechanicalEjectInProgress == 0 {
		return
	}
	d.mechanicalEjectInProgress--
	d.numMechanicalAttempts = 0
	d.cancelConfirmation()
}

// mechanicalEjectFailed handles a ball re-appearing while a mechanical
// attempt is in flight: the player failed to launch the ball cleanly
// and it rolled back in. The target is re-armed for another attempt and
// the player-controlled failure event is published; unlike the
// automatic engine's EjectFailed this never gives up permanently, since
// there is no attempt budget for a manually driven plunger.
func (d *Device) mechanicalEjectFailed() {
	if d.mechanicalEjectInProgress == 0 {
		return
	}
	target := d.manualEjectTarget
	d.mechanicalEjectInProgress--
	d.cancelConfirmation()
	d.balls++
	if d.balls > d.cfg.Capacity {
		d.balls = d.cfg.Capacity
	}

	if target != nil {
		d.bus.Post(evMechanicalFailed(d.cfg.Name), map[string]any{
			"target":       target.Name(),
			"balls":        1,
			"num_attempts": d.numMechanicalAttempts,
		})
		d.bus.Post(evPlayerControlledFailed(d.cfg.Name), map[string]any{"target": target.Name()})
	}
	d.waitingForEjectTrigger = true
}
