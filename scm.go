package balldevice

// CountBalls is the switch-to-count mapper's contract (SPEC_FULL.md
// §4.1). It re-derives balls from the configured ball-switches,
// validates that every switch has settled past its debounce delay, and
// signals the resulting delta to the eject engine. It is invoked
// automatically whenever a ball-switch settles (handlers are bound at
// both edges in selfInit), so an invalid read self-corrects once the
// switch stops bouncing.
func (d *Device) CountBalls() {
	if len(d.cfg.BallSwitches) == 0 {
		// Counted exclusively via the entrance-switch handler.
		return
	}

	active := 0
	for _, sw := range d.cfg.BallSwitches {
		switch {
		case d.switchCtrl.IsActive(sw, d.cfg.EntranceCountDelay):
			active++
		case d.switchCtrl.IsInactive(sw, d.cfg.ExitCountDelay):
			// settled inactive; contributes nothing
		default:
			// Not yet settled at either edge: count is invalid. Leave
			// d.balls untouched; the handler that observes this switch
			// settling will re-invoke CountBalls.
			d.valid = false
			return
		}
	}

	d.valid = true
	previous := d.balls
	d.balls = active
	if d.balls < 0 {
		d.log.Warn("computed negative ball count, clamping", "device", d.cfg.Name)
		d.balls = 0
	}
	if d.balls > d.cfg.Capacity {
		d.balls = d.cfg.Capacity
	}

	suppress := d.needFirstTimeCount
	d.needFirstTimeCount = false

	if d.obs != nil {
		d.obs.ObserveCount(d.cfg.Name, d.balls)
	}

	if suppress {
		return
	}

	delta := d.balls - previous
	switch {
	case delta == 0:
		if d.confirmIsCountType() && d.ejectedBallDidLeaveDevice && d.confirmOnSuccess != nil {
			cb := d.confirmOnSuccess
			d.confirmOnSuccess = nil
			cb()
		}
	case delta > 0:
		d.ballsAdded(delta)
	default:
		d.ballsMissing(-delta)
	}
}

// onEntranceSwitchActivated handles the no-ball-switches fallback: one
// activation of entrance_switch advances the count by exactly one, up
// to capacity.
func (d *Device) onEntranceSwitchActivated() {
	if d.balls >= d.cfg.Capacity {
		return
	}
	d.balls++
	if d.obs != nil {
		d.obs.ObserveCount(d.cfg.Name, d.balls)
	}
	if d.needFirstTimeCount {
		d.needFirstTimeCount = false
		return
	}
	d.ballsAdded(1)
}

// ballsMissing is the SCM→EE handoff for delta<0. During an in-progress
// eject attempt this is expected (the ball we are ejecting leaving the
// device) and only sets the departure latch the confirmation strategies
// and jam-switch heuristic rely on; otherwise it is an unexplained loss,
// logged and published per the error taxonomy's invariant-violation
// class via the (deliberately malformed, see events.go) ball_missing
// event name.
func (d *Device) ballsMissing(n int) {
	if d.ejectInProgressTarget != nil {
		d.ejectedBallDidLeaveDevice = true
		return
	}
	d.log.Warn("balls missing with no eject in progress", "device", d.cfg.Name, "count", n)
	d.bus.Post(evBallMissing(n), map[string]any{"balls": n, "device": d.cfg.Name})
}

// ballsAdded is the SCM→EE handoff for delta>0: a mechanical eject in
// flight reinterprets this as a bounce-back failure; an eject attempt
// with a jam switch that has re-activated twice reinterprets it as the
// ejected ball returning; otherwise it is a genuine arrival, relayed via
// ball_enter so upstream bookkeeping (IDC, ball requests) can claim it.
func (d *Device) ballsAdded(n int) {
	if d.mechanicalEjectInProgress > 0 {
		d.mechanicalEjectFailed()
		return
	}
	if d.ejectInProgressTarget != nil && d.cfg.JamSwitch != "" && d.numJamSwitchCount > 1 {
		d.EjectFailed(true, false)
		return
	}

	d.bus.PostRelay(evBallEnter(d.cfg.Name), map[string]any{"balls": n, "device": d.cfg.Name}, func(final map[string]any) {
		remaining, _ := final["balls"].(int)
		if remaining > 0 {
			d.handleUnexpectedBalls(remaining)
		}
	})
}

// handleUnexpectedBalls implements the §7 "unexpected balls" error
// class: balls nobody claimed via the ball_enter relay are attributed
// to the configured capturing playfield, then non-trough devices
// re-eject them rather than silently retaining them.
func (d *Device) handleUnexpectedBalls(n int) {
	if d.cfg.CapturesFrom != "" {
		d.bus.Post(evCapturedFrom(d.cfg.CapturesFrom), map[string]any{"balls": n})
	}
	if d.cfg.hasTag("trough") {
		return
	}
	if len(d.targets) > 0 {
		_ = d.Eject(n, "", 0)
	}
}

func (d *Device) confirmIsCountType() bool {
	_, ok := d.confirm.(*countConfirm)
	return ok
}
