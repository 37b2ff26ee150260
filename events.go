package balldevice

import "fmt"

// Event name helpers, centralized so the two deliberate naming
// peculiarities preserved from the source (see SPEC_FULL.md §9) live in
// exactly one place each instead of being repeated at every call site.

func evBallEnter(name string) string             { return "balldevice_" + name + "_ball_enter" }
func evEjectRequest(name string) string           { return "balldevice_" + name + "_ball_eject_request" }
func evEjectAttempt(name string) string           { return "balldevice_" + name + "_ball_eject_attempt" }
func evEjectSuccess(name string) string           { return "balldevice_" + name + "_ball_eject_success" }
func evEjectFailed(name string) string            { return "balldevice_" + name + "_ball_eject_failed" }
func evBallRequest(name string) string            { return "balldevice_" + name + "_ball_request" }
func evCancelBallRequest(name string) string      { return "balldevice_" + name + "_cancel_ball_request" }
func evOkToReceive(name string) string            { return "balldevice_" + name + "_ok_to_receive" }
func evMechanicalAttempt(name string) string      { return "balldevice_" + name + "_mechanical_eject_attempt" }
func evMechanicalFailed(name string) string       { return "balldevice_" + name + "_mechanical_eject_failed" }
func evPlayerControlledFailed(name string) string { return "balldevice_" + name + "_player_controlled_eject_failed" }
func evCapturedFrom(playfield string) string      { return "balldevice_captured_from_" + playfield }

func evBallDrain() string { return "ball_drain" }

func evBallSaveEnabled(name string) string     { return "ball_save_" + name + "_enabled" }
func evBallSaveDisabled(name string) string    { return "ball_save_" + name + "_disabled" }
func evBallSaveHurryUp(name string) string     { return "ball_save_" + name + "_hurry_up" }
func evBallSaveGracePeriod(name string) string { return "ball_save_" + name + "_grace_period" }
func evBallSaveSaving(name string) string      { return "ball_save_" + name + "_saving_ball" }

// evPermanentFailure is assembled without an underscore between the
// device name and "ball_eject_permanent_failure". This matches the
// source exactly; it is very likely a defect, but it is an explicit
// open question (not a redesign flag), so it is preserved rather than
// silently fixed.
func evPermanentFailure(name string) string {
	return "balldevice_" + name + "ball_eject_permanent_failure"
}

// evBallMissing embeds the missing-ball count in the event name instead
// of the device name, unlike every other published event. Preserved
// exactly for the same reason as evPermanentFailure.
func evBallMissing(count int) string {
	return fmt.Sprintf("balldevice_%d_ball_missing", count)
}

// Internal (unpublished) delay names, scoped per device so two devices
// never collide in the shared scheduler.
func delayEjectTimeout(name string) string  { return "balldevice_" + name + "_eject_timeout" }
func delayHoldRelease(name string) string   { return "balldevice_" + name + "_hold_release" }
func delayFakeConfirm(name string) string   { return "balldevice_" + name + "_fake_confirm" }
func delayHurryUp(name string) string       { return "ball_save_" + name + "_hurry_up_delay" }
func delayGracePeriod(name string) string   { return "ball_save_" + name + "_grace_period_delay" }
