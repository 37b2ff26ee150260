package balldevice

import "github.com/ehrlich-b/go-balldevice/internal/constants"

// Re-export timing defaults as public API constants.
const (
	DefaultEntranceCountDelay         = constants.DefaultEntranceCountDelay
	DefaultExitCountDelay             = constants.DefaultExitCountDelay
	DefaultEjectTimeout               = constants.DefaultEjectTimeout
	DefaultHoldCoilReleaseTime        = constants.DefaultHoldCoilReleaseTime
	DefaultMechanicalEjectTriggerTime = constants.DefaultMechanicalEjectTriggerTime
	FakeConfirmDelay                  = constants.FakeConfirmDelay
	DefaultHurryUpTime                = constants.DefaultHurryUpTime
	DefaultGracePeriod                = constants.DefaultGracePeriod
	UnboundedRetries                  = constants.UnboundedRetries
	UnlimitedBallSaves                = constants.UnlimitedBallSaves
	SingleBallPerEject                = constants.SingleBallPerEject
)
