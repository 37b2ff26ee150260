package balldevice

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// machineFile is the on-disk TOML shape: one [[device]] table per
// BallDevice (SPEC_FULL.md §4.7/§6). Durations are written as Go-style
// strings ("500ms", "1s") and parsed once at load time.
type machineFile struct {
	Device []deviceFile `toml:"device"`
}

type deviceFile struct {
	Name string `toml:"name"`

	BallSwitches   []string `toml:"ball_switches"`
	BallCapacity   int      `toml:"ball_capacity"`
	JamSwitch      string   `toml:"jam_switch"`
	EntranceSwitch string   `toml:"entrance_switch"`

	EntranceCountDelay string `toml:"entrance_count_delay"`
	ExitCountDelay     string `toml:"exit_count_delay"`

	EjectCoil           string `toml:"eject_coil"`
	HoldCoil            string `toml:"hold_coil"`
	HoldCoilReleaseTime string `toml:"hold_coil_release_time"`

	EjectTargets  []string         `toml:"eject_targets"`
	EjectTimeouts map[string]string `toml:"eject_timeouts"`

	ConfirmEjectType  string `toml:"confirm_eject_type"`
	ConfirmEjectSwitch string `toml:"confirm_eject_switch"`
	ConfirmEjectEvent string `toml:"confirm_eject_event"`

	MaxEjectAttempts int    `toml:"max_eject_attempts"`
	BallsPerEject    string `toml:"balls_per_eject"`

	MechanicalEject            bool     `toml:"mechanical_eject"`
	MechanicalEjectTriggerTime string   `toml:"mechanical_eject_trigger_time"`
	EjectEvents                []string `toml:"eject_events"`

	CapturesFrom string   `toml:"captures_from"`
	Tags         []string `toml:"tags"`
}

var validConfirmTypes = map[string]ConfirmType{
	"target": ConfirmTarget,
	"switch": ConfirmSwitch,
	"event":  ConfirmEvent,
	"count":  ConfirmCount,
	"fake":   ConfirmFake,
}

// LoadMachineConfig reads and validates a TOML machine file at path,
// returning one Config per [[device]] table in file order. An invalid
// confirm_eject_type is a fatal configuration error (§7), reported with
// the offending device's name rather than deferred to runtime.
func LoadMachineConfig(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError("LoadMachineConfig", ErrCodeInvalidConfig, fmt.Sprintf("reading %s: %v", path, err))
	}
	return ParseMachineConfig(data)
}

// ParseMachineConfig parses raw TOML bytes, as LoadMachineConfig does
// for a file on disk.
func ParseMachineConfig(data []byte) ([]Config, error) {
	var raw machineFile
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, NewError("ParseMachineConfig", ErrCodeInvalidConfig, fmt.Sprintf("decoding toml: %v", err))
	}

	cfgs := make([]Config, 0, len(raw.Device))
	for _, df := range raw.Device {
		cfg, err := df.toConfig()
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, cfg)
	}
	return cfgs, nil
}

func (df deviceFile) toConfig() (Config, error) {
	if df.Name == "" {
		return Config{}, NewError("ParseMachineConfig", ErrCodeInvalidConfig, "device table missing name")
	}

	cfg := Config{
		Name:           df.Name,
		Capacity:       df.BallCapacity,
		BallSwitches:   df.BallSwitches,
		JamSwitch:      df.JamSwitch,
		EntranceSwitch: df.EntranceSwitch,
		EjectCoil:      df.EjectCoil,
		HoldCoil:       df.HoldCoil,
		EjectTargets:   df.EjectTargets,
		ConfirmSwitchName: df.ConfirmEjectSwitch,
		ConfirmEventName:  df.ConfirmEjectEvent,
		MaxEjectAttempts: df.MaxEjectAttempts,
		MechanicalEject:  df.MechanicalEject,
		EjectEvents:      df.EjectEvents,
		CapturesFrom:     df.CapturesFrom,
		Tags:             df.Tags,
	}

	var err error
	if cfg.EntranceCountDelay, err = parseOptionalDuration(df.EntranceCountDelay); err != nil {
		return Config{}, invalidConfig(df.Name, "entrance_count_delay", err)
	}
	if cfg.ExitCountDelay, err = parseOptionalDuration(df.ExitCountDelay); err != nil {
		return Config{}, invalidConfig(df.Name, "exit_count_delay", err)
	}
	if cfg.HoldCoilReleaseTime, err = parseOptionalDuration(df.HoldCoilReleaseTime); err != nil {
		return Config{}, invalidConfig(df.Name, "hold_coil_release_time", err)
	}
	if cfg.MechanicalEjectTriggerTime, err = parseOptionalDuration(df.MechanicalEjectTriggerTime); err != nil {
		return Config{}, invalidConfig(df.Name, "mechanical_eject_trigger_time", err)
	}

	if len(df.EjectTimeouts) > 0 {
		cfg.EjectTimeouts = make(map[string]time.Duration, len(df.EjectTimeouts))
		for target, s := range df.EjectTimeouts {
			d, err := parseOptionalDuration(s)
			if err != nil {
				return Config{}, invalidConfig(df.Name, "eject_timeouts["+target+"]", err)
			}
			cfg.EjectTimeouts[target] = d
		}
	}

	switch df.BallsPerEject {
	case "", "1":
		cfg.BallsPerEject = 1
	case "all":
		cfg.BallsPerEject = -1
	default:
		return Config{}, invalidConfig(df.Name, "balls_per_eject", fmt.Errorf("must be \"1\" or \"all\", got %q", df.BallsPerEject))
	}

	if df.ConfirmEjectType == "" {
		cfg.ConfirmEjectType = ConfirmTarget
	} else {
		ct, ok := validConfirmTypes[df.ConfirmEjectType]
		if !ok {
			return Config{}, invalidConfig(df.Name, "confirm_eject_type", fmt.Errorf("unknown strategy %q", df.ConfirmEjectType))
		}
		cfg.ConfirmEjectType = ct
	}
	if cfg.ConfirmEjectType == ConfirmSwitch && cfg.ConfirmSwitchName == "" {
		return Config{}, invalidConfig(df.Name, "confirm_eject_switch", fmt.Errorf("required for confirm_eject_type=switch"))
	}
	if cfg.ConfirmEjectType == ConfirmEvent && cfg.ConfirmEventName == "" {
		return Config{}, invalidConfig(df.Name, "confirm_eject_event", fmt.Errorf("required for confirm_eject_type=event"))
	}

	return cfg, nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

func invalidConfig(device, field string, err error) error {
	return NewDeviceError("ParseMachineConfig", device, ErrCodeInvalidConfig, fmt.Sprintf("%s: %v", field, err))
}
