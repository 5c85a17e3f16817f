// Package wakeup implements the wake-up light: a lamp is ramped from 1% to
// a target brightness over a configured duration and optionally switched off
// again after a delay.
package wakeup

import (
	"fmt"
	"time"

	"wakeuplight/internal/config"
	"wakeuplight/internal/device"
)

// Phase is the persisted phase of the wake-up sequence
type Phase string

const (
	PhaseOff     Phase = "off"
	PhaseRamping Phase = "ramping"
	PhaseHolding Phase = "holding"
)

func (p Phase) String() string {
	if p == "" {
		return string(PhaseOff)
	}
	return string(p)
}

// ParsePhase accepts the String form of a phase. The empty string is off.
func ParsePhase(s string) (Phase, error) {
	switch Phase(s) {
	case "", PhaseOff:
		return PhaseOff, nil
	case PhaseRamping, PhaseHolding:
		return Phase(s), nil
	default:
		return PhaseOff, fmt.Errorf("unknown phase %q", s)
	}
}

// Mode selects where the sequence parameters come from
type Mode string

const (
	// ModeManual uses the current settings
	ModeManual Mode = "manual"
	// ModeSchedule uses the weekday or weekend profile for the current day
	ModeSchedule Mode = "schedule"
)

// ParseMode accepts "manual" (also the empty string) and "schedule"
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeManual:
		return ModeManual, nil
	case ModeSchedule:
		return ModeSchedule, nil
	default:
		return ModeManual, fmt.Errorf("unknown mode %q", s)
	}
}

// Pacing selects how the interval between brightness steps is computed
type Pacing string

const (
	// PacingAdaptive spreads the remaining time over the remaining steps
	// before every step
	PacingAdaptive Pacing = "adaptive"
	// PacingFixed uses one constant interval for the whole ramp
	PacingFixed Pacing = "fixed"
)

const (
	MaxDuration = 120 // minutes
	MaxAutoOff  = 720 // minutes
)

// Settings are the manual parameters of the wake-up light
type Settings struct {
	Brightness   int  `json:"brightness"` // target, percent
	Color        int  `json:"color"`      // 0xRRGGBB
	ColorEnabled bool `json:"color_enabled"`
	Duration     int  `json:"duration"` // minutes
	AutoOff      int  `json:"auto_off"` // minutes, 0 disables
}

// DefaultSettings returns 50% over 30 minutes in warm orange, without
// automatic power off
func DefaultSettings() Settings {
	return Settings{
		Brightness: 50,
		Color:      device.DefaultColor,
		Duration:   30,
	}
}

// Validate checks the ranges of all fields
func (s Settings) Validate() error {
	switch {
	case s.Brightness < 1 || s.Brightness > 100:
		return fmt.Errorf("%w: brightness %d out of range 1..100", ErrInvalidSettings, s.Brightness)
	case s.Duration < 0 || s.Duration > MaxDuration:
		return fmt.Errorf("%w: duration %d out of range 0..%d", ErrInvalidSettings, s.Duration, MaxDuration)
	case s.AutoOff < 0 || s.AutoOff > MaxAutoOff:
		return fmt.Errorf("%w: auto off %d out of range 0..%d", ErrInvalidSettings, s.AutoOff, MaxAutoOff)
	case s.Color < 0 || s.Color > 0xFFFFFF:
		return fmt.Errorf("%w: color %d out of range", ErrInvalidSettings, s.Color)
	}
	return nil
}

// SettingsFromConfig converts the settings section of wakeup.yaml
func SettingsFromConfig(cfg config.SettingsConfig) (Settings, error) {
	settings := Settings{
		Brightness:   int(cfg.Brightness),
		Color:        device.DefaultColor,
		ColorEnabled: cfg.ColorEnabled,
		Duration:     int(cfg.Duration),
		AutoOff:      int(cfg.AutoOff),
	}
	if cfg.Color != "" {
		color, err := device.ParseHexColor(cfg.Color)
		if err != nil {
			return Settings{}, err
		}
		settings.Color = color
	}
	return settings, settings.Validate()
}

// Profile holds the parameters used when the weekly schedule starts the
// sequence
type Profile struct {
	Enabled      bool         `json:"enabled"`
	Start        config.Start `json:"-"`
	Duration     int          `json:"duration"`
	Brightness   int          `json:"brightness"`
	Color        int          `json:"color"`
	ColorEnabled bool         `json:"color_enabled"`
}

// Profiles are the weekday (Monday to Friday) and weekend profiles
type Profiles struct {
	Weekday Profile
	Weekend Profile
}

// IsWeekday reports whether t falls on Monday to Friday
func IsWeekday(t time.Time) bool {
	return t.Weekday() >= time.Monday && t.Weekday() <= time.Friday
}

// For returns the profile that applies on the day of t
func (p Profiles) For(t time.Time) Profile {
	if IsWeekday(t) {
		return p.Weekday
	}
	return p.Weekend
}

// ProfilesFromConfig converts the weekday and weekend sections of wakeup.yaml
func ProfilesFromConfig(cfg *config.WakeUpConfig) (Profiles, error) {
	weekday, err := profileFromConfig(cfg.Weekday)
	if err != nil {
		return Profiles{}, fmt.Errorf("weekday profile: %w", err)
	}
	weekend, err := profileFromConfig(cfg.Weekend)
	if err != nil {
		return Profiles{}, fmt.Errorf("weekend profile: %w", err)
	}
	return Profiles{Weekday: weekday, Weekend: weekend}, nil
}

func profileFromConfig(cfg config.ProfileConfig) (Profile, error) {
	start, err := config.ParseStart(cfg.Start)
	if err != nil {
		return Profile{}, err
	}
	profile := Profile{
		Enabled:    cfg.Enabled,
		Start:      start,
		Duration:   int(cfg.Duration),
		Brightness: int(cfg.Brightness),
	}
	if cfg.Color != "" {
		color, err := device.ParseHexColor(cfg.Color)
		if err != nil {
			return Profile{}, err
		}
		profile.Color = color
		profile.ColorEnabled = true
	}
	return profile, nil
}

// Attributes are persisted across restarts
type Attributes struct {
	Phase             Phase     `yaml:"phase"`
	Mode              Mode      `yaml:"mode,omitempty"`
	TargetBrightness  int       `yaml:"target_brightness"`
	CyclingBrightness int       `yaml:"cycling_brightness"`
	EndTime           time.Time `yaml:"end_time,omitempty"`
	PowerOffAt        time.Time `yaml:"power_off_at,omitempty"`
	// Interval is the constant step interval with fixed pacing, zero for
	// adaptive pacing
	Interval time.Duration `yaml:"interval,omitempty"`
}

// ProcessFinishedLayout formats the time at which the current run ends
const ProcessFinishedLayout = "02.01.2006, 15:04:05"

// Status is a snapshot of the controller for observers and the API
type Status struct {
	Phase             Phase     `json:"phase"`
	Mode              Mode      `json:"mode,omitempty"`
	TargetBrightness  int       `json:"target_brightness"`
	CyclingBrightness int       `json:"cycling_brightness"`
	EndTime           time.Time `json:"end_time"`
	NextCycle         time.Time `json:"next_cycle"`
	PowerOffAt        time.Time `json:"power_off_at"`
	ProcessFinished   string    `json:"process_finished"`
	// Reason is why the last phase change happened
	Reason   string   `json:"reason,omitempty"`
	Settings Settings `json:"settings"`
}

// Active reports whether a sequence is running
func (s Status) Active() bool {
	return s.Phase == PhaseRamping || s.Phase == PhaseHolding
}
