package wakeup

import "errors"

var (
	// ErrAlreadyActive is returned when starting while a sequence runs
	ErrAlreadyActive = errors.New("wake-up light already active")
	// ErrLampAlreadyOn is returned when starting while the lamp is on
	ErrLampAlreadyOn = errors.New("lamp is already powered on")
	// ErrRampNotPossible is returned when no step interval can be computed,
	// e.g. for a target of 1% or a duration of zero
	ErrRampNotPossible = errors.New("brightness ramp not possible")
	// ErrSettingsLocked is returned when changing settings while a sequence
	// runs
	ErrSettingsLocked = errors.New("settings are locked while the wake-up light is active")
	// ErrInvalidSettings wraps validation failures
	ErrInvalidSettings = errors.New("invalid settings")
)
