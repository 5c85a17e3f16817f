// Package device drives the lamp used for the wake-up sequence. Drivers
// speak to Home Assistant, a Hue bridge or an MQTT lamp; all of them expose
// brightness as a percentage.
package device

import (
	"context"
	"errors"
	"fmt"

	"wakeuplight/internal/clock"
	"wakeuplight/internal/config"
	"wakeuplight/internal/ha"

	"go.uber.org/zap"
)

// ErrStateUnknown is returned when a driver has not seen the lamp state yet
var ErrStateUnknown = errors.New("lamp state unknown")

// State is the observable lamp state
type State struct {
	On         bool `json:"on"`
	Brightness int  `json:"brightness"` // percent, 0..100
}

// ChangeHandler receives lamp state changes reported by the driver
type ChangeHandler func(State)

// Light is a dimmable, optionally colored lamp
type Light interface {
	Name() string
	State(ctx context.Context) (State, error)
	SetPower(ctx context.Context, on bool) error
	SetBrightness(ctx context.Context, percent int) error
	SetColor(ctx context.Context, rgb int) error
	// Watch registers handler for state changes. The returned func stops
	// the notifications.
	Watch(handler ChangeHandler) (func(), error)
}

// Deps are the collaborators a driver may need
type Deps struct {
	Client ha.HAClient
	Clock  clock.Clock
	Logger *zap.Logger
}

// Connect builds the driver selected by cfg.Type
func Connect(ctx context.Context, cfg config.DeviceConfig, deps Deps) (Light, error) {
	logger := deps.Logger.Named("device")

	switch cfg.Type {
	case config.DeviceHomeAssistant:
		if deps.Client == nil {
			return nil, fmt.Errorf("homeassistant device needs a hub client")
		}
		return NewHomeAssistantLight(deps.Client, cfg.EntityID, logger), nil
	case config.DeviceHue:
		return ConnectHue(ctx, cfg.Hue, cfg.PollInterval, deps.Clock, logger)
	case config.DeviceMQTT:
		return ConnectMQTT(cfg.MQTT, logger)
	default:
		return nil, fmt.Errorf("unknown device type: %s", cfg.Type)
	}
}

func clampPercent(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
