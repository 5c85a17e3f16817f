package device

import (
	"context"
	"fmt"
	"math"

	"wakeuplight/internal/ha"

	"go.uber.org/zap"
)

// HomeAssistantLight drives a light.* entity through the hub client
type HomeAssistantLight struct {
	client   ha.HAClient
	entityID string
	logger   *zap.Logger
	notify   *notifier
}

// NewHomeAssistantLight creates a driver for entityID
func NewHomeAssistantLight(client ha.HAClient, entityID string, logger *zap.Logger) *HomeAssistantLight {
	return &HomeAssistantLight{
		client:   client,
		entityID: entityID,
		logger:   logger.With(zap.String("entity_id", entityID)),
		notify:   newNotifier(),
	}
}

func (l *HomeAssistantLight) Name() string {
	return l.entityID
}

// State reads the entity from the client's state cache
func (l *HomeAssistantLight) State(ctx context.Context) (State, error) {
	st, err := l.client.GetState(l.entityID)
	if err != nil {
		return State{}, fmt.Errorf("read %s: %w", l.entityID, err)
	}
	return stateFromEntity(st), nil
}

func (l *HomeAssistantLight) SetPower(ctx context.Context, on bool) error {
	service := "turn_off"
	if on {
		service = "turn_on"
	}
	l.logger.Debug("Setting power", zap.Bool("on", on))
	return l.client.CallService("light", service, map[string]interface{}{
		"entity_id": l.entityID,
	})
}

func (l *HomeAssistantLight) SetBrightness(ctx context.Context, percent int) error {
	percent = clampPercent(percent)
	l.logger.Debug("Setting brightness", zap.Int("percent", percent))
	return l.client.CallService("light", "turn_on", map[string]interface{}{
		"entity_id":      l.entityID,
		"brightness_pct": percent,
	})
}

func (l *HomeAssistantLight) SetColor(ctx context.Context, rgb int) error {
	r, g, b := RGB(rgb)
	l.logger.Debug("Setting color", zap.String("color", HexColor(rgb)))
	return l.client.CallService("light", "turn_on", map[string]interface{}{
		"entity_id": l.entityID,
		"rgb_color": []int{int(r), int(g), int(b)},
	})
}

func (l *HomeAssistantLight) Watch(handler ChangeHandler) (func(), error) {
	stop := l.notify.add(handler)

	sub, err := l.client.SubscribeStateChanges(l.entityID, func(entityID string, oldState, newState *ha.State) {
		if newState == nil {
			return
		}
		l.notify.emit(stateFromEntity(newState))
	})
	if err != nil {
		stop()
		return nil, fmt.Errorf("subscribe %s: %w", l.entityID, err)
	}

	return func() {
		stop()
		if err := sub.Unsubscribe(); err != nil {
			l.logger.Warn("Failed to unsubscribe", zap.Error(err))
		}
	}, nil
}

// stateFromEntity maps the HA brightness attribute (0..255) to percent
func stateFromEntity(st *ha.State) State {
	state := State{On: st.IsOn()}
	if !state.On {
		return state
	}
	if brightness, ok := st.NumberAttribute("brightness"); ok {
		state.Brightness = clampPercent(int(math.Round(brightness * 100 / 255)))
	}
	return state
}
