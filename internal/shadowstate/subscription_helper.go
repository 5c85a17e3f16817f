package shadowstate

import (
	"fmt"

	"wakeuplight/internal/state"

	"go.uber.org/zap"
)

// ShadowInputUpdater receives the captured helper values
type ShadowInputUpdater interface {
	UpdateCurrentInputs(inputs map[string]interface{})
}

// SubscriptionHelper subscribes a plugin to helpers and refreshes the
// plugin's shadow inputs before each handler runs, so the shadow state
// shows what the plugin saw when it acted.
type SubscriptionHelper struct {
	stateManager *state.Manager
	registry     *SubscriptionRegistry
	updater      ShadowInputUpdater
	plugin       string
	logger       *zap.Logger

	subs []state.Subscription
}

// NewSubscriptionHelper creates a helper for plugin. A nil registry gets a
// private one. A nil updater disables input capture.
func NewSubscriptionHelper(stateManager *state.Manager, registry *SubscriptionRegistry, updater ShadowInputUpdater, plugin string, logger *zap.Logger) *SubscriptionHelper {
	if registry == nil {
		registry = NewSubscriptionRegistry()
	}
	return &SubscriptionHelper{
		stateManager: stateManager,
		registry:     registry,
		updater:      updater,
		plugin:       plugin,
		logger:       logger,
	}
}

// CaptureInputs pushes the current values of all watched helpers to the
// updater
func (h *SubscriptionHelper) CaptureInputs() {
	if h.updater == nil {
		return
	}
	h.updater.UpdateCurrentInputs(CaptureInputs(h.stateManager, h.registry.Keys(h.plugin)))
}

// Watch subscribes handler to key
func (h *SubscriptionHelper) Watch(key string, handler state.StateChangeHandler) error {
	sub, err := h.stateManager.Subscribe(key, func(k string, oldValue, newValue interface{}) {
		h.CaptureInputs()
		handler(k, oldValue, newValue)
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", key, err)
	}

	h.registry.Add(h.plugin, key)
	h.subs = append(h.subs, sub)
	h.logger.Debug("Watching helper", zap.String("key", key))
	return nil
}

// Close drops every subscription and the plugin's registrations
func (h *SubscriptionHelper) Close() {
	for _, sub := range h.subs {
		sub.Unsubscribe()
	}
	h.subs = nil
	h.registry.Remove(h.plugin)
}
