// Package reset turns the reset helper into a Reset() of every plugin.
package reset

import (
	"fmt"

	"wakeuplight/internal/state"
	"wakeuplight/pkg/plugin"

	"go.uber.org/zap"
)

// Coordinator watches the reset helper. Turning it on resets every
// plugin that implements plugin.Resettable, in startup order, and turns the
// helper back off.
type Coordinator struct {
	stateManager *state.Manager
	logger       *zap.Logger
	plugins      []plugin.Plugin
	subscription state.Subscription
}

// NewCoordinator creates a coordinator for plugins. Plugins that do not
// implement plugin.Resettable are skipped on reset.
func NewCoordinator(stateManager *state.Manager, logger *zap.Logger, plugins []plugin.Plugin) *Coordinator {
	return &Coordinator{
		stateManager: stateManager,
		logger:       logger.Named("reset"),
		plugins:      plugins,
	}
}

// Start subscribes to the reset helper
func (c *Coordinator) Start() error {
	sub, err := c.stateManager.Subscribe(state.KeyReset, c.handleResetChange)
	if err != nil {
		return fmt.Errorf("failed to subscribe to reset: %w", err)
	}
	c.subscription = sub

	c.logger.Info("Reset coordinator started",
		zap.Int("resettable", countResettable(c.plugins)),
		zap.Bool("read_only", c.stateManager.IsReadOnly()))
	return nil
}

// Stop unsubscribes. It is safe to call more than once.
func (c *Coordinator) Stop() {
	if c.subscription == nil {
		return
	}
	c.subscription.Unsubscribe()
	c.subscription = nil
	c.logger.Info("Reset coordinator stopped")
}

func (c *Coordinator) handleResetChange(key string, oldValue, newValue interface{}) {
	if on, ok := newValue.(bool); !ok || !on {
		return
	}

	c.logger.Info("Reset triggered")

	// Turn the helper off first so a plugin that fails cannot leave it on
	if _, err := c.stateManager.CompareAndSwapBool(state.KeyReset, true, false); err != nil {
		c.logger.Error("Failed to turn reset off", zap.Error(err))
	}

	if err := c.Reset(); err != nil {
		c.logger.Warn("Reset finished with errors", zap.Error(err))
	}
}

// Reset resets every resettable plugin. A failing plugin does not stop the
// others; the returned error combines all failures.
func (c *Coordinator) Reset() error {
	err := plugin.ResetAll(c.plugins)
	c.logger.Info("Reset complete",
		zap.Int("plugins", countResettable(c.plugins)),
		zap.Bool("errors", err != nil))
	return err
}

func countResettable(plugins []plugin.Plugin) int {
	n := 0
	for _, p := range plugins {
		if _, ok := p.(plugin.Resettable); ok {
			n++
		}
	}
	return n
}
