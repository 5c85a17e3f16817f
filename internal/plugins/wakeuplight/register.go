package wakeuplight

import (
	"context"
	"fmt"

	"wakeuplight/internal/device"
	"wakeuplight/internal/shadowstate"
	"wakeuplight/internal/wakeup"
	pkgha "wakeuplight/pkg/ha"
	"wakeuplight/pkg/plugin"
	pkgstate "wakeuplight/pkg/state"
)

func init() {
	plugin.Register(plugin.PluginInfo{
		Name:        pluginName,
		Description: "Wake-up light - ramps the bedroom lamp up like a sunrise",
		Priority:    plugin.PriorityDefault,
		Order:       50,
		Factory:     createPlugin,
	})
}

// createPlugin creates a new wake-up light plugin instance from the plugin context.
func createPlugin(ctx *plugin.Context) (plugin.Plugin, error) {
	stateManager := pkgstate.UnwrapManager(ctx.StateManager)
	if stateManager == nil {
		return nil, fmt.Errorf("wakeuplight plugin requires internal state.Manager")
	}
	if ctx.Config == nil {
		return nil, fmt.Errorf("wakeuplight plugin requires the wake-up config")
	}

	light := ctx.Light
	if light == nil {
		var err error
		if light, err = connectLight(ctx); err != nil {
			return nil, err
		}
	}

	var store wakeup.Store
	if ctx.StateFile != "" {
		store = wakeup.NewFileStore(ctx.StateFile)
	}

	manager, err := NewManager(stateManager, ctx.Logger, Options{
		Config:    ctx.Config,
		ConfigDir: ctx.ConfigDir,
		Light:     light,
		Store:     store,
		Clock:     ctx.Clock,
		Timezone:  ctx.Timezone,
		ReadOnly:  ctx.ReadOnly,
		Registry:  ctx.SubscriptionRegistry,
	})
	if err != nil {
		return nil, err
	}
	return &pluginAdapter{manager: manager}, nil
}

// connectLight builds the lamp driver named in the config
func connectLight(ctx *plugin.Context) (device.Light, error) {
	connectCtx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	light, err := device.Connect(connectCtx, ctx.Config.Device, device.Deps{
		Client: pkgha.UnwrapClient(ctx.HAClient),
		Clock:  ctx.Clock,
		Logger: ctx.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s lamp: %w", ctx.Config.Device.Type, err)
	}
	if ctx.ReadOnly {
		light = device.ReadOnly(light, ctx.Logger)
	}
	return light, nil
}

// pluginAdapter wraps the Manager to implement the plugin.Plugin interface.
type pluginAdapter struct {
	manager *Manager
}

func (p *pluginAdapter) Name() string {
	return pluginName
}

func (p *pluginAdapter) Start() error {
	return p.manager.Start()
}

func (p *pluginAdapter) Stop() {
	p.manager.Stop()
}

// Implement plugin.Resettable
func (p *pluginAdapter) Reset() error {
	return p.manager.Reset()
}

// Implement plugin.ShadowStateProvider
func (p *pluginAdapter) GetShadowState() shadowstate.PluginShadowState {
	return p.manager.GetShadowState()
}

// GetManager returns the underlying Manager instance.
// The API server uses it to read and drive the wake-up sequence.
func (p *pluginAdapter) GetManager() *Manager {
	return p.manager
}

// ManagerFrom returns the Manager behind a plugin created by this package
func ManagerFrom(p plugin.Plugin) (*Manager, bool) {
	adapter, ok := p.(*pluginAdapter)
	if !ok {
		return nil, false
	}
	return adapter.manager, true
}
