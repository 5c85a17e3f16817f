// Package plugin holds the plugin contract and the registry the daemon
// builds its plugins from. Plugin packages register a Factory from init(),
// so the set of plugins is chosen at link time.
package plugin

import "wakeuplight/internal/shadowstate"

// Plugin is a unit of automation with a start/stop lifecycle
type Plugin interface {
	Name() string

	// Start subscribes to the helpers the plugin reacts to. It must not
	// block.
	Start() error

	// Stop releases subscriptions and timers. Persistent state is kept so a
	// later Start can resume.
	Stop()
}

// Resettable plugins take part in the reset helper. Reset reloads
// configuration and returns the plugin to its idle state.
type Resettable interface {
	Reset() error
}

// ShadowStateProvider plugins expose the inputs behind their last actions
type ShadowStateProvider interface {
	GetShadowState() shadowstate.PluginShadowState
}

// Factory builds a plugin from the shared dependencies
type Factory func(ctx *Context) (Plugin, error)
