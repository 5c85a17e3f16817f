package state

import (
	"wakeuplight/internal/state"
)

// managerAdapter exposes an internal manager through Manager. The internal
// manager already has the right method set apart from the handler type.
type managerAdapter struct {
	*state.Manager
}

// WrapManager exposes m to plugins
func WrapManager(m *state.Manager) Manager {
	return &managerAdapter{Manager: m}
}

// UnwrapManager returns the internal manager behind m, or nil when m was
// not created by WrapManager
func UnwrapManager(m Manager) *state.Manager {
	if adapter, ok := m.(*managerAdapter); ok {
		return adapter.Manager
	}
	return nil
}

func (a *managerAdapter) Subscribe(key string, handler StateChangeHandler) (Subscription, error) {
	return a.Manager.Subscribe(key, state.StateChangeHandler(handler))
}
