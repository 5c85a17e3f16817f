package shadowstate

import (
	"sync"

	"wakeuplight/internal/clock"
)

// Tracker manages shadow state for all plugins
type Tracker struct {
	mu             sync.RWMutex
	pluginStates   map[string]PluginShadowState
	stateProviders map[string]func() PluginShadowState
}

// NewTracker creates a new shadow state tracker
func NewTracker() *Tracker {
	return &Tracker{
		pluginStates:   make(map[string]PluginShadowState),
		stateProviders: make(map[string]func() PluginShadowState),
	}
}

// RegisterPlugin registers a plugin's shadow state
func (t *Tracker) RegisterPlugin(pluginName string, state PluginShadowState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pluginStates[pluginName] = state
}

// RegisterPluginProvider registers a function that provides a plugin's shadow state dynamically
func (t *Tracker) RegisterPluginProvider(pluginName string, provider func() PluginShadowState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateProviders[pluginName] = provider
}

// GetPluginState retrieves a plugin's shadow state
func (t *Tracker) GetPluginState(pluginName string) (PluginShadowState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if provider, ok := t.stateProviders[pluginName]; ok {
		return provider(), true
	}

	state, ok := t.pluginStates[pluginName]
	return state, ok
}

// GetAllPluginStates retrieves all plugin shadow states. Providers win over
// static states registered under the same name.
func (t *Tracker) GetAllPluginStates() map[string]PluginShadowState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	states := make(map[string]PluginShadowState, len(t.pluginStates)+len(t.stateProviders))
	for k, v := range t.pluginStates {
		states[k] = v
	}
	for k, provider := range t.stateProviders {
		states[k] = provider()
	}
	return states
}

// WakeUpTracker manages shadow state for the wake-up light plugin
type WakeUpTracker struct {
	mu    sync.RWMutex
	clock clock.Clock
	state *WakeUpShadowState
}

// NewWakeUpTracker creates a new wake-up shadow state tracker
func NewWakeUpTracker(clk clock.Clock) *WakeUpTracker {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &WakeUpTracker{
		clock: clk,
		state: NewWakeUpShadowState(clk.Now()),
	}
}

// UpdateCurrentInputs merges inputs into the current input values
func (wt *WakeUpTracker) UpdateCurrentInputs(inputs map[string]interface{}) {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	for key, value := range inputs {
		wt.state.Inputs.Current[key] = value
	}
	wt.state.Metadata.LastUpdated = wt.clock.Now()
}

// SnapshotInputsForAction captures current inputs as the at-last-action snapshot
func (wt *WakeUpTracker) SnapshotInputsForAction() {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	wt.state.Inputs.AtLastAction = make(map[string]interface{}, len(wt.state.Inputs.Current))
	for key, value := range wt.state.Inputs.Current {
		wt.state.Inputs.AtLastAction[key] = value
	}
}

// UpdateStatus records the latest controller status
func (wt *WakeUpTracker) UpdateStatus(status WakeUpStatus) {
	wt.mu.Lock()
	defer wt.mu.Unlock()

	wt.state.Outputs.Status = status
	wt.state.Metadata.LastUpdated = wt.clock.Now()
}

// RecordAction snapshots the inputs and appends an action to the bounded
// history
func (wt *WakeUpTracker) RecordAction(actionType, reason string, details map[string]interface{}) {
	wt.SnapshotInputsForAction()

	wt.mu.Lock()
	defer wt.mu.Unlock()

	now := wt.clock.Now()
	wt.state.Outputs.LastActionTime = now
	wt.state.Outputs.LastActionType = actionType
	wt.state.Outputs.LastActionReason = reason
	wt.state.Outputs.RecentActions = append(wt.state.Outputs.RecentActions, ActionRecord{
		Timestamp:  now,
		ActionType: actionType,
		Reason:     reason,
		Details:    details,
	})
	if n := len(wt.state.Outputs.RecentActions); n > MaxActionHistory {
		wt.state.Outputs.RecentActions = wt.state.Outputs.RecentActions[n-MaxActionHistory:]
	}
	wt.state.Metadata.LastUpdated = now
}

// GetState returns the current shadow state (thread-safe copy)
func (wt *WakeUpTracker) GetState() *WakeUpShadowState {
	wt.mu.RLock()
	defer wt.mu.RUnlock()

	stateCopy := &WakeUpShadowState{
		Plugin: wt.state.Plugin,
		Inputs: WakeUpInputs{
			Current:      make(map[string]interface{}, len(wt.state.Inputs.Current)),
			AtLastAction: make(map[string]interface{}, len(wt.state.Inputs.AtLastAction)),
		},
		Outputs:  wt.state.Outputs,
		Metadata: wt.state.Metadata,
	}
	for k, v := range wt.state.Inputs.Current {
		stateCopy.Inputs.Current[k] = v
	}
	for k, v := range wt.state.Inputs.AtLastAction {
		stateCopy.Inputs.AtLastAction[k] = v
	}
	stateCopy.Outputs.RecentActions = append([]ActionRecord(nil), wt.state.Outputs.RecentActions...)
	return stateCopy
}
