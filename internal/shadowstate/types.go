package shadowstate

import "time"

// MaxActionHistory bounds the number of actions kept per plugin
const MaxActionHistory = 20

// PluginShadowState is the interface that all plugin shadow states must implement
type PluginShadowState interface {
	GetCurrentInputs() map[string]interface{}
	GetLastActionInputs() map[string]interface{}
	GetOutputs() interface{}
	GetMetadata() StateMetadata
}

// StateMetadata contains metadata about the shadow state
type StateMetadata struct {
	LastUpdated time.Time `json:"lastUpdated"`
	PluginName  string    `json:"pluginName"`
}

// ActionRecord represents a single action taken by a plugin
type ActionRecord struct {
	Timestamp  time.Time              `json:"timestamp"`
	ActionType string                 `json:"actionType"`
	Reason     string                 `json:"reason"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// WakeUpShadowState represents the shadow state for the wake-up light plugin
type WakeUpShadowState struct {
	Plugin   string        `json:"plugin"`
	Inputs   WakeUpInputs  `json:"inputs"`
	Outputs  WakeUpOutputs `json:"outputs"`
	Metadata StateMetadata `json:"metadata"`
}

// WakeUpInputs tracks current and last-action input values
type WakeUpInputs struct {
	Current      map[string]interface{} `json:"current"`
	AtLastAction map[string]interface{} `json:"atLastAction"`
}

// WakeUpStatus mirrors the controller status
type WakeUpStatus struct {
	Phase             string    `json:"phase"`
	Mode              string    `json:"mode,omitempty"`
	TargetBrightness  int       `json:"targetBrightness"`
	CyclingBrightness int       `json:"cyclingBrightness"`
	EndTime           time.Time `json:"endTime"`
	NextCycle         time.Time `json:"nextCycle"`
	PowerOffAt        time.Time `json:"powerOffAt"`
	ProcessFinished   string    `json:"processFinished"`
}

// WakeUpOutputs tracks what the wake-up light did
type WakeUpOutputs struct {
	Status           WakeUpStatus   `json:"status"`
	LastActionTime   time.Time      `json:"lastActionTime"`
	LastActionType   string         `json:"lastActionType"`
	LastActionReason string         `json:"lastActionReason"`
	RecentActions    []ActionRecord `json:"recentActions"`
}

// GetCurrentInputs implements PluginShadowState
func (w *WakeUpShadowState) GetCurrentInputs() map[string]interface{} {
	return w.Inputs.Current
}

// GetLastActionInputs implements PluginShadowState
func (w *WakeUpShadowState) GetLastActionInputs() map[string]interface{} {
	return w.Inputs.AtLastAction
}

// GetOutputs implements PluginShadowState
func (w *WakeUpShadowState) GetOutputs() interface{} {
	return w.Outputs
}

// GetMetadata implements PluginShadowState
func (w *WakeUpShadowState) GetMetadata() StateMetadata {
	return w.Metadata
}

// NewWakeUpShadowState creates a new wake-up shadow state
func NewWakeUpShadowState(now time.Time) *WakeUpShadowState {
	return &WakeUpShadowState{
		Plugin: "wakeuplight",
		Inputs: WakeUpInputs{
			Current:      make(map[string]interface{}),
			AtLastAction: make(map[string]interface{}),
		},
		Outputs: WakeUpOutputs{
			Status:        WakeUpStatus{Phase: "off"},
			RecentActions: make([]ActionRecord, 0),
		},
		Metadata: StateMetadata{
			LastUpdated: now,
			PluginName:  "wakeuplight",
		},
	}
}
