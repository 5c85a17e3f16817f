package state

// StateType represents the type of a state variable
type StateType string

const (
	TypeBool   StateType = "bool"
	TypeString StateType = "string"
	TypeNumber StateType = "number"
)

// StateVariable defines metadata for a state variable
type StateVariable struct {
	Key      string      // Go variable name (e.g., "wakeUpLight")
	EntityID string      // HA entity ID (e.g., "input_boolean.wakeup_light")
	Type     StateType   // bool, string, number
	Default  interface{} // Default value
}

// Keys of the helper entities that make up the wake-up light's user surface
const (
	KeyWakeUpLight           = "wakeUpLight"
	KeyWakeUpBrightness      = "wakeUpBrightness"
	KeyWakeUpDuration        = "wakeUpDuration"
	KeyWakeUpAutoOff         = "wakeUpAutoOff"
	KeyWakeUpColor           = "wakeUpColor"
	KeyWakeUpProcessFinished = "wakeUpProcessFinished"
	KeyWakeUpPhase           = "wakeUpPhase"
	KeyReset                 = "reset"
)

// AllVariables contains every helper entity synced with HA
var AllVariables = []StateVariable{
	// Booleans
	{Key: KeyWakeUpLight, EntityID: "input_boolean.wakeup_light", Type: TypeBool, Default: false},
	{Key: KeyReset, EntityID: "input_boolean.wakeup_reset", Type: TypeBool, Default: false},

	// Numbers
	{Key: KeyWakeUpBrightness, EntityID: "input_number.wakeup_brightness", Type: TypeNumber, Default: 50.0},
	{Key: KeyWakeUpDuration, EntityID: "input_number.wakeup_duration", Type: TypeNumber, Default: 30.0},
	{Key: KeyWakeUpAutoOff, EntityID: "input_number.wakeup_auto_off", Type: TypeNumber, Default: 0.0},

	// Text
	{Key: KeyWakeUpColor, EntityID: "input_text.wakeup_color", Type: TypeString, Default: ""},
	{Key: KeyWakeUpProcessFinished, EntityID: "input_text.wakeup_process_finished", Type: TypeString, Default: ""},
	{Key: KeyWakeUpPhase, EntityID: "input_text.wakeup_phase", Type: TypeString, Default: "off"},
}

// VariablesByKey creates a map of variables by their key
func VariablesByKey() map[string]StateVariable {
	vars := make(map[string]StateVariable)
	for _, v := range AllVariables {
		vars[v.Key] = v
	}
	return vars
}

// VariablesByEntityID creates a map of variables by their entity ID
func VariablesByEntityID() map[string]StateVariable {
	vars := make(map[string]StateVariable)
	for _, v := range AllVariables {
		vars[v.EntityID] = v
	}
	return vars
}
