package shadowstate

import "wakeuplight/internal/state"

// InputReader reads helper values. *state.Manager satisfies it.
type InputReader interface {
	GetBool(key string) (bool, error)
	GetString(key string) (string, error)
	GetNumber(key string) (float64, error)
}

var variableTypes = func() map[string]state.StateType {
	types := make(map[string]state.StateType, len(state.AllVariables))
	for _, v := range state.AllVariables {
		types[v.Key] = v.Type
	}
	return types
}()

// CaptureInputs reads the current value of each key. Keys that are not
// known helpers, or that cannot be read, are left out.
func CaptureInputs(reader InputReader, keys []string) map[string]interface{} {
	inputs := make(map[string]interface{}, len(keys))
	for _, key := range keys {
		var (
			value interface{}
			err   error
		)
		switch variableTypes[key] {
		case state.TypeBool:
			value, err = reader.GetBool(key)
		case state.TypeNumber:
			value, err = reader.GetNumber(key)
		case state.TypeString:
			value, err = reader.GetString(key)
		default:
			continue
		}
		if err == nil {
			inputs[key] = value
		}
	}
	return inputs
}

// MergeInputs copies extra over base and returns base. A nil base is
// allocated.
func MergeInputs(base, extra map[string]interface{}) map[string]interface{} {
	if base == nil {
		base = make(map[string]interface{}, len(extra))
	}
	for k, v := range extra {
		base[k] = v
	}
	return base
}
