package shadowstate

import (
	"errors"
	"testing"

	"wakeuplight/internal/ha"
	"wakeuplight/internal/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingUpdater keeps the last inputs it received
type recordingUpdater struct {
	inputs  map[string]interface{}
	updates int
}

func (r *recordingUpdater) UpdateCurrentInputs(inputs map[string]interface{}) {
	r.inputs = inputs
	r.updates++
}

func newTestStateManager(t *testing.T) (*state.Manager, *ha.MockClient) {
	t.Helper()
	client := ha.NewMockClient()
	client.SetState("input_boolean.wakeup_light", "off", nil)
	client.SetState("input_number.wakeup_brightness", "60", nil)
	client.SetState("input_text.wakeup_phase", "off", nil)
	require.NoError(t, client.Connect())

	manager := state.NewManager(client, zap.NewNop(), false)
	require.NoError(t, manager.SyncFromHA())
	return manager, client
}

func TestSubscriptionHelper_CapturesBeforeHandler(t *testing.T) {
	manager, client := newTestStateManager(t)
	updater := &recordingUpdater{}
	registry := NewSubscriptionRegistry()
	helper := NewSubscriptionHelper(manager, registry, updater, "wakeuplight", zap.NewNop())

	var seenAtHandler map[string]interface{}
	handler := func(key string, oldValue, newValue interface{}) {
		seenAtHandler = updater.inputs
	}
	require.NoError(t, helper.Watch(state.KeyWakeUpLight, handler))
	require.NoError(t, helper.Watch(state.KeyWakeUpBrightness, handler))
	assert.Equal(t, []string{state.KeyWakeUpLight, state.KeyWakeUpBrightness}, registry.Keys("wakeuplight"))

	client.SimulateStateChange("input_boolean.wakeup_light", "on")

	require.Equal(t, 1, updater.updates)
	assert.Equal(t, map[string]interface{}{
		state.KeyWakeUpLight:      true,
		state.KeyWakeUpBrightness: 60.0,
	}, seenAtHandler)

	helper.Close()
	client.SimulateStateChange("input_boolean.wakeup_light", "off")
	assert.Equal(t, 1, updater.updates)
	assert.Empty(t, registry.Plugins())
}

func TestSubscriptionHelper_UnknownKey(t *testing.T) {
	manager, _ := newTestStateManager(t)
	registry := NewSubscriptionRegistry()
	helper := NewSubscriptionHelper(manager, registry, nil, "wakeuplight", zap.NewNop())

	err := helper.Watch("doesNotExist", func(string, interface{}, interface{}) {})
	assert.ErrorContains(t, err, "watch doesNotExist")
	assert.Empty(t, registry.Keys("wakeuplight"))

	// no updater: nothing to do
	helper.CaptureInputs()
}

func TestSubscriptionRegistry(t *testing.T) {
	registry := NewSubscriptionRegistry()
	registry.Add("wakeuplight", state.KeyWakeUpPhase)
	registry.Add("wakeuplight", state.KeyWakeUpPhase)
	registry.Add("reset", state.KeyReset)

	assert.Equal(t, []string{state.KeyWakeUpPhase}, registry.Keys("wakeuplight"))
	assert.Equal(t, []string{"reset", "wakeuplight"}, registry.Plugins())

	keys := registry.Keys("wakeuplight")
	keys[0] = "mutated"
	assert.Equal(t, []string{state.KeyWakeUpPhase}, registry.Keys("wakeuplight"))

	registry.Remove("reset")
	assert.Equal(t, []string{"wakeuplight"}, registry.Plugins())
	assert.Nil(t, registry.Keys("unknown"))
}

// failingReader fails every read
type failingReader struct{}

func (failingReader) GetBool(string) (bool, error)      { return false, errors.New("down") }
func (failingReader) GetString(string) (string, error)  { return "", errors.New("down") }
func (failingReader) GetNumber(string) (float64, error) { return 0, errors.New("down") }

func TestCaptureInputs(t *testing.T) {
	manager, _ := newTestStateManager(t)

	inputs := CaptureInputs(manager, []string{state.KeyWakeUpPhase, state.KeyWakeUpBrightness, "doesNotExist"})
	assert.Equal(t, map[string]interface{}{
		state.KeyWakeUpPhase:      "off",
		state.KeyWakeUpBrightness: 60.0,
	}, inputs)

	assert.Empty(t, CaptureInputs(failingReader{}, []string{state.KeyWakeUpLight}))

	merged := MergeInputs(inputs, map[string]interface{}{
		"lamp":               "on",
		state.KeyWakeUpPhase: "ramping",
	})
	assert.Equal(t, "ramping", merged[state.KeyWakeUpPhase])
	assert.Equal(t, "on", merged["lamp"])
	assert.Len(t, MergeInputs(nil, map[string]interface{}{"a": 1}), 1)
}
