package reset

import (
	"errors"
	"testing"

	"wakeuplight/internal/ha"
	"wakeuplight/internal/state"
	"wakeuplight/pkg/plugin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// resettablePlugin counts Reset() calls
type resettablePlugin struct {
	name       string
	resetCount int
	resetError error
	order      *[]string
}

func (m *resettablePlugin) Name() string { return m.name }
func (m *resettablePlugin) Start() error { return nil }
func (m *resettablePlugin) Stop()        {}

func (m *resettablePlugin) Reset() error {
	m.resetCount++
	if m.order != nil {
		*m.order = append(*m.order, m.name)
	}
	return m.resetError
}

// plainPlugin does not implement Resettable
type plainPlugin struct{}

func (plainPlugin) Name() string { return "plain" }
func (plainPlugin) Start() error { return nil }
func (plainPlugin) Stop()        {}

func newTestStateManager(t *testing.T, readOnly bool) (*state.Manager, *ha.MockClient) {
	t.Helper()
	client := ha.NewMockClient()
	client.SetState("input_boolean.wakeup_reset", "off", nil)
	require.NoError(t, client.Connect())

	manager := state.NewManager(client, zap.NewNop(), readOnly)
	require.NoError(t, manager.SyncFromHA())
	return manager, client
}

func startCoordinator(t *testing.T, stateManager *state.Manager, plugins ...plugin.Plugin) *Coordinator {
	t.Helper()
	coordinator := NewCoordinator(stateManager, zap.NewNop(), plugins)
	require.NoError(t, coordinator.Start())
	t.Cleanup(coordinator.Stop)
	return coordinator
}

func TestCoordinator_ResetTrigger(t *testing.T) {
	stateManager, _ := newTestStateManager(t, false)
	var order []string
	wakeUp := &resettablePlugin{name: "wakeuplight", order: &order}
	other := &resettablePlugin{name: "other", order: &order}
	startCoordinator(t, stateManager, wakeUp, plainPlugin{}, other)

	require.NoError(t, stateManager.SetBool(state.KeyReset, true))

	assert.Equal(t, []string{"wakeuplight", "other"}, order)

	reset, err := stateManager.GetBool(state.KeyReset)
	require.NoError(t, err)
	assert.False(t, reset, "reset helper should be turned back off")
}

func TestCoordinator_ResetFromHA(t *testing.T) {
	stateManager, client := newTestStateManager(t, false)
	wakeUp := &resettablePlugin{name: "wakeuplight"}
	startCoordinator(t, stateManager, wakeUp)

	client.SimulateStateChange("input_boolean.wakeup_reset", "on")

	assert.Equal(t, 1, wakeUp.resetCount)
	entity, err := client.GetState("input_boolean.wakeup_reset")
	require.NoError(t, err)
	assert.Equal(t, "off", entity.State)
}

func TestCoordinator_ContinuesAfterPluginError(t *testing.T) {
	stateManager, _ := newTestStateManager(t, false)
	failing := &resettablePlugin{name: "failing", resetError: errors.New("lamp unreachable")}
	succeeding := &resettablePlugin{name: "succeeding"}

	coordinator := NewCoordinator(stateManager, zap.NewNop(), []plugin.Plugin{failing, succeeding})

	err := coordinator.Reset()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reset failing: lamp unreachable")
	assert.Equal(t, 1, failing.resetCount)
	assert.Equal(t, 1, succeeding.resetCount)
}

func TestCoordinator_ReadOnlyMode(t *testing.T) {
	stateManager, client := newTestStateManager(t, true)
	wakeUp := &resettablePlugin{name: "wakeuplight"}
	startCoordinator(t, stateManager, wakeUp)

	client.SimulateStateChange("input_boolean.wakeup_reset", "on")

	// Plugins are still reset, but nothing is written back to HA
	assert.Equal(t, 1, wakeUp.resetCount)
	assert.Empty(t, client.GetServiceCalls())
}

func TestCoordinator_ResetFalseIgnored(t *testing.T) {
	stateManager, client := newTestStateManager(t, false)
	wakeUp := &resettablePlugin{name: "wakeuplight"}
	startCoordinator(t, stateManager, wakeUp)

	client.SimulateStateChange("input_boolean.wakeup_reset", "on")
	client.SimulateStateChange("input_boolean.wakeup_reset", "off")

	assert.Equal(t, 1, wakeUp.resetCount)
}

func TestCoordinator_Stop(t *testing.T) {
	stateManager, _ := newTestStateManager(t, false)
	wakeUp := &resettablePlugin{name: "wakeuplight"}

	coordinator := NewCoordinator(stateManager, zap.NewNop(), []plugin.Plugin{wakeUp})
	require.NoError(t, coordinator.Start())

	coordinator.Stop()
	// Multiple stops should be safe
	coordinator.Stop()

	require.NoError(t, stateManager.SetBool(state.KeyReset, true))
	assert.Equal(t, 0, wakeUp.resetCount)
}
