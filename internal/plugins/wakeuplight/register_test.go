package wakeuplight

import (
	"context"
	"testing"
	"time"

	"wakeuplight/internal/device"
	"wakeuplight/internal/ha"
	"wakeuplight/internal/state"
	pkgha "wakeuplight/pkg/ha"
	"wakeuplight/pkg/plugin"
	pkgstate "wakeuplight/pkg/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPluginContext(t *testing.T, readOnly bool) (*plugin.Context, *ha.MockClient) {
	t.Helper()
	client := ha.NewMockClient()
	client.SetState("light.bedroom", "off", nil)
	require.NoError(t, client.Connect())

	stateManager := state.NewManager(client, zap.NewNop(), readOnly)
	require.NoError(t, stateManager.SyncFromHA())

	ctx := plugin.NewContext(pkgha.WrapClient(client), pkgstate.WrapManager(stateManager), zap.NewNop(), readOnly, "", time.UTC)
	ctx.Config = defaultConfig(t)
	return ctx, client
}

func TestRegistration(t *testing.T) {
	info := plugin.Get(pluginName)
	require.NotNil(t, info)
	assert.Equal(t, plugin.PriorityDefault, info.Priority)
	assert.NotNil(t, info.Factory)
}

func TestCreatePlugin_ConnectsConfiguredLamp(t *testing.T) {
	ctx, client := newPluginContext(t, false)

	p, err := createPlugin(ctx)
	require.NoError(t, err)
	assert.Equal(t, pluginName, p.Name())

	manager, ok := ManagerFrom(p)
	require.True(t, ok)
	assert.Equal(t, "light.bedroom", manager.light.Name())

	require.NoError(t, manager.light.SetPower(context.Background(), true))
	calls := client.GetServiceCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "light", calls[0].Domain)
	assert.Equal(t, "turn_on", calls[0].Service)
}

func TestCreatePlugin_ReadOnlyLamp(t *testing.T) {
	ctx, client := newPluginContext(t, true)

	p, err := createPlugin(ctx)
	require.NoError(t, err)
	manager, ok := ManagerFrom(p)
	require.True(t, ok)

	require.NoError(t, manager.light.SetBrightness(context.Background(), 40))
	assert.Empty(t, client.GetServiceCalls())
}

func TestCreatePlugin_InjectedLamp(t *testing.T) {
	ctx, _ := newPluginContext(t, false)
	fake := device.NewFake("fake")
	ctx.Light = fake

	p, err := createPlugin(ctx)
	require.NoError(t, err)
	manager, _ := ManagerFrom(p)
	assert.Same(t, fake, manager.light)
}

func TestCreatePlugin_Errors(t *testing.T) {
	t.Run("missing config", func(t *testing.T) {
		ctx, _ := newPluginContext(t, false)
		ctx.Config = nil
		_, err := createPlugin(ctx)
		assert.ErrorContains(t, err, "requires the wake-up config")
	})

	t.Run("foreign state manager", func(t *testing.T) {
		ctx, _ := newPluginContext(t, false)
		ctx.StateManager = nil
		_, err := createPlugin(ctx)
		assert.ErrorContains(t, err, "requires internal state.Manager")
	})

	t.Run("no hub client for homeassistant lamp", func(t *testing.T) {
		ctx, _ := newPluginContext(t, false)
		ctx.HAClient = nil
		_, err := createPlugin(ctx)
		assert.ErrorContains(t, err, "needs a hub client")
	})
}

func TestManagerFrom_OtherPlugin(t *testing.T) {
	_, ok := ManagerFrom(nil)
	assert.False(t, ok)
}
