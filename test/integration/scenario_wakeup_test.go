package integration

import (
	"path/filepath"
	"testing"
	"time"

	"wakeuplight/internal/config"
	"wakeuplight/internal/state"
	"wakeuplight/internal/wakeup"
	"wakeuplight/pkg/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Monday
var scenarioStart = time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC)

func setupWakeUp(t *testing.T) (*testutil.TestEnv, *config.WakeUpConfig) {
	t.Helper()
	env, err := testutil.NewTestEnv(testAddr, testToken, scenarioStart)
	require.NoError(t, err)
	t.Cleanup(env.Cleanup)

	cfg, err := config.NewLoader(t.TempDir(), zap.NewNop()).Load()
	require.NoError(t, err)
	return env, cfg
}

func lampBrightness(env *testutil.TestEnv) (string, float64) {
	lamp := env.Server.GetState(testutil.DefaultLightEntity)
	if lamp == nil {
		return "", 0
	}
	brightness, _ := lamp.Attributes["brightness"].(float64)
	return lamp.State, brightness
}

func helperString(t *testing.T, env *testutil.TestEnv, key string) string {
	t.Helper()
	value, err := env.StateManager.GetString(key)
	require.NoError(t, err)
	return value
}

func helperBool(t *testing.T, env *testutil.TestEnv, key string) bool {
	t.Helper()
	value, err := env.StateManager.GetBool(key)
	require.NoError(t, err)
	return value
}

// TestScenario_WakeUpRamp walks a full sequence: the helper switch starts
// it, the lamp ramps from 1% to the target and the helpers follow
func TestScenario_WakeUpRamp(t *testing.T) {
	env, cfg := setupWakeUp(t)
	stateFile := filepath.Join(t.TempDir(), "wakeup.json")
	manager, err := env.StartWakeUpLight(cfg, stateFile)
	require.NoError(t, err)

	t.Log("GIVEN: The lamp is off and the settings are 50% over 30 minutes")
	state0, _ := lampBrightness(env)
	require.Equal(t, "off", state0)

	t.Log("WHEN: The wake-up switch is turned on")
	require.NoError(t, env.StateManager.SetBool(state.KeyWakeUpLight, true))

	t.Log("THEN: The lamp comes on at 1% and the sequence is ramping")
	require.Eventually(t, func() bool {
		return manager.Status().Phase == wakeup.PhaseRamping
	}, 2*time.Second, 10*time.Millisecond)
	lampState, brightness := lampBrightness(env)
	assert.Equal(t, "on", lampState)
	assert.Equal(t, 3.0, brightness)
	assert.Equal(t, "ramping", helperString(t, env, state.KeyWakeUpPhase))
	assert.Equal(t, "04.03.2024, 06:30:00", helperString(t, env, state.KeyWakeUpProcessFinished))
	assert.FileExists(t, stateFile)

	t.Log("WHEN: Half of the ramp time passes")
	env.Clock.Advance(15 * time.Minute)

	t.Log("THEN: The lamp is brighter but still below the target")
	_, brightness = lampBrightness(env)
	assert.Greater(t, brightness, 3.0)
	assert.Less(t, brightness, 128.0)
	assert.Equal(t, wakeup.PhaseRamping, manager.Status().Phase)

	t.Log("WHEN: The ramp time is over")
	env.Clock.Advance(15 * time.Minute)

	t.Log("THEN: The lamp stays on at the target and the sequence is finished")
	require.Eventually(t, func() bool {
		return manager.Status().Phase == wakeup.PhaseOff
	}, 2*time.Second, 10*time.Millisecond)
	lampState, brightness = lampBrightness(env)
	assert.Equal(t, "on", lampState)
	assert.Equal(t, 128.0, brightness)
	require.Eventually(t, func() bool {
		return !helperBool(t, env, state.KeyWakeUpLight)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "off", helperString(t, env, state.KeyWakeUpPhase))

	steps := testutil.BrightnessSteps(env.GetServiceCalls(), testutil.DefaultLightEntity)
	require.Len(t, steps, 50, "one call per brightness step")
	for i, step := range steps {
		assert.Equal(t, i+1, step)
	}
}

// TestScenario_LampSwitchedOffByHand stops the sequence when someone turns
// the lamp off in the middle of the ramp
func TestScenario_LampSwitchedOffByHand(t *testing.T) {
	env, cfg := setupWakeUp(t)
	manager, err := env.StartWakeUpLight(cfg, "")
	require.NoError(t, err)

	require.NoError(t, env.StateManager.SetBool(state.KeyWakeUpLight, true))
	require.Eventually(t, func() bool {
		return manager.Status().Phase == wakeup.PhaseRamping
	}, 2*time.Second, 10*time.Millisecond)
	env.Clock.Advance(5 * time.Minute)

	t.Log("WHEN: The lamp is switched off at the wall")
	env.Server.SetState(testutil.DefaultLightEntity, "off", map[string]interface{}{})

	t.Log("THEN: The sequence stops and the switch follows")
	require.Eventually(t, func() bool {
		return manager.Status().Phase == wakeup.PhaseOff
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return !helperBool(t, env, state.KeyWakeUpLight)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "lamp switched off", manager.Status().Reason)
}

// TestScenario_LampAlreadyOn refuses to start and turns the switch back off
func TestScenario_LampAlreadyOn(t *testing.T) {
	env, cfg := setupWakeUp(t)
	manager, err := env.StartWakeUpLight(cfg, "")
	require.NoError(t, err)

	env.Server.SetState(testutil.DefaultLightEntity, "on", map[string]interface{}{"brightness": 200.0})
	require.Eventually(t, func() bool {
		lamp, err := env.HAClient.GetState(testutil.DefaultLightEntity)
		return err == nil && lamp.State == "on"
	}, 2*time.Second, 10*time.Millisecond)
	env.ClearServiceCalls()

	require.NoError(t, env.StateManager.SetBool(state.KeyWakeUpLight, true))

	require.Eventually(t, func() bool {
		return !helperBool(t, env, state.KeyWakeUpLight)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, wakeup.PhaseOff, manager.Status().Phase)
	assert.Empty(t, testutil.FilterServiceCalls(env.GetServiceCalls(), "light", "turn_on"))
}

// TestScenario_LampUnreachable reverts the switch when the lamp rejects
// every command
func TestScenario_LampUnreachable(t *testing.T) {
	env, cfg := setupWakeUp(t)
	manager, err := env.StartWakeUpLight(cfg, "")
	require.NoError(t, err)

	env.Server.FailServiceCalls("light", "turn_on", 2)
	require.NoError(t, env.StateManager.SetBool(state.KeyWakeUpLight, true))

	require.Eventually(t, func() bool {
		return !helperBool(t, env, state.KeyWakeUpLight)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, wakeup.PhaseOff, manager.Status().Phase)
	lampState, _ := lampBrightness(env)
	assert.Equal(t, "off", lampState)
}
