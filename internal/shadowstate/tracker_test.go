package shadowstate

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"wakeuplight/internal/clock"
)

var trackerStart = time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC)

func TestTrackerRegisterPlugin(t *testing.T) {
	tracker := NewTracker()
	state := NewWakeUpShadowState(trackerStart)

	tracker.RegisterPlugin("wakeuplight", state)

	retrieved, ok := tracker.GetPluginState("wakeuplight")
	if !ok {
		t.Fatal("Failed to retrieve registered plugin state")
	}
	if retrieved.GetMetadata().PluginName != "wakeuplight" {
		t.Errorf("Expected plugin name wakeuplight, got %s", retrieved.GetMetadata().PluginName)
	}

	if _, ok := tracker.GetPluginState("missing"); ok {
		t.Error("Expected no state for unregistered plugin")
	}
}

func TestTrackerProviderTakesPrecedence(t *testing.T) {
	tracker := NewTracker()
	wakeUp := NewWakeUpTracker(clock.NewMockClock(trackerStart))
	callCount := 0

	tracker.RegisterPlugin("wakeuplight", NewWakeUpShadowState(trackerStart))
	tracker.RegisterPluginProvider("wakeuplight", func() PluginShadowState {
		callCount++
		return wakeUp.GetState()
	})

	wakeUp.RecordAction("start", "manual toggle", nil)

	state, ok := tracker.GetPluginState("wakeuplight")
	if !ok {
		t.Fatal("Failed to retrieve state from provider")
	}
	outputs := state.GetOutputs().(WakeUpOutputs)
	if outputs.LastActionType != "start" {
		t.Errorf("Expected provider state, got last action %q", outputs.LastActionType)
	}

	all := tracker.GetAllPluginStates()
	if len(all) != 1 {
		t.Errorf("Expected 1 plugin state, got %d", len(all))
	}
	if callCount != 2 {
		t.Errorf("Expected provider to be called twice, was called %d times", callCount)
	}
}

func TestWakeUpTrackerInputs(t *testing.T) {
	clk := clock.NewMockClock(trackerStart)
	tracker := NewWakeUpTracker(clk)

	clk.Advance(time.Minute)
	tracker.UpdateCurrentInputs(map[string]interface{}{
		"wakeUpLight": false,
		"lamp":        "off",
	})
	tracker.UpdateCurrentInputs(map[string]interface{}{"wakeUpLight": true})

	state := tracker.GetState()
	if state.Inputs.Current["wakeUpLight"] != true {
		t.Errorf("Expected merged input wakeUpLight=true, got %v", state.Inputs.Current["wakeUpLight"])
	}
	if state.Inputs.Current["lamp"] != "off" {
		t.Errorf("Expected lamp input to be kept, got %v", state.Inputs.Current["lamp"])
	}
	if len(state.Inputs.AtLastAction) != 0 {
		t.Error("Expected no last-action inputs before an action")
	}
	if !state.Metadata.LastUpdated.Equal(trackerStart.Add(time.Minute)) {
		t.Errorf("Expected LastUpdated from the clock, got %v", state.Metadata.LastUpdated)
	}

	tracker.RecordAction("start", "manual toggle", map[string]interface{}{"target": 50})
	tracker.UpdateCurrentInputs(map[string]interface{}{"lamp": "on"})

	state = tracker.GetState()
	if state.Inputs.AtLastAction["lamp"] != "off" {
		t.Errorf("Expected snapshot taken at action time, got %v", state.Inputs.AtLastAction["lamp"])
	}
	if state.Inputs.Current["lamp"] != "on" {
		t.Errorf("Expected current lamp input on, got %v", state.Inputs.Current["lamp"])
	}
}

func TestWakeUpTrackerStatusAndHistory(t *testing.T) {
	clk := clock.NewMockClock(trackerStart)
	tracker := NewWakeUpTracker(clk)

	if tracker.GetState().Outputs.Status.Phase != "off" {
		t.Error("Expected initial phase off")
	}

	tracker.UpdateStatus(WakeUpStatus{Phase: "ramping", TargetBrightness: 50, CyclingBrightness: 7})
	for i := 0; i < MaxActionHistory+5; i++ {
		clk.Advance(time.Second)
		tracker.RecordAction("step", fmt.Sprintf("step %d", i), nil)
	}

	state := tracker.GetState()
	if state.Outputs.Status.CyclingBrightness != 7 {
		t.Errorf("Expected cycling brightness 7, got %d", state.Outputs.Status.CyclingBrightness)
	}
	if len(state.Outputs.RecentActions) != MaxActionHistory {
		t.Fatalf("Expected %d actions, got %d", MaxActionHistory, len(state.Outputs.RecentActions))
	}
	if state.Outputs.RecentActions[0].Reason != "step 5" {
		t.Errorf("Expected oldest actions dropped, first is %q", state.Outputs.RecentActions[0].Reason)
	}
	if state.Outputs.LastActionReason != fmt.Sprintf("step %d", MaxActionHistory+4) {
		t.Errorf("Unexpected last action reason %q", state.Outputs.LastActionReason)
	}

	// The copy is independent of the tracker
	state.Outputs.RecentActions[0].Reason = "changed"
	state.Inputs.Current["x"] = 1
	fresh := tracker.GetState()
	if fresh.Outputs.RecentActions[0].Reason != "step 5" {
		t.Error("GetState returned shared action history")
	}
	if _, ok := fresh.Inputs.Current["x"]; ok {
		t.Error("GetState returned shared inputs")
	}
}

func TestWakeUpTrackerConcurrentAccess(t *testing.T) {
	tracker := NewWakeUpTracker(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func(n int) {
			defer wg.Done()
			tracker.UpdateCurrentInputs(map[string]interface{}{fmt.Sprintf("key%d", n): n})
		}(i)
		go func(n int) {
			defer wg.Done()
			tracker.RecordAction("step", fmt.Sprintf("step %d", n), nil)
		}(i)
		go func() {
			defer wg.Done()
			_ = tracker.GetState()
		}()
	}
	wg.Wait()

	if len(tracker.GetState().Outputs.RecentActions) != 10 {
		t.Errorf("Expected 10 actions, got %d", len(tracker.GetState().Outputs.RecentActions))
	}
}
