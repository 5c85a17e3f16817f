package testutil

import (
	"fmt"
	"time"

	"wakeuplight/internal/clock"
	"wakeuplight/internal/config"
	"wakeuplight/internal/ha"
	"wakeuplight/internal/plugins/wakeuplight"
	"wakeuplight/internal/state"
	pkgha "wakeuplight/pkg/ha"
	"wakeuplight/pkg/plugin"
	pkgstate "wakeuplight/pkg/state"

	"go.uber.org/zap"
)

// TestEnv provides a complete test environment for integration tests.
// It creates real internal implementations but exposes them via pkg interfaces,
// and drives every timer through a MockClock.
type TestEnv struct {
	// Public fields - exposed via pkg interfaces
	Server       *MockHAServer
	HAClient     pkgha.Client
	StateManager pkgstate.Manager
	Logger       *zap.Logger
	Clock        *clock.MockClock

	// Internal references for cleanup and advanced usage
	internalClient *ha.Client
	plugins        []plugin.Plugin
}

// NewTestEnv creates a fully configured test environment with mock HA server,
// connected client and synced state manager. The wake-up light drives the
// DefaultLightEntity lamp through the hub.
//
// Example usage:
//
//	env, err := testutil.NewTestEnv("localhost:18123", "test_token", start)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer env.Cleanup()
func NewTestEnv(addr, token string, start time.Time) (*TestEnv, error) {
	logger, _ := zap.NewDevelopment()

	// Start mock HA server
	server := NewMockHAServer(addr, token)
	server.SetLogger(logger)
	server.InitializeStates()
	if err := server.Start(); err != nil {
		return nil, fmt.Errorf("failed to start mock server: %w", err)
	}

	// Create and connect client
	client := ha.NewClient(fmt.Sprintf("ws://%s/api/websocket", addr), token, logger)
	if err := client.Connect(); err != nil {
		server.Stop()
		return nil, fmt.Errorf("failed to connect client: %w", err)
	}

	// Create state manager and sync
	stateManager := state.NewManager(client, logger, false)
	if err := stateManager.SyncFromHA(); err != nil {
		client.Disconnect()
		server.Stop()
		return nil, fmt.Errorf("failed to sync state: %w", err)
	}

	return &TestEnv{
		Server:         server,
		HAClient:       pkgha.WrapClient(client),
		StateManager:   pkgstate.WrapManager(stateManager),
		Logger:         logger,
		Clock:          clock.NewMockClock(start),
		internalClient: client,
	}, nil
}

// StartWakeUpLight creates and starts the wake-up light plugin through the
// plugin registry, the same way the application does.
func (e *TestEnv) StartWakeUpLight(cfg *config.WakeUpConfig, stateFile string) (*wakeuplight.Manager, error) {
	info := plugin.Get("wakeuplight")
	if info == nil {
		return nil, fmt.Errorf("wakeuplight plugin is not registered")
	}

	ctx := plugin.NewContext(e.HAClient, e.StateManager, e.Logger, false, "", time.UTC)
	ctx.Config = cfg
	ctx.StateFile = stateFile
	ctx.Clock = e.Clock

	p, err := info.Factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("create wakeuplight: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("start wakeuplight: %w", err)
	}
	e.plugins = append(e.plugins, p)

	manager, ok := wakeuplight.ManagerFrom(p)
	if !ok {
		return nil, fmt.Errorf("unexpected plugin type %T", p)
	}
	return manager, nil
}

// Cleanup stops all components in the correct order.
// Always call this in a defer after creating the TestEnv.
func (e *TestEnv) Cleanup() {
	plugin.StopAll(e.plugins)
	if e.internalClient != nil {
		e.internalClient.Disconnect()
	}
	if e.Server != nil {
		e.Server.Stop()
	}
}

// GetServiceCalls returns all service calls made to the mock server.
// Useful for asserting that plugins made expected HA service calls.
func (e *TestEnv) GetServiceCalls() []ServiceCall {
	return e.Server.GetServiceCalls()
}

// ClearServiceCalls clears the recorded service calls.
func (e *TestEnv) ClearServiceCalls() {
	e.Server.ClearServiceCalls()
}
