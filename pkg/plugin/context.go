package plugin

import (
	"time"

	"wakeuplight/internal/clock"
	"wakeuplight/internal/config"
	"wakeuplight/internal/device"
	"wakeuplight/internal/shadowstate"
	pkgha "wakeuplight/pkg/ha"
	pkgstate "wakeuplight/pkg/state"

	"go.uber.org/zap"
)

// Context carries the dependencies a Factory may use. HAClient and
// StateManager are the public views from pkg/ha and pkg/state; plugins in
// this module unwrap them to reach the internal implementations.
type Context struct {
	// HAClient provides access to Home Assistant for service calls
	// and entity state subscriptions.
	HAClient pkgha.Client

	// StateManager provides access to the helper entities that form the
	// user surface: reading and writing them, and subscribing to changes.
	StateManager pkgstate.Manager

	// Logger is a structured logger for the plugin to use.
	// Plugins should use logger.Named("pluginname") for namespacing.
	Logger *zap.Logger

	// ReadOnly indicates whether the application is in read-only mode.
	// When true, plugins should log what they would do but not make
	// actual changes to Home Assistant entities or the lamp.
	ReadOnly bool

	// ConfigDir is the path to the configuration directory.
	ConfigDir string

	// Config is the loaded wakeup.yaml.
	Config *config.WakeUpConfig

	// Light overrides the lamp built from Config.Device. Tests inject a
	// device.Fake here.
	Light device.Light

	// StateFile is where the wake-up attributes are persisted. Empty keeps
	// them in memory only.
	StateFile string

	// Clock drives every timer. Tests inject a clock.MockClock.
	Clock clock.Clock

	// Timezone is the configured timezone for schedules and displayed times.
	Timezone *time.Location

	// SubscriptionRegistry records the state variables each plugin
	// subscribes to, for shadow state input capture.
	SubscriptionRegistry *shadowstate.SubscriptionRegistry
}

// NewContext creates a new plugin context with the core dependencies. The
// wake-up specific fields are set by the caller.
func NewContext(
	haClient pkgha.Client,
	stateManager pkgstate.Manager,
	logger *zap.Logger,
	readOnly bool,
	configDir string,
	timezone *time.Location,
) *Context {
	return &Context{
		HAClient:             haClient,
		StateManager:         stateManager,
		Logger:               logger,
		ReadOnly:             readOnly,
		ConfigDir:            configDir,
		Clock:                clock.NewRealClock(),
		Timezone:             timezone,
		SubscriptionRegistry: shadowstate.NewSubscriptionRegistry(),
	}
}
