package wakeuplight

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"wakeuplight/internal/clock"
	"wakeuplight/internal/config"
	"wakeuplight/internal/device"
	"wakeuplight/internal/schedule"
	"wakeuplight/internal/shadowstate"
	"wakeuplight/internal/state"
	"wakeuplight/internal/wakeup"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const pluginName = "wakeuplight"

// operationTimeout bounds a lamp operation started from a helper change
const operationTimeout = 30 * time.Second

// settingsKeys are the helpers that make up the manual settings
var settingsKeys = []string{
	state.KeyWakeUpBrightness,
	state.KeyWakeUpDuration,
	state.KeyWakeUpAutoOff,
	state.KeyWakeUpColor,
}

// Options configure a Manager
type Options struct {
	Config *config.WakeUpConfig
	// ConfigDir is re-read on Reset. Empty keeps Config.
	ConfigDir string
	Light     device.Light
	// Store defaults to memory only
	Store    wakeup.Store
	Clock    clock.Clock
	Timezone *time.Location
	ReadOnly bool
	Registry *shadowstate.SubscriptionRegistry
}

// Manager binds the helper entities, the lamp and the weekly schedule to
// the wake-up controller
type Manager struct {
	stateManager  *state.Manager
	light         device.Light
	controller    *wakeup.Controller
	schedule      *schedule.Schedule
	configDir     string
	clock         clock.Clock
	logger        *zap.Logger
	readOnly      bool
	shadowTracker *shadowstate.WakeUpTracker

	// Subscription helper for automatic shadow state input capture
	subHelper *shadowstate.SubscriptionHelper

	mu          sync.Mutex
	lastPhase   wakeup.Phase
	stopWatch   func()
	unsubscribe func()
}

// NewManager creates a new wake-up light manager
func NewManager(stateManager *state.Manager, logger *zap.Logger, opts Options) (*Manager, error) {
	if opts.Light == nil {
		return nil, fmt.Errorf("wake-up light manager needs a lamp")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("wake-up light manager needs a config")
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}
	if opts.Timezone == nil {
		opts.Timezone = time.Local
	}
	logger = logger.Named(pluginName)

	settings, err := wakeup.SettingsFromConfig(opts.Config.Settings)
	if err != nil {
		return nil, err
	}
	profiles, err := wakeup.ProfilesFromConfig(opts.Config)
	if err != nil {
		return nil, err
	}

	controller, err := wakeup.NewController(wakeup.Options{
		Light:    opts.Light,
		Store:    opts.Store,
		Clock:    opts.Clock,
		Logger:   logger,
		Settings: settings,
		Profiles: profiles,
		Pacing:   wakeup.Pacing(opts.Config.Pacing),
		Location: opts.Timezone,
	})
	if err != nil {
		return nil, fmt.Errorf("create wake-up controller: %w", err)
	}

	shadowTracker := shadowstate.NewWakeUpTracker(opts.Clock)

	m := &Manager{
		stateManager:  stateManager,
		light:         opts.Light,
		controller:    controller,
		configDir:     opts.ConfigDir,
		clock:         opts.Clock,
		logger:        logger,
		readOnly:      opts.ReadOnly,
		shadowTracker: shadowTracker,
		subHelper:     shadowstate.NewSubscriptionHelper(stateManager, opts.Registry, shadowTracker, pluginName, logger),
		lastPhase:     wakeup.PhaseOff,
	}

	m.schedule, err = schedule.New(profiles, opts.Config.Location, opts.Timezone, opts.Clock, m.runSchedule, logger)
	if err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	return m, nil
}

// Start reads the helper settings, resumes a persisted sequence and begins
// watching the helpers and the lamp
func (m *Manager) Start() error {
	m.logger.Info("Starting Wake-up Light Manager",
		zap.String("lamp", m.light.Name()),
		zap.Bool("read_only", m.readOnly))

	m.syncSettingsFromState()

	m.mu.Lock()
	m.unsubscribe = m.controller.Subscribe(m.handleStatus)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()
	if err := m.controller.Restore(ctx); err != nil {
		m.logger.Warn("Failed to restore wake-up sequence", zap.Error(err))
	}

	if err := m.subHelper.Watch(state.KeyWakeUpLight, m.handleToggleChange); err != nil {
		return err
	}
	for _, key := range settingsKeys {
		if err := m.subHelper.Watch(key, m.handleSettingsChange); err != nil {
			return err
		}
	}
	m.subHelper.CaptureInputs()

	stopWatch, err := m.light.Watch(m.handleLightChange)
	if err != nil {
		return fmt.Errorf("failed to watch lamp: %w", err)
	}
	m.mu.Lock()
	m.stopWatch = stopWatch
	m.mu.Unlock()

	m.schedule.Start()

	m.logger.Info("Wake-up Light Manager started successfully")
	return nil
}

// Stop stops the schedule and all subscriptions. A running sequence is kept
// in the store so that the next Start resumes it.
func (m *Manager) Stop() {
	m.logger.Info("Stopping Wake-up Light Manager")

	m.schedule.Stop()

	m.mu.Lock()
	stopWatch, unsubscribe := m.stopWatch, m.unsubscribe
	m.stopWatch, m.unsubscribe = nil, nil
	m.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}
	m.subHelper.Close()
	m.controller.Close()
	if unsubscribe != nil {
		unsubscribe()
	}

	m.logger.Info("Wake-up Light Manager stopped")
}

// Reset stops the sequence, reloads the profiles from the config directory
// and re-reads the helper settings
func (m *Manager) Reset() error {
	m.logger.Info("Resetting wake-up light")

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	var errs error
	if err := m.controller.Toggle(ctx, false, wakeup.ModeManual); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("stop sequence: %w", err))
	}
	if err := m.reloadConfig(); err != nil {
		errs = multierr.Append(errs, err)
	}
	m.syncSettingsFromState()

	m.shadowTracker.RecordAction("reset", "Reset requested", nil)
	return errs
}

// Toggle starts or stops the sequence on behalf of the API
func (m *Manager) Toggle(ctx context.Context, on bool, mode wakeup.Mode) error {
	m.shadowTracker.RecordAction("toggle", "API request", map[string]interface{}{
		"on":   on,
		"mode": string(mode),
	})
	return m.controller.Toggle(ctx, on, mode)
}

// PowerDevice switches the lamp without touching the sequence
func (m *Manager) PowerDevice(ctx context.Context, on bool) error {
	m.shadowTracker.RecordAction("power_device", "API request", map[string]interface{}{"on": on})
	return m.controller.PowerDevice(ctx, on)
}

// Status returns the controller status
func (m *Manager) Status() wakeup.Status {
	return m.controller.Status()
}

// ScheduleEntries returns the next run of each enabled profile
func (m *Manager) ScheduleEntries() []schedule.Entry {
	return m.schedule.Entries()
}

// Controller returns the wake-up controller
func (m *Manager) Controller() *wakeup.Controller {
	return m.controller
}

// GetShadowState returns the current shadow state
func (m *Manager) GetShadowState() *shadowstate.WakeUpShadowState {
	return m.shadowTracker.GetState()
}

// handleToggleChange starts or stops the sequence when the toggle helper
// changes. A failed start is reverted by the status observer.
func (m *Manager) handleToggleChange(key string, oldValue, newValue interface{}) {
	on, ok := newValue.(bool)
	if !ok {
		m.logger.Error("Invalid type for wake-up toggle", zap.Any("value", newValue))
		return
	}
	if on == m.controller.Status().Active() {
		return
	}

	m.logger.Info("Wake-up light toggled", zap.Bool("on", on))
	m.shadowTracker.RecordAction("toggle", "Toggle helper changed", map[string]interface{}{"on": on})

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()
	if err := m.controller.Toggle(ctx, on, wakeup.ModeManual); err != nil {
		m.logger.Warn("Failed to toggle wake-up light", zap.Bool("on", on), zap.Error(err))
	}
}

// handleSettingsChange applies the helper settings. Rejected values are
// overwritten with the settings in effect.
func (m *Manager) handleSettingsChange(key string, oldValue, newValue interface{}) {
	settings, err := m.settingsFromState()
	if err == nil && settings == m.controller.Settings() {
		return
	}
	if err == nil {
		err = m.controller.UpdateSettings(settings)
	}
	if err != nil {
		m.logger.Warn("Settings change rejected",
			zap.String("key", key),
			zap.Any("value", newValue),
			zap.Error(err))
		m.shadowTracker.RecordAction("settings_rejected", err.Error(), map[string]interface{}{key: newValue})
		m.writeSettings(m.controller.Settings())
		return
	}
	m.shadowTracker.RecordAction("settings_updated", fmt.Sprintf("%s changed", key), map[string]interface{}{key: newValue})
}

// handleLightChange forwards lamp changes made outside the sequence
func (m *Manager) handleLightChange(lamp device.State) {
	m.shadowTracker.UpdateCurrentInputs(shadowstate.MergeInputs(
		shadowstate.CaptureInputs(m.stateManager, []string{state.KeyWakeUpLight}),
		map[string]interface{}{"lampOn": lamp.On, "lampBrightness": lamp.Brightness},
	))

	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()
	m.controller.HandleLightChange(ctx, lamp)
}

// handleStatus mirrors the controller status into the helpers and the
// shadow state
func (m *Manager) handleStatus(status wakeup.Status) {
	m.shadowTracker.UpdateStatus(shadowStatus(status))

	m.mu.Lock()
	phaseChanged := status.Phase != m.lastPhase
	m.lastPhase = status.Phase
	m.mu.Unlock()
	if phaseChanged {
		m.shadowTracker.RecordAction("phase_"+string(status.Phase), status.Reason, map[string]interface{}{
			"mode":       string(status.Mode),
			"target":     status.TargetBrightness,
			"brightness": status.CyclingBrightness,
		})
	}

	m.setBool(state.KeyWakeUpLight, status.Active())
	m.setString(state.KeyWakeUpPhase, string(status.Phase))
	m.setString(state.KeyWakeUpProcessFinished, status.ProcessFinished)
}

// runSchedule is the schedule trigger. It starts the sequence with the
// profile of the day unless that profile was disabled meanwhile.
func (m *Manager) runSchedule(ctx context.Context, name schedule.Name) error {
	action := m.schedule.DetermineAction(m.clock.Now())
	if action.Name != name || !action.Enabled {
		m.logger.Info("Skipping scheduled wake-up",
			zap.String("profile", string(name)),
			zap.String("today", string(action.Name)),
			zap.Bool("enabled", action.Enabled))
		return nil
	}

	m.shadowTracker.RecordAction("scheduled_start", fmt.Sprintf("%s profile", name), map[string]interface{}{
		"start":      action.Profile.Start.String(),
		"duration":   action.Profile.Duration,
		"brightness": action.Profile.Brightness,
	})
	return m.controller.Toggle(ctx, true, wakeup.ModeSchedule)
}

// settingsFromState reads the manual settings from the helpers. An empty
// color leaves the lamp color untouched.
func (m *Manager) settingsFromState() (wakeup.Settings, error) {
	brightness, err := m.stateManager.GetNumber(state.KeyWakeUpBrightness)
	if err != nil {
		return wakeup.Settings{}, err
	}
	duration, err := m.stateManager.GetNumber(state.KeyWakeUpDuration)
	if err != nil {
		return wakeup.Settings{}, err
	}
	autoOff, err := m.stateManager.GetNumber(state.KeyWakeUpAutoOff)
	if err != nil {
		return wakeup.Settings{}, err
	}
	color, err := m.stateManager.GetString(state.KeyWakeUpColor)
	if err != nil {
		return wakeup.Settings{}, err
	}

	settings := wakeup.Settings{
		Brightness: int(math.Round(brightness)),
		Color:      m.controller.Settings().Color,
		Duration:   int(math.Round(duration)),
		AutoOff:    int(math.Round(autoOff)),
	}
	if color != "" {
		rgb, err := device.ParseHexColor(color)
		if err != nil {
			return wakeup.Settings{}, fmt.Errorf("%w: %v", wakeup.ErrInvalidSettings, err)
		}
		settings.Color = rgb
		settings.ColorEnabled = true
	}
	return settings, nil
}

// syncSettingsFromState applies the helper settings, or writes the
// settings in effect back when the helpers hold invalid values
func (m *Manager) syncSettingsFromState() {
	settings, err := m.settingsFromState()
	if err == nil {
		err = m.controller.UpdateSettings(settings)
	}
	if err != nil {
		m.logger.Warn("Helper settings not applied, writing back current settings", zap.Error(err))
		m.writeSettings(m.controller.Settings())
	}
}

func (m *Manager) writeSettings(settings wakeup.Settings) {
	color := ""
	if settings.ColorEnabled {
		color = device.HexColor(settings.Color)
	}
	m.setNumber(state.KeyWakeUpBrightness, float64(settings.Brightness))
	m.setNumber(state.KeyWakeUpDuration, float64(settings.Duration))
	m.setNumber(state.KeyWakeUpAutoOff, float64(settings.AutoOff))
	m.setString(state.KeyWakeUpColor, color)
}

// reloadConfig re-reads the profiles from the config directory
func (m *Manager) reloadConfig() error {
	if m.configDir == "" {
		return nil
	}

	cfg, err := config.NewLoader(m.configDir, m.logger).Load()
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	profiles, err := wakeup.ProfilesFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("reload profiles: %w", err)
	}
	if err := m.schedule.Update(profiles); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	m.controller.SetProfiles(profiles)
	m.logger.Info("Profiles reloaded",
		zap.Bool("weekday_enabled", profiles.Weekday.Enabled),
		zap.Bool("weekend_enabled", profiles.Weekend.Enabled))
	return nil
}

func (m *Manager) setBool(key string, value bool) {
	if current, err := m.stateManager.GetBool(key); err == nil && current == value {
		return
	}
	if err := m.stateManager.SetBool(key, value); err != nil {
		m.logger.Error("Failed to update helper", zap.String("key", key), zap.Bool("value", value), zap.Error(err))
	}
}

func (m *Manager) setString(key string, value string) {
	if current, err := m.stateManager.GetString(key); err == nil && current == value {
		return
	}
	if err := m.stateManager.SetString(key, value); err != nil {
		m.logger.Error("Failed to update helper", zap.String("key", key), zap.String("value", value), zap.Error(err))
	}
}

func (m *Manager) setNumber(key string, value float64) {
	if current, err := m.stateManager.GetNumber(key); err == nil && current == value {
		return
	}
	if err := m.stateManager.SetNumber(key, value); err != nil {
		m.logger.Error("Failed to update helper", zap.String("key", key), zap.Float64("value", value), zap.Error(err))
	}
}

func shadowStatus(s wakeup.Status) shadowstate.WakeUpStatus {
	return shadowstate.WakeUpStatus{
		Phase:             string(s.Phase),
		Mode:              string(s.Mode),
		TargetBrightness:  s.TargetBrightness,
		CyclingBrightness: s.CyclingBrightness,
		EndTime:           s.EndTime,
		NextCycle:         s.NextCycle,
		PowerOffAt:        s.PowerOffAt,
		ProcessFinished:   s.ProcessFinished,
	}
}
