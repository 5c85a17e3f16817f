package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/creasty/defaults"
	"go.uber.org/zap"
	"gopkg.in/go-playground/validator.v9"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the config directory
const FileName = "wakeup.yaml"

const (
	DefaultWeekdayStart = "06:00"
	DefaultWeekendStart = "08:30"
)

// Device types understood by device.Connect
const (
	DeviceHomeAssistant = "homeassistant"
	DeviceHue           = "hue"
	DeviceMQTT          = "mqtt"
)

// WakeUpConfig represents the wakeup.yaml structure
type WakeUpConfig struct {
	Device   DeviceConfig   `yaml:"device"`
	Settings SettingsConfig `yaml:"settings"`
	Pacing   string         `yaml:"pacing" default:"adaptive" validate:"oneof=adaptive fixed"`
	Weekday  ProfileConfig  `yaml:"weekday"`
	Weekend  ProfileConfig  `yaml:"weekend"`
	Location LocationConfig `yaml:"location"`
}

// DeviceConfig selects and configures the lamp driver
type DeviceConfig struct {
	Type         string        `yaml:"type" default:"homeassistant" validate:"oneof=homeassistant hue mqtt"`
	EntityID     string        `yaml:"entity_id" default:"light.bedroom"`
	PollInterval time.Duration `yaml:"poll_interval" default:"30s" validate:"min=1000000000"`
	Hue          HueConfig     `yaml:"hue"`
	MQTT         MQTTConfig    `yaml:"mqtt"`
}

// HueConfig addresses a single light on a Hue bridge
type HueConfig struct {
	Host    string `yaml:"host"`
	User    string `yaml:"user"`
	LightID int    `yaml:"light_id" default:"1" validate:"min=1"`
}

// MQTTConfig addresses a zigbee2mqtt style lamp
type MQTTConfig struct {
	Broker   string `yaml:"broker" default:"tcp://localhost:1883"`
	Topic    string `yaml:"topic" default:"zigbee2mqtt/bedroom"`
	ClientID string `yaml:"client_id" default:"wakeuplight"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// SettingsConfig holds the initial manual settings
type SettingsConfig struct {
	Brightness   uint   `yaml:"brightness" default:"50" validate:"min=1,percent"`
	Color        string `yaml:"color" default:"#FF9900" validate:"omitempty,hexcolor"`
	ColorEnabled bool   `yaml:"color_enabled"`
	Duration     uint   `yaml:"duration" default:"30" validate:"max=120"`
	AutoOff      uint   `yaml:"auto_off" validate:"max=720"`
}

// ProfileConfig holds the parameters of a weekly-schedule profile
type ProfileConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Start      string `yaml:"start" validate:"required,start"`
	Duration   uint   `yaml:"duration" default:"30" validate:"max=120"`
	Brightness uint   `yaml:"brightness" default:"50" validate:"min=1,percent"`
	Color      string `yaml:"color" validate:"omitempty,hexcolor"`
}

// LocationConfig is used for sunrise relative start times
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `yaml:"longitude" validate:"min=-180,max=180"`
}

// Loader manages loading of the wake-up configuration
type Loader struct {
	configDir string
	logger    *zap.Logger
	validate  *validator.Validate

	mu     sync.RWMutex
	config *WakeUpConfig
}

// NewLoader creates a new configuration loader
func NewLoader(configDir string, logger *zap.Logger) *Loader {
	return &Loader{
		configDir: configDir,
		logger:    logger.Named("config"),
		validate:  NewValidator(logger),
	}
}

// NewValidator builds a validator with the wake-up specific rules registered
func NewValidator(logger *zap.Logger) *validator.Validate {
	v := validator.New()
	loadNewValidator(v, logger, "percent", percent)
	loadNewValidator(v, logger, "start", start)
	return v
}

func loadNewValidator(v *validator.Validate, logger *zap.Logger, name string, function validator.Func) {
	if err := v.RegisterValidation(name, function); err != nil {
		logger.Error("Failed to register validator type", zap.String("type", name), zap.Error(err))
	}
}

// percent accepts 0..100
func percent(fl validator.FieldLevel) bool {
	return fl.Field().Uint() <= 100
}

// start accepts HH:MM or a sunrise expression
func start(fl validator.FieldLevel) bool {
	_, err := ParseStart(fl.Field().String())
	return err == nil
}

// Load reads wakeup.yaml from the config directory. A missing file yields
// the defaults.
func (l *Loader) Load() (*WakeUpConfig, error) {
	path := filepath.Join(l.configDir, FileName)
	l.logger.Debug("Loading wake-up config", zap.String("path", path))

	var config WakeUpConfig
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		l.logger.Warn("Config file not found, using defaults", zap.String("path", path))
	case err != nil:
		return nil, fmt.Errorf("failed to read wake-up config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse wake-up config: %w", err)
		}
	}

	if err := l.apply(&config); err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.config = &config
	l.mu.Unlock()

	l.logger.Info("Wake-up config loaded",
		zap.String("device", config.Device.Type),
		zap.String("pacing", config.Pacing),
		zap.Bool("weekday_enabled", config.Weekday.Enabled),
		zap.Bool("weekend_enabled", config.Weekend.Enabled))
	return &config, nil
}

// apply sets defaults and validates the config
func (l *Loader) apply(config *WakeUpConfig) error {
	if err := defaults.Set(config); err != nil {
		return fmt.Errorf("failed to set config defaults: %w", err)
	}
	if config.Weekday.Start == "" {
		config.Weekday.Start = DefaultWeekdayStart
	}
	if config.Weekend.Start == "" {
		config.Weekend.Start = DefaultWeekendStart
	}

	if err := l.validate.Struct(config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, e := range verrs {
				l.logger.Warn("Validation error",
					zap.String("field", e.Namespace()),
					zap.String("rule", e.Tag()))
			}
		}
		return fmt.Errorf("invalid wake-up config: %w", err)
	}

	switch config.Device.Type {
	case DeviceHue:
		if config.Device.Hue.Host == "" || config.Device.Hue.User == "" {
			return fmt.Errorf("invalid wake-up config: hue device needs host and user")
		}
	case DeviceMQTT:
		if config.Device.MQTT.Broker == "" || config.Device.MQTT.Topic == "" {
			return fmt.Errorf("invalid wake-up config: mqtt device needs broker and topic")
		}
	}
	return nil
}

// Get returns the last loaded configuration
func (l *Loader) Get() *WakeUpConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.config
}
