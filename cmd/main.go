package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"wakeuplight/internal/api"
	"wakeuplight/internal/config"
	"wakeuplight/internal/ha"
	"wakeuplight/internal/plugins/reset"
	"wakeuplight/internal/plugins/wakeuplight"
	"wakeuplight/internal/shadowstate"
	"wakeuplight/internal/state"
	pkgha "wakeuplight/pkg/ha"
	"wakeuplight/pkg/plugin"
	pkgstate "wakeuplight/pkg/state"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	defaultConfigDir = "./configs"
	defaultAPIPort   = 8081
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	// Initialize logger
	logger, err := newLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if envErr != nil {
		logger.Warn("No .env file found, using environment variables")
	}

	haURL := os.Getenv("HA_URL")
	haToken := os.Getenv("HA_TOKEN")
	readOnly := os.Getenv("READ_ONLY") == "true"
	configDir := getEnv("CONFIG_DIR", defaultConfigDir)
	stateFile := os.Getenv("STATE_FILE")

	if haURL == "" || haToken == "" {
		logger.Fatal("HA_URL and HA_TOKEN environment variables must be set")
	}

	apiPort := defaultAPIPort
	if port := os.Getenv("API_PORT"); port != "" {
		apiPort, err = strconv.Atoi(port)
		if err != nil {
			logger.Fatal("Invalid API_PORT", zap.String("value", port), zap.Error(err))
		}
	}

	timezone := time.Local
	if tz := os.Getenv("TZ"); tz != "" {
		timezone, err = time.LoadLocation(tz)
		if err != nil {
			logger.Fatal("Invalid TZ", zap.String("value", tz), zap.Error(err))
		}
	}

	logger.Info("Starting wake-up light",
		zap.String("url", haURL),
		zap.Bool("read_only", readOnly),
		zap.String("config_dir", configDir),
		zap.String("timezone", timezone.String()))

	// Load configuration
	cfg, err := config.NewLoader(configDir, logger).Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Create HA client
	client := ha.NewClient(haURL, haToken, logger)

	// Connect to Home Assistant
	if err := client.Connect(); err != nil {
		logger.Fatal("Failed to connect to Home Assistant", zap.Error(err))
	}
	logger.Info("Connected to Home Assistant")

	// Create State Manager
	stateManager := state.NewManager(client, logger, readOnly)

	// Sync all state from HA
	if err := stateManager.SyncFromHA(); err != nil {
		logger.Fatal("Failed to sync state from HA", zap.Error(err))
	}

	pluginCtx := plugin.NewContext(pkgha.WrapClient(client), pkgstate.WrapManager(stateManager), logger, readOnly, configDir, timezone)

	if readOnly {
		logger.Info("Running in READ-ONLY mode - no changes will be made to Home Assistant or the lamp")
	}

	pluginCtx.Config = cfg
	pluginCtx.StateFile = stateFile

	// Create and start plugins
	plugin.SetLogger(logger)
	plugins, err := plugin.CreateAll(pluginCtx)
	if err != nil {
		logger.Fatal("Failed to create plugins", zap.Error(err))
	}

	if err := plugin.StartAll(plugins); err != nil {
		logger.Fatal("Failed to start plugins", zap.Error(err))
	}

	shadowTracker := shadowstate.NewTracker()
	for _, p := range plugins {
		if provider, ok := p.(plugin.ShadowStateProvider); ok {
			shadowTracker.RegisterPluginProvider(p.Name(), provider.GetShadowState)
		}
	}

	// Reset coordinator
	coordinator := reset.NewCoordinator(stateManager, logger, plugins)
	if err := coordinator.Start(); err != nil {
		logger.Fatal("Failed to start reset coordinator", zap.Error(err))
	}

	// HTTP API
	var server *api.Server
	for _, p := range plugins {
		if manager, ok := wakeuplight.ManagerFrom(p); ok {
			server = api.NewServer(stateManager, manager, shadowTracker, logger, apiPort)
		}
	}
	if server == nil {
		logger.Fatal("Wake-up light plugin is not registered")
	}
	if err := server.Start(); err != nil {
		logger.Fatal("Failed to start API server", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Application running. Press Ctrl+C to exit.",
		zap.Int("api_port", apiPort),
		zap.Int("plugins", len(plugins)))

	// Wait for shutdown signal
	<-sigChan

	logger.Info("Shutting down gracefully...")

	shutdownErr := server.Stop()
	coordinator.Stop()
	plugin.StopAll(plugins)
	shutdownErr = multierr.Append(shutdownErr, client.Disconnect())
	if err := shutdownErr; err != nil {
		logger.Error("Shutdown finished with errors", zap.Error(err))
	}
}

// newLogger builds a development logger for LOG_LEVEL=debug and a
// production logger otherwise
func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
