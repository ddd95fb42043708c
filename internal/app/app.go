package app

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"pronunciation-practice-service/internal/config"
	"pronunciation-practice-service/internal/observability/logging"
)

const serviceName = "pronunciation-practice-service"

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration
}

// New constructs a new Application from the provided configuration.
func New(cfg *config.Configuration) *Application {
	a := &Application{
		Cfg: cfg,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Info().Msg("Pronunciation practice service application created")
	return a
}

// setupLogger configures the global zerolog logger for the service.
// ZEROLOG_LOG_LEVEL overrides the configured level; ENV=dev switches to console output.
func (a *Application) setupLogger() {
	logCfg := logging.DefaultConfig()
	if a.Cfg != nil {
		logCfg.Level = a.Cfg.Observability.LogLevel
		logCfg.Format = a.Cfg.Observability.LogFormat
	}
	if envLevel := os.Getenv("ZEROLOG_LOG_LEVEL"); envLevel != "" {
		logCfg.Level = envLevel
	}
	if os.Getenv("ENV") == "dev" {
		logCfg.Format = "console"
	}

	logging.Init(logCfg)

	a.Logger = logging.WithComponent("application").With().
		Str("service", serviceName).
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", logCfg.Format).
		Str("environment", os.Getenv("ENV")).
		Msg("Logger setup completed")
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("sttProvider", a.Cfg.STT.Provider).
		Msg("Pronunciation practice service starting")

	return nil
}

// Uptime reports how long the service has been running.
func (a *Application) Uptime() time.Duration {
	if a.StartupTime.IsZero() {
		return 0
	}
	return time.Since(a.StartupTime)
}

// Shutdown performs a best-effort cleanup before process exit.
func (a *Application) Shutdown() {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	shutdownLogger.Info().
		Dur("uptime", a.Uptime()).
		Msg("Pronunciation practice service shutting down")
}
