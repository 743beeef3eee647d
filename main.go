package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avolkhov/relaynode/cmd"
	"github.com/avolkhov/relaynode/internal/api"
	"github.com/avolkhov/relaynode/internal/config"
	"github.com/avolkhov/relaynode/internal/events"
	"github.com/avolkhov/relaynode/internal/logging"
	"github.com/avolkhov/relaynode/internal/relay"
	"github.com/avolkhov/relaynode/internal/transcoder"
	"github.com/avolkhov/relaynode/internal/uploads"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port            string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	WSPath          string `help:"WebSocket relay path" default:"/ws" toml:"server.ws_path" env:"SERVER_WS_PATH"`
	ShutdownTimeout string `help:"Session drain timeout on shutdown" default:"10s" toml:"server.shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`

	// Transcoder settings
	TranscoderPath     string  `help:"Transcoder binary" default:"ffmpeg" toml:"transcoder.path" env:"TRANSCODER_PATH"`
	TranscoderContrast float64 `help:"Contrast multiplier for the filter chain" default:"1.2" toml:"transcoder.contrast" env:"TRANSCODER_CONTRAST"`
	GraceTimeout       string  `help:"SIGINT-to-SIGKILL grace period" default:"3s" toml:"transcoder.grace_timeout" env:"TRANSCODER_GRACE_TIMEOUT"`
	KillTimeout        string  `help:"Wait after SIGKILL before giving up" default:"5s" toml:"transcoder.kill_timeout" env:"TRANSCODER_KILL_TIMEOUT"`
	RespawnPolicy      string  `help:"Respawn policy after transcoder exit (never, once)" default:"never" enum:"never,once" toml:"transcoder.respawn_policy" env:"TRANSCODER_RESPAWN_POLICY"`

	// Relay settings
	PingPeriod     string `help:"Liveness probe interval" default:"10s" toml:"relay.ping_period" env:"RELAY_PING_PERIOD"`
	PongTimeout    string `help:"Unanswered probe window before eviction" default:"15s" toml:"relay.pong_timeout" env:"RELAY_PONG_TIMEOUT"`
	InputQueueSize int    `help:"Bounded per-session input queue size" default:"64" toml:"relay.input_queue_size" env:"RELAY_INPUT_QUEUE_SIZE"`

	// Uploads settings
	UploadsDir     string `help:"Directory for stored image uploads" default:"uploads" toml:"uploads.dir" env:"UPLOADS_DIR"`
	MaxUploadBytes int    `help:"Maximum upload size in bytes" default:"26214400" toml:"uploads.max_bytes" env:"UPLOADS_MAX_BYTES"`

	// Auth settings (empty disables basic auth)
	AuthUsername string `help:"Basic auth username" default:"" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingRelay      string `help:"Relay logging level" default:"info" toml:"logging.relay" env:"LOGGING_RELAY"`
	LoggingTranscoder string `help:"Transcoder logging level" default:"info" toml:"logging.transcoder" env:"LOGGING_TRANSCODER"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP       string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
	LoggingUploads    string `help:"Uploads logging level" default:"info" toml:"logging.uploads" env:"LOGGING_UPLOADS"`
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// Load configuration with CLI > env > file precedence
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"relay":      opts.LoggingRelay,
				"transcoder": opts.LoggingTranscoder,
				"api":        opts.LoggingAPI,
				"http":       opts.LoggingHTTP,
				"uploads":    opts.LoggingUploads,
			},
		})
		logger := logging.GetLogger("main")

		eventBus := events.New()

		uploadStore, err := uploads.NewStore(opts.UploadsDir, int64(opts.MaxUploadBytes), eventBus, logging.GetLogger("uploads"))
		if err != nil {
			logger.Error("Failed to bootstrap uploads directory", "error", err)
			os.Exit(1)
		}

		relayServer := relay.NewServer(relay.ServerConfig{
			Session: relay.SessionConfig{
				TranscoderBinary: opts.TranscoderPath,
				TranscoderArgs:   transcoder.BuildArgs(transcoder.FilterParams{Contrast: opts.TranscoderContrast}),
				GraceTimeout:     parseDuration(opts.GraceTimeout, 3*time.Second),
				KillTimeout:      parseDuration(opts.KillTimeout, 5*time.Second),
				InputQueueSize:   opts.InputQueueSize,
				RespawnPolicy:    relay.RespawnPolicy(opts.RespawnPolicy),
			},
			PingPeriod:  parseDuration(opts.PingPeriod, 10*time.Second),
			PongTimeout: parseDuration(opts.PongTimeout, 15*time.Second),
		}, eventBus)

		server := api.NewServer(&api.Options{
			AuthUsername:      opts.AuthUsername,
			AuthPassword:      opts.AuthPassword,
			Sessions:          relayServer,
			Uploads:           uploadStore,
			PrometheusHandler: promhttp.Handler(),
			WSHandler:         relayServer.HandleWS,
			WSPath:            opts.WSPath,
		})

		// Session lifecycle audit trail via the event bus
		unsubClosed := eventBus.Subscribe(func(e events.SessionClosedEvent) {
			logger.Debug("Session closed", "session_id", e.SessionID, "reason", e.Reason)
		})

		// Live log-level reload on config file changes
		watcher := config.NewConfigWatcher(opts.Config, func(path string) (logging.Config, error) {
			return config.LoadLoggingConfig(path), nil
		}, logger)
		watcher.OnReload(func(cfg logging.Config) {
			logging.SetGlobalLevel(cfg.Level)
			for module, level := range cfg.Modules {
				logging.SetModuleLevel(module, level)
			}
		})

		hooks.OnStart(func() {
			relayServer.Start()

			if watchErr := watcher.Start(); watchErr != nil {
				logger.Debug("Config watcher not started", "error", watchErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port, "ws_path", opts.WSPath)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			_ = watcher.Stop()
			unsubClosed()

			// Stop accepting and drain relay sessions before killing the listener
			ctx, cancel := context.WithTimeout(context.Background(),
				parseDuration(opts.ShutdownTimeout, 10*time.Second))
			defer cancel()
			if shutdownErr := relayServer.Shutdown(ctx); shutdownErr != nil {
				logger.Warn("Relay shutdown incomplete", "error", shutdownErr)
			}

			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
		})
	})

	cli.Root().AddCommand(cmd.CreateValidateTranscoderCmd())

	cli.Run()
}
