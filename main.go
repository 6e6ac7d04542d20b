package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/iidcnode/cmd"
	"github.com/smazurov/iidcnode/internal/api"
	"github.com/smazurov/iidcnode/internal/cameras"
	"github.com/smazurov/iidcnode/internal/config"
	"github.com/smazurov/iidcnode/internal/events"
	"github.com/smazurov/iidcnode/internal/logging"
	"github.com/smazurov/iidcnode/internal/metrics/collectors"
	"github.com/smazurov/iidcnode/internal/metrics/exporters"
	"github.com/smazurov/iidcnode/internal/systemd"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port       string `help:"Port to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`
	CORSOrigin string `help:"Allowed CORS origin" default:"*" toml:"server.cors_origin" env:"SERVER_CORS_ORIGIN"`

	// Camera settings
	SimCameras  int    `help:"Number of simulated cameras" default:"1" toml:"cameras.simulated" env:"CAMERAS_SIMULATED"`
	PresetsFile string `help:"Camera presets file" default:"presets.toml" toml:"cameras.presets_file" env:"CAMERAS_PRESETS_FILE"`
	WatchPresets bool  `help:"Reload presets when the file changes" default:"true" toml:"cameras.watch_presets" env:"CAMERAS_WATCH_PRESETS"`
	FrameEvents  bool  `help:"Publish an event for every captured frame" default:"false" toml:"cameras.frame_events" env:"CAMERAS_FRAME_EVENTS"`

	// Capture settings
	SnapshotTimeout string `help:"How long a snapshot waits for a frame" default:"5s" toml:"capture.snapshot_timeout" env:"CAPTURE_SNAPSHOT_TIMEOUT"`

	// Metrics settings
	MetricsPrometheus bool `help:"Serve Prometheus metrics at /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`
	MetricsSSE        bool `help:"Stream capture statistics at /api/metrics" default:"true" toml:"metrics.sse_enabled" env:"METRICS_SSE_ENABLED"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingIIDC    string `help:"Driver logging level" default:"info" toml:"logging.iidc" env:"LOGGING_IIDC"`
	LoggingCameras string `help:"Camera service logging level" default:"info" toml:"logging.cameras" env:"LOGGING_CAMERAS"`
	LoggingMetrics string `help:"Metrics logging level" default:"info" toml:"logging.metrics" env:"LOGGING_METRICS"`
	LoggingConfig  string `help:"Config watcher logging level" default:"info" toml:"logging.config" env:"LOGGING_CONFIG"`
	LoggingAPI     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
	LoggingHTTP    string `help:"HTTP request logging level" default:"info" toml:"logging.http" env:"LOGGING_HTTP"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"iidc":    opts.LoggingIIDC,
				"cameras": opts.LoggingCameras,
				"metrics": opts.LoggingMetrics,
				"config":  opts.LoggingConfig,
				"api":     opts.LoggingAPI,
				"http":    opts.LoggingHTTP,
			},
		})
		logger := logging.GetLogger("main")
		notifier := systemd.NewNotifier(logging.GetLogger("systemd"))

		snapshotTimeout, err := time.ParseDuration(opts.SnapshotTimeout)
		if err != nil {
			logger.Warn("Invalid snapshot timeout, using 5s", "value", opts.SnapshotTimeout)
			snapshotTimeout = 5 * time.Second
		}

		eventBus := events.New()

		presets := config.NewPresetStore(opts.PresetsFile)
		if loadErr := presets.Load(); loadErr != nil {
			logger.Warn("Failed to load presets", "path", opts.PresetsFile, "error", loadErr)
		}

		cameraService := cameras.New(cameras.Options{
			SimCameras:  opts.SimCameras,
			Presets:     presets,
			EventBus:    eventBus,
			FrameEvents: opts.FrameEvents,
		})

		var presetWatcher *config.Watcher[config.Presets]
		if opts.WatchPresets {
			configLogger := logging.GetLogger("config")
			presetWatcher = config.NewWatcher(opts.PresetsFile, config.LoadPresets, configLogger,
				config.WithErrorHandler[config.Presets](func(err error) {
					configLogger.Warn("Presets file rejected, keeping the previous set", "error", err)
				}))
			presetWatcher.OnReload(cameraService.ReloadPresets)
		}

		collector := collectors.NewCaptureCollector(cameraService)
		var sseExporter *exporters.SSEExporter
		if opts.MetricsSSE {
			sseExporter = exporters.NewSSEExporter(eventBus)
		}

		apiOpts := &api.Options{
			AuthUsername:    opts.AuthUsername,
			AuthPassword:    opts.AuthPassword,
			CORSOrigin:      opts.CORSOrigin,
			Cameras:         cameraService,
			Presets:         presets,
			EventBus:        eventBus,
			SnapshotTimeout: snapshotTimeout,
		}
		if opts.MetricsPrometheus {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			if startErr := cameraService.Start(ctx); startErr != nil {
				logger.Error("Failed to open cameras", "error", startErr)
				os.Exit(1)
			}
			if presetWatcher != nil {
				if startErr := presetWatcher.Start(ctx); startErr != nil {
					logger.Warn("Failed to watch presets", "path", opts.PresetsFile, "error", startErr)
				}
			}
			if startErr := collector.Start(ctx); startErr != nil {
				logger.Warn("Failed to start capture collector", "error", startErr)
			}
			if sseExporter != nil {
				sseExporter.Start(ctx)
			}

			notifier.Status(fmt.Sprintf("%d cameras open", len(cameraService.List())))
			notifier.Ready()
			go notifier.Watchdog(ctx, func() bool { return len(cameraService.List()) > 0 })

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			notifier.Stopping()
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			if presetWatcher != nil {
				if stopErr := presetWatcher.Stop(); stopErr != nil {
					logger.Warn("Error stopping presets watcher", "error", stopErr)
				}
			}
			if sseExporter != nil {
				sseExporter.Stop()
			}
			if stopErr := collector.Stop(); stopErr != nil {
				logger.Warn("Error stopping capture collector", "error", stopErr)
			}
			// stops captures, releasing channels and bandwidth
			if stopErr := cameraService.Close(); stopErr != nil {
				logger.Error("Error closing cameras", "error", stopErr)
			}
			cancel()
		})
	})

	cli.Root().Use = "iidcnode"
	cli.Root().Short = "IIDC FireWire camera control and capture node"
	cli.Root().AddCommand(cmd.CreateFeaturesCmd())
	cli.Root().AddCommand(cmd.CreateGrabCmd())
	cli.Root().AddCommand(cmd.CreateBandwidthCmd())

	cli.Run()
}
