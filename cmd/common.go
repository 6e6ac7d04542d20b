// Package cmd holds the iidcnode sub-commands. Each one opens the cameras
// itself, runs one operation and exits.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/smazurov/iidcnode/internal/cameras"
	"github.com/smazurov/iidcnode/internal/config"
	"github.com/smazurov/iidcnode/internal/logging"
	"github.com/spf13/cobra"
)

// cameraFlags are shared by every sub-command.
type cameraFlags struct {
	configFile  string
	simCameras  int
	presetsFile string
	logJSON     bool
	verbose     bool
}

func (f *cameraFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "Configuration file for logging levels")
	cmd.Flags().IntVar(&f.simCameras, "sim-cameras", 1, "Number of simulated cameras on the bus")
	cmd.Flags().StringVar(&f.presetsFile, "presets", "", "Presets file to apply on open")
	cmd.Flags().BoolVar(&f.logJSON, "log-json", false, "Log as JSON")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Log at debug level")
}

// open initializes logging and starts a camera service. The returned
// function closes it.
func (f *cameraFlags) open(ctx context.Context) (*cameras.Service, *slog.Logger, func(), error) {
	lc := config.LoadLogging(f.configFile)
	if f.configFile == "" {
		lc.Level = "warn"
	}
	if f.verbose {
		lc.Level = "debug"
	}
	if f.logJSON {
		lc.Format = "json"
	}
	logging.Initialize(lc)
	logger := logging.GetLogger("cli")

	opts := cameras.Options{SimCameras: f.simCameras}
	if f.presetsFile != "" {
		store := config.NewPresetStore(f.presetsFile)
		if err := store.Load(); err != nil {
			return nil, nil, nil, fmt.Errorf("load presets: %w", err)
		}
		opts.Presets = store
	}

	svc := cameras.New(opts)
	if err := svc.Start(ctx); err != nil {
		_ = svc.Close()
		return nil, nil, nil, err
	}
	closeFn := func() {
		if err := svc.Close(); err != nil {
			logger.Warn("Failed to close cameras", "error", err)
		}
	}
	return svc, logger, closeFn, nil
}

// pickCamera returns the id in args, or the first camera.
func pickCamera(svc *cameras.Service, args []string) (string, error) {
	if len(args) > 0 {
		if _, err := svc.Get(args[0]); err != nil {
			return "", err
		}
		return args[0], nil
	}
	list := svc.List()
	if len(list) == 0 {
		return "", fmt.Errorf("no cameras found")
	}
	return list[0].ID, nil
}
