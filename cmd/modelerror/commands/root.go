package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/immahesh111/modelerror-dashboard/internal/config"
	"github.com/immahesh111/modelerror-dashboard/internal/logging"
	"github.com/immahesh111/modelerror-dashboard/internal/telemetry"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configDir string
	logLevel  string
)

var rootCmd = &cobra.Command{
	Use:           "modelerror",
	Short:         "modelerror scrapes the shift test-error report and keeps one dataset per product model.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "Directory containing config.yaml.")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the process wiring shared by every command.
type app struct {
	cfg       config.Config
	logger    *logrus.Logger
	closeLog  func() error
	telemetry telemetry.Telemetry
}

func bootstrap(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, closeLog, err := logging.New(cfg.Log, cmd.OutOrStdout())
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.Setup(cmd.Context(), cfg.Telemetry, logger)
	if err != nil {
		logging.LogError(logger, "failed to set up telemetry, continuing without export", err)
	}

	return &app{cfg: cfg, logger: logger, closeLog: closeLog, telemetry: tel}, nil
}

func (a *app) Close(ctx context.Context) {
	if err := a.telemetry.Shutdown(ctx); err != nil {
		logging.LogError(a.logger, "failed to flush telemetry", err)
	}
	if err := a.closeLog(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to close log file:", err)
	}
}
