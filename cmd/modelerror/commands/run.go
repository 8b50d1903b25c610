package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/immahesh111/modelerror-dashboard/internal/domain"
	"github.com/immahesh111/modelerror-dashboard/internal/fetcher"
	"github.com/immahesh111/modelerror-dashboard/internal/logging"
	"github.com/immahesh111/modelerror-dashboard/internal/normalizer"
	"github.com/immahesh111/modelerror-dashboard/internal/scheduler"
	"github.com/immahesh111/modelerror-dashboard/internal/store"
	"github.com/immahesh111/modelerror-dashboard/internal/telemetry"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs the scrape cycle every scheduler.interval until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sched, st, err := a.newScheduler(ctx)
		if err != nil {
			return err
		}
		defer closeStore(st, a.logger)

		done := make(chan struct{})
		go func() {
			defer close(done)
			sched.RunForever(ctx)
		}()

		<-ctx.Done()
		a.logger.Info("shutdown signal received, stopping scheduler")
		<-done
		return nil
	},
}

// newScheduler opens storage and builds the full fetch pipeline.
func (a *app) newScheduler(ctx context.Context) (*scheduler.Scheduler, store.Store, error) {
	if err := a.cfg.ValidateFetch(); err != nil {
		return nil, nil, err
	}
	st, err := store.Open(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, nil, err
	}
	instruments, err := telemetry.NewInstruments()
	if err != nil {
		closeStore(st, a.logger)
		return nil, nil, err
	}

	browser := fetcher.NewChromeBrowser(a.cfg.Portal, a.cfg.Fetch.Headless, a.logger.WithField("component", "browser"))
	f := fetcher.New(a.cfg, browser, a.logger.WithField("component", "fetcher"))
	n := normalizer.New(a.cfg.Normalize.Sheet, a.logger.WithField("component", "normalizer"))
	sched := scheduler.New(a.cfg.Scheduler, f, n, st, instruments, a.logger.WithField("component", "scheduler"))
	return sched, st, nil
}

func closeStore(st store.Store, logger logrus.FieldLogger) {
	if err := st.Close(); err != nil {
		logging.LogError(logger, "failed to close storage", err)
	}
}

func shiftFlag(raw string) (domain.Shift, error) {
	if raw == "" {
		return 0, nil
	}
	return domain.ParseShift(raw)
}
