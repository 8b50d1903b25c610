package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/immahesh111/modelerror-dashboard/internal/domain"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var onceShift *string

func init() {
	onceShift = onceCmd.Flags().String("shift", "", "Shift to fetch (1 or 2). Defaults to the active shift.")
	rootCmd.AddCommand(onceCmd)
}

var onceCmd = &cobra.Command{
	Use:   "once [--shift 1|2]",
	Short: "Runs a single cycle immediately, ignoring the shift gate.",
	RunE: func(cmd *cobra.Command, args []string) error {
		shift, err := shiftFlag(*onceShift)
		if err != nil {
			return err
		}
		if shift == 0 {
			shift = domain.ShiftAt(time.Now())
		}

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

		run, runErr := sched.RunOnce(ctx, shift)

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Run", "Shift", "Status", "Stage", "Families", "Records", "Duration"})
		t.AppendRow(table.Row{run.ID, run.Shift, run.Status, run.Stage, run.Families, run.Records, run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond)})
		t.SetStyle(table.StyleRounded)
		t.Render()

		return runErr
	},
}
