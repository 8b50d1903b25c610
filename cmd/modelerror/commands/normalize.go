package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/immahesh111/modelerror-dashboard/internal/domain"
	"github.com/immahesh111/modelerror-dashboard/internal/normalizer"
	"github.com/immahesh111/modelerror-dashboard/internal/store"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	normalizeShift *string
	normalizeStore *bool
)

func init() {
	normalizeShift = normalizeCmd.Flags().String("shift", "1", "Shift to stamp on the records (1 or 2).")
	normalizeStore = normalizeCmd.Flags().Bool("store", false, "Replace the stored collections with the result.")
	rootCmd.AddCommand(normalizeCmd)
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize <report-file> [--shift 1|2] [--store]",
	Short: "Normalizes a downloaded report and prints the per-model breakdown.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		shift, err := domain.ParseShift(*normalizeShift)
		if err != nil {
			return err
		}

		a, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		n := normalizer.New(a.cfg.Normalize.Sheet, a.logger.WithField("component", "normalizer"))
		batch := domain.ReportBatch{Path: args[0], Shift: shift, FetchedAt: time.Now()}
		result, err := n.Normalize(cmd.Context(), batch)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetOutputMirror(cmd.OutOrStdout())
		t.SetTitle(fmt.Sprintf("%s (engine %s, header row %d)", args[0], result.Engine, result.HeaderRow))
		t.AppendHeader(table.Row{"Family", "Collection", "Records"})
		for _, family := range result.Families {
			t.AppendRow(table.Row{family, domain.CollectionName(family), len(result.Partitions[family])})
		}
		t.AppendFooter(table.Row{"Total", "", result.Records()})
		t.SetStyle(table.StyleRounded)
		t.Render()

		fmt.Fprintf(cmd.OutOrStdout(), "rows=%d ntf_discarded=%d duplicates=%d missing_family=%d bad_numbers=%d\n",
			result.TotalRows, result.NTFDiscarded, result.Duplicates, result.MissingFamily, result.BadNumbers)

		if !*normalizeStore {
			return nil
		}
		st, err := store.Open(cmd.Context(), a.cfg, a.logger)
		if err != nil {
			return err
		}
		defer closeStore(st, a.logger)
		for _, family := range result.Families {
			if err := st.Replace(cmd.Context(), family, result.Partitions[family]); err != nil {
				return err
			}
		}
		return nil
	},
}
