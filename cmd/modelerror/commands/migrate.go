package commands

import (
	"context"

	"github.com/immahesh111/modelerror-dashboard/internal/db"
	"github.com/immahesh111/modelerror-dashboard/internal/store"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Creates or upgrades the storage schema.",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if err := a.cfg.ValidateStorage(); err != nil {
			return err
		}
		if a.cfg.Storage.Driver == "postgres" {
			return db.RunMigrations(a.cfg.Database, a.logger)
		}

		// The sqlite schema is applied on open.
		st, err := store.OpenSQLite(cmd.Context(), a.cfg.Storage.SQLitePath, a.logger)
		if err != nil {
			return err
		}
		a.logger.WithField("path", a.cfg.Storage.SQLitePath).Info("sqlite schema ready")
		return st.Close()
	},
}
