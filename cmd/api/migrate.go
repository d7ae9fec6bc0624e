package main

import (
	"portal/internal/database"

	"github.com/spf13/cobra"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap(root)
			if err != nil {
				return err
			}

			db, err := database.NewConnection(cfg.Database.DSN(), log)
			if err != nil {
				return err
			}
			return database.Migrate(db, log)
		},
	}
}
