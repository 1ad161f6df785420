package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/careline/careline/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup(cmd, v)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		if cfg.Database.Driver != "postgres" {
			return errors.New("migrate requires database.driver postgres")
		}
		db, err := openDB(cmd.Context(), cfg.Database, log)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := store.Migrate(cmd.Context(), db); err != nil {
			return err
		}
		log.Info("schema applied")
		return nil
	},
}
