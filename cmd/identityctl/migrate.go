package main

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goIdentity/internal/appconfig"
	"github.com/MrEthical07/goIdentity/store/postgres"
	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.cfg.Store.Driver != appconfig.DriverPostgres {
				return errors.New("migrate requires store.driver=postgres")
			}

			db, err := postgres.Open(cmd.Context(), opts.cfg.Store.PostgresDSN)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := postgres.Migrate(cmd.Context(), db); err != nil {
				return fmt.Errorf("migrate up failed: %w", err)
			}
			opts.logger.Info("migrations applied")
			return nil
		},
	}
}
