package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			st, closeStore, err := openStore(ctx, a.cfg.Database)
			if err != nil {
				return err
			}
			defer closeStore()

			applied, err := st.Migrate(ctx)
			if err != nil {
				return err
			}
			a.log.Infow("migrations applied", "driver", a.cfg.Database.Driver, "count", applied)
			return nil
		},
	}
}
