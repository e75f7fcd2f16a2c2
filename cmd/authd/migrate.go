package main

import (
	"time"

	"github.com/MrEthical07/authflow/sqlstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCommand(a *app) *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables and seed the MFA method catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if printOnly {
				_, err := cmd.OutOrStdout().Write([]byte(sqlstore.Schema(a.cfg.DatabaseDriver)))
				return err
			}

			start := time.Now()
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			a.logger.Info("schema applied",
				zap.String("driver", a.cfg.DatabaseDriver),
				zap.Duration("took", time.Since(start)),
			)
			return nil
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print the schema instead of applying it")
	return cmd
}
