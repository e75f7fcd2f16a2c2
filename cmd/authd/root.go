package main

import (
	"context"
	"fmt"

	"github.com/MrEthical07/authflow/internal/logging"
	"github.com/MrEthical07/authflow/sqlstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type app struct {
	envFile string
	cfg     config
	logger  *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "authd",
		Short:         "Authentication service with email verification and MFA",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(a.envFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.logging())
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment")

	cmd.AddCommand(
		newServeCommand(a),
		newMigrateCommand(a),
		newPurgeTokensCommand(a),
	)
	return cmd
}

// openStore connects and applies the schema.
func (a *app) openStore(ctx context.Context) (*sqlstore.Store, error) {
	db, err := sqlstore.Open(ctx, a.cfg.database())
	if err != nil {
		return nil, err
	}
	store := sqlstore.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}
