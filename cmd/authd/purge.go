package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newPurgeTokensCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-tokens",
		Short: "Delete token records whose expiry has passed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.DB().Close()

			n, err := store.PurgeExpiredTokens(cmd.Context(), time.Now())
			if err != nil {
				return fmt.Errorf("purge tokens: %w", err)
			}
			a.logger.Info("tokens purged", zap.Int64("count", n))
			return nil
		},
	}
}
