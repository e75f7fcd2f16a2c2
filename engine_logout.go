package authflow

import (
	"context"

	"go.uber.org/zap"
)

// Logout revokes the permanent token of s. Other sessions of the user stay valid.
func (e *Engine) Logout(ctx context.Context, s *Session) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := requirePermanent(s); err != nil {
		return err
	}

	if err := e.revokeToken(ctx, s.User.ID, s.Raw); err != nil {
		return err
	}

	e.metricInc(MetricLogout)
	e.logger.Info("logged out", zap.String("user_id", s.User.ID), zap.String("token_id", s.Token.ID))
	return nil
}
