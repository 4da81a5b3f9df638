package cli

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/app"
	"github.com/roach88/authsync/internal/config"
	"github.com/roach88/authsync/internal/tenant"
)

// session is the service graph of a one-shot command.
type session struct {
	cfg     *config.Config
	app     *app.App
	logger  *zap.Logger
	release func() error
}

func openSession(opts *RootOptions) (*session, error) {
	cfg, logger, err := loadEnv(opts, true)
	if err != nil {
		return nil, err
	}
	a, release, err := app.FromConfig(cfg, nil, logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "wire services", err)
	}
	return &session{cfg: cfg, app: a, logger: logger, release: release}, nil
}

// existingTenant opens a tenant that already has a database. One-shot
// commands never create tenants.
func (s *session) existingTenant(ctx context.Context, id string) (*app.Tenant, error) {
	if err := tenant.Validate(id); err != nil {
		return nil, err
	}
	if _, err := os.Stat(s.cfg.TenantDB(id)); err != nil {
		return nil, fmt.Errorf("tenant %s has no database in %s: %w", id, s.cfg.DataDir, err)
	}
	return s.app.Tenant(ctx, id)
}

func (s *session) Close() {
	if err := s.app.Close(); err != nil {
		s.logger.Warn("close tenants", zap.Error(err))
	}
	if err := s.release(); err != nil {
		s.logger.Warn("release connections", zap.Error(err))
	}
}
