package tenant

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Executor runs functions under a tenant identity.
type Executor struct {
	logger *zap.Logger
}

// NewExecutor returns an executor. A nil logger disables logging.
func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{logger: logger}
}

// RunAs runs fn synchronously with ctx switched to tenant id.
func (e *Executor) RunAs(ctx context.Context, id string, fn func(ctx context.Context) error) error {
	if err := Validate(id); err != nil {
		return err
	}
	if err := fn(WithTenant(ctx, id)); err != nil {
		return fmt.Errorf("tenant %s: %w", id, err)
	}
	return nil
}

// RunAsAsync runs fn on a new goroutine with ctx switched to tenant id. The
// returned channel receives exactly one value (nil on success) and is then
// closed. A panic in fn is recovered and reported as an error.
func (e *Executor) RunAsAsync(ctx context.Context, id string, fn func(ctx context.Context) error) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("tenant task panicked", zap.String("tenant", id), zap.Any("panic", r))
				done <- fmt.Errorf("tenant %s: panic: %v", id, r)
			}
		}()
		done <- e.RunAs(ctx, id, fn)
	}()
	return done
}
