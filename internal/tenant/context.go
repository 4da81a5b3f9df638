package tenant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

type contextKey struct{}

// ErrNoTenant is returned when a context carries no tenant.
var ErrNoTenant = errors.New("no tenant in context")

var validID = regexp.MustCompile(`^[a-z0-9][a-z0-9_]{0,62}$`)

// Validate checks that id is usable as a tenant identifier. Tenant ids name
// database files, so they are restricted to lower-case letters, digits and
// underscores.
func Validate(id string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("invalid tenant id %q", id)
	}
	return nil
}

// WithTenant returns a copy of ctx acting as tenant id.
func WithTenant(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the tenant carried by ctx.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// Require returns the tenant carried by ctx or ErrNoTenant.
func Require(ctx context.Context) (string, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return "", ErrNoTenant
	}
	return id, nil
}
