// Package app assembles the per-tenant services and the background loops
// that serve every tenant of one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/authority"
	"github.com/roach88/authsync/internal/change"
	"github.com/roach88/authsync/internal/consortium"
	"github.com/roach88/authsync/internal/engine"
	"github.com/roach88/authsync/internal/event"
	"github.com/roach88/authsync/internal/linking"
	"github.com/roach88/authsync/internal/metrics"
	"github.com/roach88/authsync/internal/partition"
	"github.com/roach88/authsync/internal/rules"
	"github.com/roach88/authsync/internal/store"
	"github.com/roach88/authsync/internal/tenant"
)

// Tenant is the service bundle of one tenant.
type Tenant struct {
	ID          string
	Store       *store.Store
	Links       *linking.Service
	Changes     *change.Handler
	Authorities *authority.Service
}

// Options configure an App.
type Options struct {
	// DataDir holds one SQLite database per tenant.
	DataDir string
	Rules   rules.Store
	// Membership selects each tenant's consortium role. Nil means every
	// tenant is standalone.
	Membership *consortium.Static
	Sink       engine.Sink
	// OutboxBatch bounds relayed rows per tenant per flush.
	OutboxBatch int
	Partition   []partition.Option
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
}

// App owns the tenant registry, the consortium propagator, the authority
// change consumer and the outbox relay.
type App struct {
	opts       Options
	logger     *zap.Logger
	tenants    *tenant.Registry[*Tenant]
	propagator *consortium.Propagator
	consumer   *engine.Consumer
	relay      *engine.Relay
}

// New returns an app. Tenants are opened on first use.
func New(opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Sink == nil {
		opts.Sink = engine.LogSink{Logger: opts.Logger}
	}
	a := &App{opts: opts, logger: opts.Logger}
	a.tenants = tenant.NewRegistry(a.open, func(t *Tenant) error { return t.Store.Close() })

	var members consortium.Membership = noMembers{}
	if opts.Membership != nil {
		members = opts.Membership
	}
	a.propagator = consortium.NewPropagator(members, a.replayer, opts.Metrics, opts.Logger)
	a.consumer = engine.NewConsumer(a.changeHandler, opts.Logger)
	a.relay = engine.NewRelay(a.tenants.Tenants, a.outbox, opts.Sink, opts.OutboxBatch, opts.Metrics, opts.Logger)
	return a
}

// Tenant returns the services of tenant id.
func (a *App) Tenant(ctx context.Context, id string) (*Tenant, error) {
	return a.tenants.Get(ctx, id)
}

// ForContext returns the services of the tenant carried by ctx.
func (a *App) ForContext(ctx context.Context) (*Tenant, error) {
	return a.tenants.ForContext(ctx)
}

// Tenants returns the ids of the open tenants.
func (a *App) Tenants() []string {
	return a.tenants.Tenants()
}

func (a *App) Rules() rules.Store                  { return a.opts.Rules }
func (a *App) Consumer() *engine.Consumer          { return a.consumer }
func (a *App) Relay() *engine.Relay                { return a.relay }
func (a *App) Propagator() *consortium.Propagator { return a.propagator }

// OpenExisting opens every tenant that has a database in DataDir, so their
// pending outbox rows are relayed.
func (a *App) OpenExisting(ctx context.Context) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(a.opts.DataDir, "*.db"))
	if err != nil {
		return nil, err
	}
	var (
		ids  []string
		errs []error
	)
	for _, p := range paths {
		id := strings.TrimSuffix(filepath.Base(p), ".db")
		if tenant.Validate(id) != nil {
			continue
		}
		if _, err := a.Tenant(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids, errors.Join(errs...)
}

// PurgeArchives purges archived authorities older than retention in every
// open tenant.
func (a *App) PurgeArchives(ctx context.Context, retention time.Duration) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, id := range a.Tenants() {
		err := tenant.NewExecutor(a.logger).RunAs(ctx, id, func(ctx context.Context) error {
			t, err := a.Tenant(ctx, id)
			if err != nil {
				return err
			}
			n, err := t.Authorities.PurgeArchive(ctx, retention)
			total += n
			return err
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// Close waits for running propagations, stops the consumer and closes every
// tenant store.
func (a *App) Close() error {
	a.propagator.Wait()
	a.consumer.Stop()
	return a.tenants.Close()
}

func (a *App) open(_ context.Context, id string) (*Tenant, error) {
	if err := os.MkdirAll(a.opts.DataDir, 0o755); err != nil {
		return nil, err
	}
	s, err := store.Open(filepath.Join(a.opts.DataDir, id+".db"))
	if err != nil {
		return nil, err
	}

	logger := a.logger.With(zap.String("tenant", id))
	pub := event.NewMetered(event.NewOutbox(s), a.opts.Metrics)
	changes := change.NewHandler(s, a.opts.Rules, pub, a.opts.Metrics, logger, a.opts.Partition...)
	t := &Tenant{
		ID:          id,
		Store:       s,
		Links:       linking.NewService(s, a.opts.Rules, pub, a.opts.Metrics, logger, a.opts.Partition...),
		Changes:     changes,
		Authorities: authority.NewService(s, changes, a.policyFor(id, logger), logger),
	}
	a.logger.Info("tenant opened", zap.String("tenant", id))
	return t, nil
}

func (a *App) policyFor(id string, logger *zap.Logger) authority.Policy {
	logging := authority.Logging{Logger: logger}
	switch a.opts.Membership.Role(id) {
	case consortium.RoleCentral:
		return authority.Compose(authority.Central{Propagator: a.propagator}, logging)
	case consortium.RoleMember:
		return authority.Compose(authority.Member{}, logging)
	}
	return authority.Compose(authority.Standalone{}, logging)
}

func (a *App) replayer(ctx context.Context, id string) (consortium.Replayer, error) {
	t, err := a.Tenant(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.Authorities, nil
}

func (a *App) changeHandler(ctx context.Context, id string) (engine.Handler, error) {
	t, err := a.Tenant(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.Changes, nil
}

func (a *App) outbox(ctx context.Context, id string) (engine.OutboxStore, error) {
	t, err := a.Tenant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	return t.Store, nil
}

type noMembers struct{}

func (noMembers) MembersOf(context.Context, string) ([]string, error) { return nil, nil }
