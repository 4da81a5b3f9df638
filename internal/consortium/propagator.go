// Package consortium replays writes of shareable records from a consortium's
// central tenant into its member tenants.
//
// Propagation is asynchronous: Handle returns at once with a handle the
// caller may wait on or drop. Every member is replayed concurrently through
// that member's own authority service, under the member's identity. A member
// that fails does not affect the others, and no failure reaches the writer.
package consortium

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/authority"
	"github.com/roach88/authsync/internal/metrics"
	"github.com/roach88/authsync/internal/tenant"
)

// Replayer applies a replayed mutation in one tenant.
type Replayer interface {
	Apply(ctx context.Context, m authority.Mutation) error
}

// ResolveFunc returns the replayer of a tenant.
type ResolveFunc func(ctx context.Context, tenantID string) (Replayer, error)

// PropagationError reports a failed replay into one member.
type PropagationError struct {
	Tenant string
	Entity authority.Entity
	Op     authority.Op
	Err    error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("replay %s %s into %s: %v", e.Entity, e.Op, e.Tenant, e.Err)
}

func (e *PropagationError) Unwrap() error {
	return e.Err
}

// Report is the outcome of one propagation.
type Report struct {
	Replayed []string
	Failed   []*PropagationError
}

// Err joins the failures of the report.
func (r Report) Err() error {
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Handle tracks one propagation.
type Handle struct {
	done   chan struct{}
	report Report
}

// Done is closed once every member has been replayed or has failed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the propagation finishes or ctx ends. Abandoning a wait
// does not stop the replays.
func (h *Handle) Wait(ctx context.Context) (Report, error) {
	select {
	case <-h.done:
		return h.report, nil
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

// Propagator replays writes into consortium members.
type Propagator struct {
	members  Membership
	resolve  ResolveFunc
	executor *tenant.Executor
	metrics  *metrics.Metrics
	logger   *zap.Logger
	inflight sync.WaitGroup
}

// NewPropagator returns a propagator. m and logger may be nil.
func NewPropagator(members Membership, resolve ResolveFunc, m *metrics.Metrics, logger *zap.Logger) *Propagator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Propagator{
		members:  members,
		resolve:  resolve,
		executor: tenant.NewExecutor(logger),
		metrics:  m,
		logger:   logger,
	}
}

// Propagate starts a propagation and drops its handle.
func (p *Propagator) Propagate(ctx context.Context, m authority.Mutation) {
	p.Handle(ctx, m)
}

// Handle starts replaying m into every member of the origin tenant. The
// origin is m.Origin, or the tenant of ctx when unset.
func (p *Propagator) Handle(ctx context.Context, m authority.Mutation) *Handle {
	h := &Handle{done: make(chan struct{})}

	origin := m.Origin
	if origin == "" {
		origin, _ = tenant.FromContext(ctx)
	}
	m.Origin = origin

	ctx = context.WithoutCancel(ctx)
	members, err := p.members.MembersOf(ctx, origin)
	if err != nil {
		p.logger.Error("resolve consortium members", zap.String("tenant", origin), zap.Error(err))
		close(h.done)
		return h
	}
	var targets []string
	for _, id := range members {
		if id != origin {
			targets = append(targets, id)
		}
	}
	if len(targets) == 0 {
		close(h.done)
		return h
	}

	results := make([]<-chan error, len(targets))
	for i, id := range targets {
		id := id
		results[i] = p.executor.RunAsAsync(ctx, id, func(ctx context.Context) error {
			r, err := p.resolve(ctx, id)
			if err != nil {
				return fmt.Errorf("resolve tenant: %w", err)
			}
			return r.Apply(ctx, m)
		})
	}

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		defer close(h.done)
		for i, ch := range results {
			err := <-ch
			p.metrics.Replayed(string(m.Entity), err)
			if err != nil {
				pe := &PropagationError{Tenant: targets[i], Entity: m.Entity, Op: m.Op, Err: err}
				h.report.Failed = append(h.report.Failed, pe)
				p.logger.Warn("consortium replay failed",
					zap.String("origin", origin),
					zap.String("tenant", targets[i]),
					zap.String("entity", string(m.Entity)),
					zap.String("op", string(m.Op)),
					zap.Stringer("id", m.ID),
					zap.Error(err),
				)
				continue
			}
			h.report.Replayed = append(h.report.Replayed, targets[i])
		}
		sort.Strings(h.report.Replayed)
	}()
	return h
}

// Wait blocks until every started propagation has finished.
func (p *Propagator) Wait() {
	p.inflight.Wait()
}
