package authority

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/tenant"
)

// ErrSharedRecord is returned when a member tenant writes a record owned by
// the consortium.
var ErrSharedRecord = errors.New("shared record is managed by the central tenant")

// Policy adds tenant-specific behaviour around writes.
type Policy interface {
	// CheckWrite rejects a write before it happens. shared reports whether
	// the stored record is a consortium copy.
	CheckWrite(ctx context.Context, entity Entity, shared bool) error
	// Prepare adjusts a record before it is written.
	Prepare(ctx context.Context, m *Mutation)
	// AfterWrite observes a completed write.
	AfterWrite(ctx context.Context, m Mutation)
}

// Propagator forwards completed writes to other tenants.
type Propagator interface {
	Propagate(ctx context.Context, m Mutation)
}

// Standalone is the policy of a tenant outside any consortium.
type Standalone struct{}

func (Standalone) CheckWrite(context.Context, Entity, bool) error { return nil }
func (Standalone) Prepare(context.Context, *Mutation)             {}
func (Standalone) AfterWrite(context.Context, Mutation)           {}

// Central is the policy of a consortium's central tenant: every record it
// writes is shared and every write is propagated.
type Central struct {
	Propagator Propagator
}

func (Central) CheckWrite(context.Context, Entity, bool) error { return nil }

func (Central) Prepare(_ context.Context, m *Mutation) {
	if m.Authority != nil {
		m.Authority.Shared = true
	}
	if m.SourceFile != nil {
		m.SourceFile.Shared = true
	}
}

func (c Central) AfterWrite(ctx context.Context, m Mutation) {
	if c.Propagator != nil {
		c.Propagator.Propagate(context.WithoutCancel(ctx), m)
	}
}

// Member is the policy of a consortium member: shared records change only
// through replays from the central tenant.
type Member struct{}

func (Member) CheckWrite(ctx context.Context, entity Entity, shared bool) error {
	if shared && !IsReplay(ctx) {
		return fmt.Errorf("%s: %w", entity, ErrSharedRecord)
	}
	return nil
}

func (Member) Prepare(ctx context.Context, m *Mutation) {
	if IsReplay(ctx) {
		return
	}
	if m.Authority != nil {
		m.Authority.Shared = false
	}
	if m.SourceFile != nil {
		m.SourceFile.Shared = false
	}
}

func (Member) AfterWrite(context.Context, Mutation) {}

// Logging logs every completed write.
type Logging struct {
	Logger *zap.Logger
}

func (Logging) CheckWrite(context.Context, Entity, bool) error { return nil }
func (Logging) Prepare(context.Context, *Mutation)             {}

func (l Logging) AfterWrite(ctx context.Context, m Mutation) {
	if l.Logger == nil {
		return
	}
	id, _ := tenant.FromContext(ctx)
	l.Logger.Info("record written",
		zap.String("tenant", id),
		zap.String("entity", string(m.Entity)),
		zap.String("op", string(m.Op)),
		zap.Stringer("id", m.ID),
		zap.Bool("replay", IsReplay(ctx)),
	)
}

// Compose runs policies in order. CheckWrite stops at the first rejection.
func Compose(ps ...Policy) Policy {
	return composite(ps)
}

type composite []Policy

func (c composite) CheckWrite(ctx context.Context, entity Entity, shared bool) error {
	for _, p := range c {
		if err := p.CheckWrite(ctx, entity, shared); err != nil {
			return err
		}
	}
	return nil
}

func (c composite) Prepare(ctx context.Context, m *Mutation) {
	for _, p := range c {
		p.Prepare(ctx, m)
	}
}

func (c composite) AfterWrite(ctx context.Context, m Mutation) {
	for _, p := range c {
		p.AfterWrite(ctx, m)
	}
}
