package event

import (
	"context"

	"github.com/roach88/authsync/internal/metrics"
)

// Metered counts published events by type and outcome.
type Metered struct {
	next Publisher
	m    *metrics.Metrics
}

// NewMetered wraps next. A nil m counts nothing.
func NewMetered(next Publisher, m *metrics.Metrics) *Metered {
	return &Metered{next: next, m: m}
}

func (p *Metered) Publish(ctx context.Context, ev ChangeEvent) error {
	err := p.next.Publish(ctx, ev)
	p.m.EventPublished(string(ev.Type), err)
	return err
}

func (p *Metered) PublishAll(ctx context.Context, evs []ChangeEvent) error {
	err := p.next.PublishAll(ctx, evs)
	for _, ev := range evs {
		p.m.EventPublished(string(ev.Type), err)
	}
	return err
}
