package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/metrics"
	"github.com/roach88/authsync/internal/store"
)

// DefaultRelayBatch bounds the rows relayed per tenant per run.
const DefaultRelayBatch = 500

// OutboxStore is the outbox side of a tenant store.
type OutboxStore interface {
	PendingOutbox(ctx context.Context, limit int) ([]store.OutboxEntry, error)
	MarkOutboxSent(ctx context.Context, seq int64) error
	MarkOutboxFailed(ctx context.Context, seq int64, cause error) error
}

// Sink delivers an encoded change event.
type Sink interface {
	PublishRaw(ctx context.Context, tenantID, jobID string, payload []byte) error
}

// LogSink logs relayed events instead of delivering them. It is used when no
// broker is configured.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) PublishRaw(_ context.Context, tenantID, jobID string, payload []byte) error {
	if s.Logger != nil {
		s.Logger.Info("change event",
			zap.String("tenant", tenantID),
			zap.String("job_id", jobID),
			zap.ByteString("payload", payload))
	}
	return nil
}

// Relay forwards outbox rows of every open tenant to a Sink.
type Relay struct {
	tenants func() []string
	stores  func(ctx context.Context, tenantID string) (OutboxStore, error)
	sink    Sink
	batch   int
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewRelay returns a relay over the tenants listed by tenants. batch <= 0
// selects DefaultRelayBatch.
func NewRelay(
	tenants func() []string,
	stores func(ctx context.Context, tenantID string) (OutboxStore, error),
	sink Sink,
	batch int,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Relay {
	if batch <= 0 {
		batch = DefaultRelayBatch
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{tenants: tenants, stores: stores, sink: sink, batch: batch, metrics: m, logger: logger}
}

// Flush relays pending rows of every tenant once. A failing tenant does not
// stop the others; their errors are joined.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, id := range r.tenants() {
		n, err := r.FlushTenant(ctx, id)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return total, errors.Join(errs...)
}

// FlushTenant relays up to one batch of a tenant's rows in append order. It
// stops at the first delivery failure, which is recorded on the row.
func (r *Relay) FlushTenant(ctx context.Context, tenantID string) (int, error) {
	s, err := r.stores(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("relay %s: %w", tenantID, err)
	}
	pending, err := s.PendingOutbox(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("relay %s: %w", tenantID, err)
	}

	sent := 0
	defer func() { r.metrics.Relayed(sent) }()
	for _, e := range pending {
		if err := r.sink.PublishRaw(ctx, e.Record.Tenant, e.Record.JobID, e.Record.Payload); err != nil {
			if markErr := s.MarkOutboxFailed(ctx, e.Seq, err); markErr != nil {
				r.logger.Error("mark outbox row failed", zap.String("tenant", tenantID), zap.Int64("seq", e.Seq), zap.Error(markErr))
			}
			return sent, fmt.Errorf("relay %s row %d: %w", tenantID, e.Seq, err)
		}
		if err := s.MarkOutboxSent(ctx, e.Seq); err != nil {
			return sent, fmt.Errorf("relay %s row %d: %w", tenantID, e.Seq, err)
		}
		sent++
	}
	return sent, nil
}
