package change

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/event"
	"github.com/roach88/authsync/internal/metrics"
	"github.com/roach88/authsync/internal/model"
	"github.com/roach88/authsync/internal/partition"
	"github.com/roach88/authsync/internal/rules"
)

// Store is the tenant storage the handler reads and writes.
type Store interface {
	partition.LinkPager
	UpdateNaturalID(ctx context.Context, authorityID uuid.UUID, naturalID string) (int64, error)
	DeleteByAuthorityID(ctx context.Context, authorityID uuid.UUID) (int64, error)
	UpsertNaturalIDs(ctx context.Context, naturalIDs map[uuid.UUID]string) error
	DeleteAuthorityData(ctx context.Context, id uuid.UUID) error
	GetSourceFile(ctx context.Context, id uuid.UUID) (model.SourceFile, error)
}

// Event is an inbound authority mutation. UPDATE carries both versions;
// DELETE carries the removed authority in Old.
type Event struct {
	Type event.Type
	Old  model.Authority
	New  model.Authority
}

// Handler propagates authority changes of one tenant.
type Handler struct {
	store       Store
	rules       rules.Store
	partitioner *partition.Partitioner
	publisher   event.Publisher
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewHandler returns a handler. m and logger may be nil.
func NewHandler(s Store, rs rules.Store, pub event.Publisher, m *metrics.Metrics, logger *zap.Logger, opts ...partition.Option) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:       s,
		rules:       rs,
		partitioner: partition.New(s, opts...),
		publisher:   pub,
		metrics:     m,
		logger:      logger,
	}
}

// HandleUpdate propagates an authority update and returns the number of
// events published. Unsupported changes return an UnsupportedChangeError and
// publish nothing.
func (h *Handler) HandleUpdate(ctx context.Context, prev, next model.Authority) (int, error) {
	d := Classify(prev, next)
	switch d.Kind {
	case KindNone:
		return 0, nil
	case KindUnsupported:
		h.metrics.UnsupportedChange()
		return 0, &UnsupportedChangeError{AuthorityID: next.ID, Changed: d.Changed}
	}

	zero, err := h.zero(ctx, next)
	if err != nil {
		return 0, err
	}

	var heading model.Field
	var candidates []rules.LinkingRule
	if d.Kind == KindFieldChange {
		var ok bool
		if heading, ok = Heading(next); !ok {
			h.metrics.UnsupportedChange()
			return 0, &UnsupportedChangeError{AuthorityID: next.ID, Changed: d.Changed}
		}
		candidates, err = h.rules.RulesForAuthorityField(ctx, heading.Tag)
		if err != nil {
			return 0, fmt.Errorf("rules for %s: %w", heading.Tag, err)
		}
	}
	changes := SubfieldChanges(d, heading, candidates, zero)

	if d.NaturalIDChanged {
		if _, err := h.store.UpdateNaturalID(ctx, next.ID, next.NaturalID); err != nil {
			return 0, err
		}
		if err := h.store.UpsertNaturalIDs(ctx, map[uuid.UUID]string{next.ID: next.NaturalID}); err != nil {
			return 0, err
		}
	}

	pages := h.partitioner.Emit(partition.Request{
		AuthorityID:     next.ID,
		Type:            event.TypeUpdate,
		SubfieldChanges: changes,
	})
	n, err := pages.Drain(ctx, func(ev event.ChangeEvent) error {
		return h.publisher.Publish(ctx, ev)
	})
	if err != nil {
		return n, fmt.Errorf("publish update of authority %s: %w", next.ID, err)
	}

	h.logger.Info("authority update propagated",
		zap.Stringer("authority_id", next.ID),
		zap.Stringer("kind", d.Kind),
		zap.String("attribute", string(d.Attribute)),
		zap.Stringer("job_id", pages.JobID()),
		zap.Int("events", n),
	)
	return n, nil
}

// HandleDelete publishes DELETE events for every link of a removed authority,
// then deletes the links and the authority's natural id record.
func (h *Handler) HandleDelete(ctx context.Context, a model.Authority) (int, error) {
	pages := h.partitioner.Emit(partition.Request{AuthorityID: a.ID, Type: event.TypeDelete})
	n, err := pages.Drain(ctx, func(ev event.ChangeEvent) error {
		return h.publisher.Publish(ctx, ev)
	})
	if err != nil {
		return n, fmt.Errorf("publish delete of authority %s: %w", a.ID, err)
	}

	removed, err := h.store.DeleteByAuthorityID(ctx, a.ID)
	if err != nil {
		return n, err
	}
	if err := h.store.DeleteAuthorityData(ctx, a.ID); err != nil {
		return n, err
	}
	h.metrics.LinksRemoved(int(removed))

	h.logger.Info("authority delete propagated",
		zap.Stringer("authority_id", a.ID),
		zap.Stringer("job_id", pages.JobID()),
		zap.Int("events", n),
		zap.Int64("links_removed", removed),
	)
	return n, nil
}

// Handle dispatches one inbound event.
func (h *Handler) Handle(ctx context.Context, ev Event) (int, error) {
	switch ev.Type {
	case event.TypeUpdate:
		return h.HandleUpdate(ctx, ev.Old, ev.New)
	case event.TypeDelete:
		return h.HandleDelete(ctx, ev.Old)
	}
	return 0, fmt.Errorf("unknown authority event type %q", ev.Type)
}

// HandleBatch handles every event in order. Unsupported changes are logged
// and skipped; other failures are collected and do not stop the batch.
func (h *Handler) HandleBatch(ctx context.Context, evs []Event) error {
	var errs []error
	for _, ev := range evs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		_, err := h.Handle(ctx, ev)
		switch {
		case err == nil:
		case IsUnsupported(err):
			h.logger.Warn("skipping unsupported authority change", zap.Error(err))
		default:
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) zero(ctx context.Context, a model.Authority) (string, error) {
	if a.SourceFileID == nil {
		return model.ZeroValue("", a.NaturalID), nil
	}
	sf, err := h.store.GetSourceFile(ctx, *a.SourceFileID)
	if err != nil {
		return "", fmt.Errorf("source file of authority %s: %w", a.ID, err)
	}
	return model.ZeroValue(sf.BaseURL, a.NaturalID), nil
}
