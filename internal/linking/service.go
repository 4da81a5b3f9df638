// Package linking is the instance link service of one tenant: suggestions
// for bib fields, link updates, reads and counts.
package linking

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/event"
	"github.com/roach88/authsync/internal/match"
	"github.com/roach88/authsync/internal/metrics"
	"github.com/roach88/authsync/internal/model"
	"github.com/roach88/authsync/internal/partition"
	"github.com/roach88/authsync/internal/reconcile"
	"github.com/roach88/authsync/internal/rules"
)

// Store is the tenant storage the service uses.
type Store interface {
	reconcile.ContentProvider
	reconcile.LinkReader
	FindByNaturalIDs(ctx context.Context, naturalIDs []string) ([]model.AuthorityContent, error)
	ReplaceInstanceLinks(ctx context.Context, instanceID uuid.UUID, deleteIDs []int64, persist []model.Link, then func(ctx context.Context, saved []model.Link) error) ([]model.Link, error)
	UpsertNaturalIDs(ctx context.Context, naturalIDs map[uuid.UUID]string) error
	CountByAuthorityIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error)
}

// SuggestOptions tune Suggest.
type SuggestOptions struct {
	// IgnoreAutoLinking evaluates rules with auto linking disabled.
	IgnoreAutoLinking bool
	// SearchBy restricts the authority reference to $0 or $9. The zero
	// value takes $9 when it parses and $0 otherwise.
	SearchBy match.SearchBy
}

// UpdateResult summarizes an instance link update.
type UpdateResult struct {
	Links   []model.Link
	Deleted int
	Invalid []reconcile.InvalidLink
	Events  int
}

// Service serves the links of one tenant.
type Service struct {
	store      Store
	rules      rules.Store
	reconciler *reconcile.Reconciler
	publisher  event.Publisher
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewService returns a service. m and logger may be nil.
func NewService(s Store, rs rules.Store, pub event.Publisher, m *metrics.Metrics, logger *zap.Logger, opts ...partition.Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:      s,
		rules:      rs,
		reconciler: reconcile.New(rs, s, s, reconcile.WithPartitionOptions(opts...), reconcile.WithLogger(logger)),
		publisher:  pub,
		metrics:    m,
		logger:     logger,
	}
}

// Suggest evaluates every field of a bib record and returns copies with link
// details set. Fields whose tag no rule targets are returned unchanged.
func (s *Service) Suggest(ctx context.Context, fields []model.Field, opts SuggestOptions) ([]model.Field, error) {
	ruleList, err := s.rules.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest: list rules: %w", err)
	}
	byTag := rules.GroupByBibField(ruleList)

	searchBy := opts.SearchBy
	if !searchBy.Valid() {
		return nil, fmt.Errorf("suggest: unknown search mode %q", searchBy)
	}
	candidates, err := s.candidates(ctx, fields, searchBy)
	if err != nil {
		return nil, fmt.Errorf("suggest: fetch candidates: %w", err)
	}

	matchOpts := []match.Option{match.WithSearchBy(searchBy)}
	if opts.IgnoreAutoLinking {
		matchOpts = append(matchOpts, match.WithAllRules())
	}

	out := make([]model.Field, len(fields))
	for i, f := range fields {
		rs, ok := byTag[f.Tag]
		if !ok {
			out[i] = f.Clone()
			continue
		}
		out[i] = match.Suggest(f, candidates, rs, matchOpts...)
	}
	return out, nil
}

// candidates loads every authority the fields may reference under searchBy.
func (s *Service) candidates(ctx context.Context, fields []model.Field, searchBy match.SearchBy) ([]model.AuthorityContent, error) {
	ids, naturalIDs := match.Identifiers(fields)
	switch searchBy {
	case match.SearchByID:
		return s.store.FetchByIDs(ctx, ids)
	case match.SearchByNaturalID:
		return s.store.FindByNaturalIDs(ctx, naturalIDs)
	}
	byID, err := s.store.FetchByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byNaturalID, err := s.store.FindByNaturalIDs(ctx, naturalIDs)
	if err != nil {
		return nil, err
	}
	seen := make(map[uuid.UUID]bool, len(byID))
	out := make([]model.AuthorityContent, 0, len(byID)+len(byNaturalID))
	for _, c := range append(byID, byNaturalID...) {
		if !seen[c.AuthorityID] {
			seen[c.AuthorityID] = true
			out = append(out, c)
		}
	}
	return out, nil
}

// UpdateInstanceLinks replaces the links of an instance with incoming.
//
// The diff, the natural ids of the linked authorities and the resulting
// change events commit in one store transaction when the publisher writes to
// the store outbox. A failed publish leaves the stored links as they were, so
// a retry derives the same events again. Submitting the same links again
// changes nothing in the store.
func (s *Service) UpdateInstanceLinks(ctx context.Context, instanceID uuid.UUID, incoming []model.Link) (UpdateResult, error) {
	res, err := s.reconciler.Reconcile(ctx, instanceID, incoming)
	if err != nil {
		return UpdateResult{}, err
	}

	var evs []event.ChangeEvent
	saved, err := s.store.ReplaceInstanceLinks(ctx, instanceID, res.DeleteIDs(), res.ToPersist,
		func(ctx context.Context, saved []model.Link) error {
			if err := s.store.UpsertNaturalIDs(ctx, res.NaturalIDs); err != nil {
				return err
			}
			var err error
			if evs, err = s.reconciler.Events(ctx, res, saved); err != nil {
				return err
			}
			if err := s.publisher.PublishAll(ctx, evs); err != nil {
				return fmt.Errorf("publish link events: %w", err)
			}
			return nil
		})
	if err != nil {
		return UpdateResult{}, fmt.Errorf("update links of instance %s: %w", instanceID, err)
	}
	s.metrics.Reconciled(len(saved), len(res.ToDelete))

	s.logger.Info("instance links updated",
		zap.Stringer("instance_id", instanceID),
		zap.Int("links", len(saved)),
		zap.Int("deleted", len(res.ToDelete)),
		zap.Int("invalid", len(res.Invalid)),
		zap.Int("events", len(evs)),
	)
	return UpdateResult{
		Links:   saved,
		Deleted: len(res.ToDelete),
		Invalid: res.Invalid,
		Events:  len(evs),
	}, nil
}

// GetInstanceLinks returns the stored links of an instance.
func (s *Service) GetInstanceLinks(ctx context.Context, instanceID uuid.UUID) ([]model.Link, error) {
	return s.store.FindByInstanceID(ctx, instanceID)
}

// CountLinks returns the number of links per authority. Every requested id
// is present in the result.
func (s *Service) CountLinks(ctx context.Context, authorityIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	return s.store.CountByAuthorityIDs(ctx, authorityIDs)
}
