// Package authority manages the authority records and source files of one
// tenant. Writes are checked and observed by the tenant's Policy, and
// authority updates and deletes are handed to the change pipeline.
package authority

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roach88/authsync/internal/change"
	"github.com/roach88/authsync/internal/model"
)

// Store is the tenant storage the service uses.
type Store interface {
	CreateAuthority(ctx context.Context, a model.Authority) (model.Authority, error)
	GetAuthority(ctx context.Context, id uuid.UUID) (model.Authority, error)
	UpdateAuthority(ctx context.Context, a model.Authority, forced bool) (model.Authority, error)
	ArchiveAuthority(ctx context.Context, id uuid.UUID) (model.Authority, error)
	DeleteAuthority(ctx context.Context, id uuid.UUID) error
	ListArchived(ctx context.Context, cutoff time.Time) ([]model.Authority, error)

	CreateSourceFile(ctx context.Context, sf model.SourceFile) (model.SourceFile, error)
	GetSourceFile(ctx context.Context, id uuid.UUID) (model.SourceFile, error)
	ListSourceFiles(ctx context.Context) ([]model.SourceFile, error)
	UpdateSourceFile(ctx context.Context, sf model.SourceFile, forced bool) (model.SourceFile, error)
	DeleteSourceFile(ctx context.Context, id uuid.UUID) error
}

// ChangeHandler propagates authority changes to linked instances.
type ChangeHandler interface {
	HandleUpdate(ctx context.Context, prev, next model.Authority) (int, error)
	HandleDelete(ctx context.Context, a model.Authority) (int, error)
}

// Service manages authorities of one tenant.
type Service struct {
	store   Store
	changes ChangeHandler
	policy  Policy
	now     func() time.Time
	logger  *zap.Logger
}

// NewService returns a service. A nil policy means Standalone.
func NewService(s Store, changes ChangeHandler, policy Policy, logger *zap.Logger) *Service {
	if policy == nil {
		policy = Standalone{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: s, changes: changes, policy: policy, now: time.Now, logger: logger}
}

// CreateAuthority stores a new authority. A nil id is replaced by a fresh one.
func (s *Service) CreateAuthority(ctx context.Context, a model.Authority) (model.Authority, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if err := s.policy.CheckWrite(ctx, EntityAuthority, false); err != nil {
		return model.Authority{}, err
	}
	m := Mutation{Entity: EntityAuthority, Op: OpCreate, ID: a.ID, Authority: &a}
	s.policy.Prepare(ctx, &m)

	created, err := s.store.CreateAuthority(ctx, a)
	if err != nil {
		return model.Authority{}, err
	}
	m.Authority = &created
	s.attachSourceFile(ctx, &m)
	s.policy.AfterWrite(ctx, m)
	return created, nil
}

// GetAuthority returns an authority.
func (s *Service) GetAuthority(ctx context.Context, id uuid.UUID) (model.Authority, error) {
	return s.store.GetAuthority(ctx, id)
}

// UpdateAuthority writes a new version of an authority and propagates the
// change to linked instances. a.Version must be the version the caller read
// unless forced is set. An unsupported change is stored but not propagated.
func (s *Service) UpdateAuthority(ctx context.Context, a model.Authority, forced bool) (model.Authority, error) {
	prev, err := s.store.GetAuthority(ctx, a.ID)
	if err != nil {
		return model.Authority{}, err
	}
	if err := s.policy.CheckWrite(ctx, EntityAuthority, prev.Shared); err != nil {
		return model.Authority{}, err
	}
	m := Mutation{Entity: EntityAuthority, Op: OpUpdate, ID: a.ID, Authority: &a}
	s.policy.Prepare(ctx, &m)

	next, err := s.store.UpdateAuthority(ctx, a, forced)
	if err != nil {
		return model.Authority{}, err
	}
	if next.Version != prev.Version {
		if _, err := s.changes.HandleUpdate(ctx, prev, next); err != nil {
			if !change.IsUnsupported(err) {
				return next, fmt.Errorf("propagate update of authority %s: %w", a.ID, err)
			}
			s.logger.Warn("authority change not propagated", zap.Error(err))
		}
	}
	m.Authority = &next
	s.attachSourceFile(ctx, &m)
	s.policy.AfterWrite(ctx, m)
	return next, nil
}

// attachSourceFile adds the authority's source file to m so a replay can
// create it in a member that has not seen it yet.
func (s *Service) attachSourceFile(ctx context.Context, m *Mutation) {
	if m.Authority == nil || m.Authority.SourceFileID == nil {
		return
	}
	sf, err := s.store.GetSourceFile(ctx, *m.Authority.SourceFileID)
	if err != nil {
		s.logger.Warn("source file of authority not attached",
			zap.Stringer("authority_id", m.ID), zap.Error(err))
		return
	}
	m.SourceFile = &sf
}

// DeleteAuthority moves an authority into the archive and deletes its links.
func (s *Service) DeleteAuthority(ctx context.Context, id uuid.UUID) error {
	current, err := s.store.GetAuthority(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.CheckWrite(ctx, EntityAuthority, current.Shared); err != nil {
		return err
	}
	archived, err := s.store.ArchiveAuthority(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.changes.HandleDelete(ctx, archived); err != nil {
		return fmt.Errorf("propagate delete of authority %s: %w", id, err)
	}
	s.policy.AfterWrite(ctx, Mutation{Entity: EntityAuthority, Op: OpDelete, ID: id})
	return nil
}

// PurgeArchive permanently removes archived authorities older than retention
// and returns how many were removed.
func (s *Service) PurgeArchive(ctx context.Context, retention time.Duration) (int, error) {
	archived, err := s.store.ListArchived(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range archived {
		if err := s.policy.CheckWrite(ctx, EntityArchive, a.Shared); err != nil {
			continue
		}
		if err := s.store.DeleteAuthority(ctx, a.ID); err != nil {
			return n, err
		}
		n++
		s.policy.AfterWrite(ctx, Mutation{Entity: EntityArchive, Op: OpDelete, ID: a.ID})
	}
	return n, nil
}

// CreateSourceFile stores a new source file. A nil id is replaced by a fresh
// one.
func (s *Service) CreateSourceFile(ctx context.Context, sf model.SourceFile) (model.SourceFile, error) {
	if sf.ID == uuid.Nil {
		sf.ID = uuid.New()
	}
	if err := s.policy.CheckWrite(ctx, EntitySourceFile, false); err != nil {
		return model.SourceFile{}, err
	}
	m := Mutation{Entity: EntitySourceFile, Op: OpCreate, ID: sf.ID, SourceFile: &sf}
	s.policy.Prepare(ctx, &m)

	created, err := s.store.CreateSourceFile(ctx, sf)
	if err != nil {
		return model.SourceFile{}, err
	}
	m.SourceFile = &created
	s.policy.AfterWrite(ctx, m)
	return created, nil
}

// GetSourceFile returns a source file.
func (s *Service) GetSourceFile(ctx context.Context, id uuid.UUID) (model.SourceFile, error) {
	return s.store.GetSourceFile(ctx, id)
}

// ListSourceFiles returns every source file.
func (s *Service) ListSourceFiles(ctx context.Context) ([]model.SourceFile, error) {
	return s.store.ListSourceFiles(ctx)
}

// UpdateSourceFile writes a new version of a source file.
func (s *Service) UpdateSourceFile(ctx context.Context, sf model.SourceFile, forced bool) (model.SourceFile, error) {
	current, err := s.store.GetSourceFile(ctx, sf.ID)
	if err != nil {
		return model.SourceFile{}, err
	}
	if err := s.policy.CheckWrite(ctx, EntitySourceFile, current.Shared); err != nil {
		return model.SourceFile{}, err
	}
	m := Mutation{Entity: EntitySourceFile, Op: OpUpdate, ID: sf.ID, SourceFile: &sf}
	s.policy.Prepare(ctx, &m)

	updated, err := s.store.UpdateSourceFile(ctx, sf, forced)
	if err != nil {
		return model.SourceFile{}, err
	}
	m.SourceFile = &updated
	s.policy.AfterWrite(ctx, m)
	return updated, nil
}

// DeleteSourceFile removes a source file that no authority references.
func (s *Service) DeleteSourceFile(ctx context.Context, id uuid.UUID) error {
	current, err := s.store.GetSourceFile(ctx, id)
	if err != nil {
		return err
	}
	if err := s.policy.CheckWrite(ctx, EntitySourceFile, current.Shared); err != nil {
		return err
	}
	if err := s.store.DeleteSourceFile(ctx, id); err != nil {
		return err
	}
	s.policy.AfterWrite(ctx, Mutation{Entity: EntitySourceFile, Op: OpDelete, ID: id})
	return nil
}
