package authority

import (
	"context"
	"fmt"

	"github.com/roach88/authsync/internal/model"
	"github.com/roach88/authsync/internal/store"
)

// Apply replays a mutation written by another tenant into this one. Replayed
// records are shared copies. Updates are forced, an update of a missing
// record creates it, and deleting a missing record succeeds.
func (s *Service) Apply(ctx context.Context, m Mutation) error {
	ctx = WithReplay(ctx)
	switch m.Entity {
	case EntityAuthority:
		return s.applyAuthority(ctx, m)
	case EntitySourceFile:
		return s.applySourceFile(ctx, m)
	case EntityArchive:
		if m.Op != OpDelete {
			return fmt.Errorf("replay %s: unsupported op %s", m.Entity, m.Op)
		}
		return s.store.DeleteAuthority(ctx, m.ID)
	}
	return fmt.Errorf("replay: unknown entity %q", m.Entity)
}

func (s *Service) applyAuthority(ctx context.Context, m Mutation) error {
	if m.Op == OpDelete {
		return ignoreNotFound(s.DeleteAuthority(ctx, m.ID))
	}
	if m.Authority == nil {
		return fmt.Errorf("replay %s %s %s: missing record", m.Entity, m.Op, m.ID)
	}
	if m.SourceFile != nil {
		if err := s.ensureSourceFile(ctx, *m.SourceFile); err != nil {
			return err
		}
	}
	a := m.Authority.Clone()
	a.Shared = true
	a.Deleted = false

	if m.Op == OpUpdate {
		_, err := s.UpdateAuthority(ctx, a, true)
		if !store.IsNotFound(err) {
			return err
		}
	}
	a.Version = 0
	_, err := s.CreateAuthority(ctx, a)
	return err
}

func (s *Service) applySourceFile(ctx context.Context, m Mutation) error {
	if m.Op == OpDelete {
		return ignoreNotFound(s.DeleteSourceFile(ctx, m.ID))
	}
	if m.SourceFile == nil {
		return fmt.Errorf("replay %s %s %s: missing record", m.Entity, m.Op, m.ID)
	}
	sf := *m.SourceFile
	sf.Codes = append([]string(nil), m.SourceFile.Codes...)
	sf.Shared = true

	if m.Op == OpUpdate {
		_, err := s.UpdateSourceFile(ctx, sf, true)
		if !store.IsNotFound(err) {
			return err
		}
	}
	sf.Version = 0
	_, err := s.CreateSourceFile(ctx, sf)
	return err
}

// ensureSourceFile creates sf when this tenant does not have it yet.
// Authority and source file replays run concurrently, so an authority may
// arrive first.
func (s *Service) ensureSourceFile(ctx context.Context, sf model.SourceFile) error {
	_, err := s.store.GetSourceFile(ctx, sf.ID)
	if !store.IsNotFound(err) {
		return err
	}
	sf.Codes = append([]string(nil), sf.Codes...)
	sf.Shared = true
	sf.Version = 0
	if _, err := s.store.CreateSourceFile(ctx, sf); err != nil {
		return fmt.Errorf("replay source file %s: %w", sf.ID, err)
	}
	return nil
}

func ignoreNotFound(err error) error {
	if store.IsNotFound(err) {
		return nil
	}
	return err
}
