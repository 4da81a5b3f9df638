package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// AuthorityData is the natural id mirror kept by link reconciliation.
type AuthorityData struct {
	ID        uuid.UUID
	NaturalID string
	Version   int
}

// UpsertNaturalIDs records the natural id of each authority. Rows whose
// natural id is unchanged are not written, so repeating the call leaves
// versions and content as they were.
func (s *Store) UpsertNaturalIDs(ctx context.Context, naturalIDs map[uuid.UUID]string) error {
	if len(naturalIDs) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(naturalIDs))
	for id := range naturalIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO authority_data (id, natural_id, version)
				VALUES (?, ?, 0)
				ON CONFLICT(id) DO UPDATE SET
					natural_id = excluded.natural_id,
					version = authority_data.version + 1
				WHERE authority_data.natural_id <> excluded.natural_id
			`, id.String(), naturalIDs[id]); err != nil {
				return fmt.Errorf("upsert authority data: %w", err)
			}
		}
		return nil
	})
}

// GetAuthorityData returns the mirror row of an authority.
func (s *Store) GetAuthorityData(ctx context.Context, id uuid.UUID) (AuthorityData, error) {
	var d AuthorityData
	err := s.db.QueryRowContext(ctx,
		`SELECT id, natural_id, version FROM authority_data WHERE id = ?`, id.String()).
		Scan(&d.ID, &d.NaturalID, &d.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return AuthorityData{}, fmt.Errorf("authority data %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return AuthorityData{}, fmt.Errorf("get authority data: %w", err)
	}
	return d, nil
}

// DeleteAuthorityData removes the mirror row of an authority.
func (s *Store) DeleteAuthorityData(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM authority_data WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete authority data: %w", err)
	}
	return nil
}
