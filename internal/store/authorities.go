package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/authsync/internal/model"
)

const authorityColumns = `a.id, a.natural_id, a.source_file_id, a.fields, a.content_hash,
	a.shared, a.deleted, a.version, a.updated_at`

// CreateAuthority inserts a new authority at version 0.
//
// Creating an authority whose id already exists with identical content is a
// no-op that returns the stored record, so replays converge. Different
// content under an existing id is a conflict.
func (s *Store) CreateAuthority(ctx context.Context, a model.Authority) (model.Authority, error) {
	hash, err := model.AuthorityHash(a)
	if err != nil {
		return model.Authority{}, fmt.Errorf("create authority: %w", err)
	}
	fields, err := marshalFields(a.Fields)
	if err != nil {
		return model.Authority{}, fmt.Errorf("create authority: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO authorities
		(id, natural_id, source_file_id, fields, content_hash, shared, deleted, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		a.ID.String(),
		a.NaturalID,
		nullUUID(a.SourceFileID),
		fields,
		hash,
		boolInt(a.Shared),
		formatTime(s.now()),
	)
	if err != nil {
		return model.Authority{}, fmt.Errorf("create authority: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Authority{}, fmt.Errorf("create authority: %w", err)
	}

	stored, storedHash, err := s.getAuthority(ctx, s.db, a.ID)
	if err != nil {
		return model.Authority{}, fmt.Errorf("create authority: %w", err)
	}
	if n == 0 && storedHash != hash {
		return model.Authority{}, &ConflictError{Entity: "authority", ID: a.ID, Expected: 0, Actual: stored.Version}
	}
	return stored, nil
}

// GetAuthority returns an authority, archived or not.
func (s *Store) GetAuthority(ctx context.Context, id uuid.UUID) (model.Authority, error) {
	a, _, err := s.getAuthority(ctx, s.db, id)
	return a, err
}

func (s *Store) getAuthority(ctx context.Context, q dbtx, id uuid.UUID) (model.Authority, string, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+authorityColumns+`
		FROM authorities a
		WHERE a.id = ?
	`, id.String())
	a, hash, err := scanAuthority(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Authority{}, "", fmt.Errorf("authority %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Authority{}, "", fmt.Errorf("get authority: %w", err)
	}
	return a, hash, nil
}

// UpdateAuthority replaces the content of an active authority.
//
// a.Version is the version the caller read. A stale version fails with a
// ConflictError unless forced is set. Unchanged content is a no-op: the
// stored record is returned without a version bump.
func (s *Store) UpdateAuthority(ctx context.Context, a model.Authority, forced bool) (model.Authority, error) {
	hash, err := model.AuthorityHash(a)
	if err != nil {
		return model.Authority{}, fmt.Errorf("update authority: %w", err)
	}
	fields, err := marshalFields(a.Fields)
	if err != nil {
		return model.Authority{}, fmt.Errorf("update authority: %w", err)
	}

	var out model.Authority
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		current, currentHash, err := s.getAuthority(ctx, tx, a.ID)
		if err != nil {
			return err
		}
		if current.Deleted {
			return fmt.Errorf("authority %s is archived: %w", a.ID, ErrNotFound)
		}
		if !forced && current.Version != a.Version {
			return &ConflictError{Entity: "authority", ID: a.ID, Expected: a.Version, Actual: current.Version}
		}
		if currentHash == hash && current.Shared == a.Shared {
			out = current
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE authorities
			SET natural_id = ?, source_file_id = ?, fields = ?, content_hash = ?, shared = ?,
			    version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?
		`,
			a.NaturalID,
			nullUUID(a.SourceFileID),
			fields,
			hash,
			boolInt(a.Shared),
			formatTime(s.now()),
			a.ID.String(),
			current.Version,
		)
		if err != nil {
			return fmt.Errorf("update authority: %w", err)
		}
		out, _, err = s.getAuthority(ctx, tx, a.ID)
		return err
	})
	if err != nil {
		return model.Authority{}, err
	}
	return out, nil
}

// ArchiveAuthority soft-deletes an authority into the archive. Archiving an
// archived authority returns it unchanged.
func (s *Store) ArchiveAuthority(ctx context.Context, id uuid.UUID) (model.Authority, error) {
	var out model.Authority
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, _, err := s.getAuthority(ctx, tx, id)
		if err != nil {
			return err
		}
		if current.Deleted {
			out = current
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE authorities SET deleted = 1, version = version + 1, updated_at = ?
			WHERE id = ?
		`, formatTime(s.now()), id.String()); err != nil {
			return fmt.Errorf("archive authority: %w", err)
		}
		out, _, err = s.getAuthority(ctx, tx, id)
		return err
	})
	if err != nil {
		return model.Authority{}, err
	}
	return out, nil
}

// DeleteAuthority removes an authority row. Deleting a missing authority is
// not an error.
func (s *Store) DeleteAuthority(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM authorities WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete authority: %w", err)
	}
	return nil
}

// ListArchived returns archived authorities last modified before cutoff,
// oldest first.
func (s *Store) ListArchived(ctx context.Context, cutoff time.Time) ([]model.Authority, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+authorityColumns+`
		FROM authorities a
		WHERE a.deleted = 1 AND a.updated_at < ?
		ORDER BY a.updated_at ASC, a.id ASC
	`, formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("query archive: %w", err)
	}
	defer rows.Close()

	out := []model.Authority{}
	for rows.Next() {
		a, _, err := scanAuthority(rows)
		if err != nil {
			return nil, fmt.Errorf("scan authority: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive: %w", err)
	}
	return out, nil
}

// FetchByIDs returns the content of active authorities among ids, ordered by
// id. Missing or archived ids are absent from the result.
func (s *Store) FetchByIDs(ctx context.Context, ids []uuid.UUID) ([]model.AuthorityContent, error) {
	if len(ids) == 0 {
		return []model.AuthorityContent{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	return s.queryContent(ctx, `a.id IN (`+placeholders(len(ids))+`)`, args)
}

// FindByNaturalIDs returns the content of active authorities with any of the
// given natural ids, ordered by id.
func (s *Store) FindByNaturalIDs(ctx context.Context, naturalIDs []string) ([]model.AuthorityContent, error) {
	if len(naturalIDs) == 0 {
		return []model.AuthorityContent{}, nil
	}
	args := make([]any, len(naturalIDs))
	for i, nid := range naturalIDs {
		args[i] = nid
	}
	return s.queryContent(ctx, `a.natural_id IN (`+placeholders(len(naturalIDs))+`)`, args)
}

func (s *Store) queryContent(ctx context.Context, where string, args []any) ([]model.AuthorityContent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.natural_id, a.fields, COALESCE(sf.base_url, '')
		FROM authorities a
		LEFT JOIN authority_source_files sf ON sf.id = a.source_file_id
		WHERE a.deleted = 0 AND `+where+`
		ORDER BY a.id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query authority content: %w", err)
	}
	defer rows.Close()

	out := []model.AuthorityContent{}
	for rows.Next() {
		var (
			c      model.AuthorityContent
			fields string
		)
		if err := rows.Scan(&c.AuthorityID, &c.NaturalID, &fields, &c.SourceFileBaseURL); err != nil {
			return nil, fmt.Errorf("scan authority content: %w", err)
		}
		if c.Fields, err = unmarshalFields(fields); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate authority content: %w", err)
	}
	return out, nil
}

func scanAuthority(row scanner) (model.Authority, string, error) {
	var (
		a               model.Authority
		sourceFile      uuid.NullUUID
		fields, hash    string
		shared, deleted int
		updatedAt       string
	)
	err := row.Scan(&a.ID, &a.NaturalID, &sourceFile, &fields, &hash, &shared, &deleted, &a.Version, &updatedAt)
	if err != nil {
		return model.Authority{}, "", err
	}
	if sourceFile.Valid {
		id := sourceFile.UUID
		a.SourceFileID = &id
	}
	a.Shared = shared == 1
	a.Deleted = deleted == 1
	if a.Fields, err = unmarshalFields(fields); err != nil {
		return model.Authority{}, "", err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Authority{}, "", err
	}
	return a, hash, nil
}

func nullUUID(id *uuid.UUID) any {
	if id == nil {
		return nil
	}
	return id.String()
}
