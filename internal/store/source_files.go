package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/authsync/internal/model"
)

const sourceFileColumns = `id, name, base_url, codes, shared, content_hash, version, updated_at`

// CreateSourceFile inserts a source file at version 0. Re-creating an
// identical source file returns the stored one.
func (s *Store) CreateSourceFile(ctx context.Context, sf model.SourceFile) (model.SourceFile, error) {
	hash, err := model.SourceFileHash(sf)
	if err != nil {
		return model.SourceFile{}, fmt.Errorf("create source file: %w", err)
	}
	codes, err := marshalCodes(sf.Codes)
	if err != nil {
		return model.SourceFile{}, fmt.Errorf("create source file: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO authority_source_files
		(id, name, base_url, codes, shared, content_hash, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(id) DO NOTHING
	`, sf.ID.String(), sf.Name, sf.BaseURL, codes, boolInt(sf.Shared), hash, formatTime(s.now()))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return model.SourceFile{}, fmt.Errorf("create source file: name %q already in use: %w", sf.Name, ErrInUse)
		}
		return model.SourceFile{}, fmt.Errorf("create source file: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.SourceFile{}, fmt.Errorf("create source file: %w", err)
	}

	stored, storedHash, err := s.getSourceFile(ctx, s.db, sf.ID)
	if err != nil {
		return model.SourceFile{}, fmt.Errorf("create source file: %w", err)
	}
	if n == 0 && storedHash != hash {
		return model.SourceFile{}, &ConflictError{Entity: "source file", ID: sf.ID, Expected: 0, Actual: stored.Version}
	}
	return stored, nil
}

// GetSourceFile returns a source file.
func (s *Store) GetSourceFile(ctx context.Context, id uuid.UUID) (model.SourceFile, error) {
	sf, _, err := s.getSourceFile(ctx, s.db, id)
	return sf, err
}

func (s *Store) getSourceFile(ctx context.Context, q dbtx, id uuid.UUID) (model.SourceFile, string, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sourceFileColumns+` FROM authority_source_files WHERE id = ?`, id.String())
	sf, hash, err := scanSourceFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SourceFile{}, "", fmt.Errorf("source file %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.SourceFile{}, "", fmt.Errorf("get source file: %w", err)
	}
	return sf, hash, nil
}

// ListSourceFiles returns every source file ordered by name.
func (s *Store) ListSourceFiles(ctx context.Context) ([]model.SourceFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sourceFileColumns+`
		FROM authority_source_files
		ORDER BY name ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query source files: %w", err)
	}
	defer rows.Close()

	out := []model.SourceFile{}
	for rows.Next() {
		sf, _, err := scanSourceFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source file: %w", err)
		}
		out = append(out, sf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source files: %w", err)
	}
	return out, nil
}

// UpdateSourceFile replaces a source file under optimistic concurrency; see
// UpdateAuthority for the version and no-op rules.
func (s *Store) UpdateSourceFile(ctx context.Context, sf model.SourceFile, forced bool) (model.SourceFile, error) {
	hash, err := model.SourceFileHash(sf)
	if err != nil {
		return model.SourceFile{}, fmt.Errorf("update source file: %w", err)
	}
	codes, err := marshalCodes(sf.Codes)
	if err != nil {
		return model.SourceFile{}, fmt.Errorf("update source file: %w", err)
	}

	var out model.SourceFile
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		current, currentHash, err := s.getSourceFile(ctx, tx, sf.ID)
		if err != nil {
			return err
		}
		if !forced && current.Version != sf.Version {
			return &ConflictError{Entity: "source file", ID: sf.ID, Expected: sf.Version, Actual: current.Version}
		}
		if currentHash == hash && current.Shared == sf.Shared {
			out = current
			return nil
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE authority_source_files
			SET name = ?, base_url = ?, codes = ?, shared = ?, content_hash = ?,
			    version = version + 1, updated_at = ?
			WHERE id = ?
		`, sf.Name, sf.BaseURL, codes, boolInt(sf.Shared), hash, formatTime(s.now()), sf.ID.String()); err != nil {
			return fmt.Errorf("update source file: %w", err)
		}
		out, _, err = s.getSourceFile(ctx, tx, sf.ID)
		return err
	})
	if err != nil {
		return model.SourceFile{}, err
	}
	return out, nil
}

// DeleteSourceFile removes a source file. It fails while authorities still
// reference it.
func (s *Store) DeleteSourceFile(ctx context.Context, id uuid.UUID) error {
	var refs int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM authorities WHERE source_file_id = ?`, id.String()).Scan(&refs); err != nil {
		return fmt.Errorf("delete source file: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("delete source file %s: referenced by %d authorities: %w", id, refs, ErrInUse)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM authority_source_files WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete source file: %w", err)
	}
	return nil
}

func scanSourceFile(row scanner) (model.SourceFile, string, error) {
	var (
		sf                     model.SourceFile
		codes, hash, updatedAt string
		shared                 int
	)
	if err := row.Scan(&sf.ID, &sf.Name, &sf.BaseURL, &codes, &shared, &hash, &sf.Version, &updatedAt); err != nil {
		return model.SourceFile{}, "", err
	}
	var err error
	if sf.Codes, err = unmarshalCodes(codes); err != nil {
		return model.SourceFile{}, "", err
	}
	if sf.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.SourceFile{}, "", err
	}
	sf.Shared = shared == 1
	return sf, hash, nil
}
