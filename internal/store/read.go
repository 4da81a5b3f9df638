package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/authsync/internal/model"
)

const linkColumns = `id, instance_id, authority_id, authority_natural_id, bib_record_tag,
	bib_record_subfields, linking_rule_id, status, error_cause, created_at, updated_at`

// FindByInstanceID returns the links of an instance ordered by id.
//
// Returns an empty slice (not nil) if the instance has no links.
func (s *Store) FindByInstanceID(ctx context.Context, instanceID uuid.UUID) ([]model.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+linkColumns+`
		FROM instance_authority_links
		WHERE instance_id = ?
		ORDER BY id ASC
	`, instanceID.String())
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	return collectLinks(rows)
}

// FindByAuthorityIDPaged returns up to limit links of an authority with id
// greater than afterID, ordered by id.
func (s *Store) FindByAuthorityIDPaged(ctx context.Context, authorityID uuid.UUID, afterID int64, limit int) ([]model.Link, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+linkColumns+`
		FROM instance_authority_links
		WHERE authority_id = ? AND id > ?
		ORDER BY id ASC
		LIMIT ?
	`, authorityID.String(), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query links page: %w", err)
	}
	return collectLinks(rows)
}

// CountByAuthorityIDs returns the number of links per authority. Authorities
// without links are present with a zero count.
func (s *Store) CountByAuthorityIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int, error) {
	counts := make(map[uuid.UUID]int, len(ids))
	if len(ids) == 0 {
		return counts, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
		counts[id] = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT authority_id, COUNT(*)
		FROM instance_authority_links
		WHERE authority_id IN (`+placeholders(len(ids))+`)
		GROUP BY authority_id
		ORDER BY authority_id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("count links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id uuid.UUID
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("scan link count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate link counts: %w", err)
	}
	return counts, nil
}

func (s *Store) findLinkByKey(ctx context.Context, q dbtx, k model.LinkKey) (model.Link, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+linkColumns+`
		FROM instance_authority_links
		WHERE instance_id = ? AND authority_id = ? AND bib_record_tag = ? AND linking_rule_id = ?
	`, k.InstanceID.String(), k.AuthorityID.String(), k.BibRecordTag, k.LinkingRuleID)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Link{}, fmt.Errorf("link %v: %w", k, ErrNotFound)
	}
	return l, err
}

func linkIDsOfInstance(ctx context.Context, q dbtx, instanceID uuid.UUID) (map[int64]bool, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id FROM instance_authority_links WHERE instance_id = ?`, instanceID.String())
	if err != nil {
		return nil, fmt.Errorf("query link ids: %w", err)
	}
	defer rows.Close()
	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan link id: %w", err)
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(row scanner) (model.Link, error) {
	var (
		l                    model.Link
		subfields, status    string
		createdAt, updatedAt string
	)
	err := row.Scan(
		&l.ID,
		&l.InstanceID,
		&l.AuthorityID,
		&l.AuthorityNaturalID,
		&l.BibRecordTag,
		&subfields,
		&l.LinkingRuleID,
		&status,
		&l.ErrorCause,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return model.Link{}, err
	}
	l.Status = model.LinkStatus(status)
	if l.BibRecordSubfields, err = unmarshalCodes(subfields); err != nil {
		return model.Link{}, err
	}
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return model.Link{}, err
	}
	if l.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.Link{}, err
	}
	return l, nil
}

func collectLinks(rows *sql.Rows) ([]model.Link, error) {
	defer rows.Close()
	links := []model.Link{}
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}
