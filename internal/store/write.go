package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/authsync/internal/model"
)

// deleteBatchSize bounds the number of ids bound in one DELETE statement.
const deleteBatchSize = 500

// SaveAll upserts links by identity and returns them with ids and timestamps
// as stored. A link whose mutable attributes are unchanged is left untouched,
// so saving the same set twice does not move updated_at.
func (s *Store) SaveAll(ctx context.Context, links []model.Link) ([]model.Link, error) {
	var saved []model.Link
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		saved, err = s.saveLinks(ctx, tx, links)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *Store) saveLinks(ctx context.Context, q dbtx, links []model.Link) ([]model.Link, error) {
	now := formatTime(s.now())
	out := make([]model.Link, 0, len(links))
	for _, l := range links {
		subfields, err := marshalCodes(l.BibRecordSubfields)
		if err != nil {
			return nil, fmt.Errorf("save link: %w", err)
		}
		if !l.Status.Valid() {
			return nil, fmt.Errorf("save link: invalid status %q", l.Status)
		}

		_, err = q.ExecContext(ctx, `
			INSERT INTO instance_authority_links
			(instance_id, authority_id, authority_natural_id, bib_record_tag, bib_record_subfields,
			 linking_rule_id, status, error_cause, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(instance_id, authority_id, bib_record_tag, linking_rule_id) DO UPDATE SET
				authority_natural_id = excluded.authority_natural_id,
				bib_record_subfields = excluded.bib_record_subfields,
				status = excluded.status,
				error_cause = excluded.error_cause,
				updated_at = excluded.updated_at
			WHERE authority_natural_id <> excluded.authority_natural_id
			   OR bib_record_subfields <> excluded.bib_record_subfields
			   OR status <> excluded.status
			   OR error_cause <> excluded.error_cause
		`,
			l.InstanceID.String(),
			l.AuthorityID.String(),
			l.AuthorityNaturalID,
			l.BibRecordTag,
			subfields,
			l.LinkingRuleID,
			string(l.Status),
			l.ErrorCause,
			now,
			now,
		)
		if err != nil {
			return nil, fmt.Errorf("save link: %w", err)
		}

		stored, err := s.findLinkByKey(ctx, q, l.Key())
		if err != nil {
			return nil, fmt.Errorf("save link: %w", err)
		}
		out = append(out, stored)
	}
	return out, nil
}

// DeleteAllBatch deletes links by id and returns the number removed.
func (s *Store) DeleteAllBatch(ctx context.Context, ids []int64) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = deleteLinks(ctx, tx, ids)
		return err
	})
	return n, err
}

func deleteLinks(ctx context.Context, q dbtx, ids []int64) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(ids))
		batch := ids[start:end]
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		res, err := q.ExecContext(ctx,
			`DELETE FROM instance_authority_links WHERE id IN (`+placeholders(len(batch))+`)`, args...)
		if err != nil {
			return total, fmt.Errorf("delete links: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("delete links: %w", err)
		}
		total += n
	}
	return total, nil
}

// ReplaceInstanceLinks deletes the given links and upserts the others in one
// transaction. Every id in deleteIDs must belong to instanceID.
//
// A non-nil then runs last, before commit, with the saved links and a
// context bound to the transaction. Store writes made with that context,
// such as UpsertNaturalIDs and AppendOutbox, commit or roll back with the
// links, and an error from then rolls everything back.
func (s *Store) ReplaceInstanceLinks(ctx context.Context, instanceID uuid.UUID, deleteIDs []int64, persist []model.Link, then func(ctx context.Context, saved []model.Link) error) ([]model.Link, error) {
	for _, l := range persist {
		if l.InstanceID != instanceID {
			return nil, fmt.Errorf("replace links: link for instance %s in set of %s", l.InstanceID, instanceID)
		}
	}

	var saved []model.Link
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		txCtx := joinTx(ctx, tx)
		if len(deleteIDs) > 0 {
			owned, err := linkIDsOfInstance(txCtx, tx, instanceID)
			if err != nil {
				return err
			}
			for _, id := range deleteIDs {
				if !owned[id] {
					return fmt.Errorf("replace links: link %d does not belong to instance %s", id, instanceID)
				}
			}
			if _, err := s.DeleteAllBatch(txCtx, deleteIDs); err != nil {
				return err
			}
		}
		var err error
		if saved, err = s.SaveAll(txCtx, persist); err != nil {
			return err
		}
		if then != nil {
			return then(txCtx, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// DeleteByAuthorityID removes every link to an authority.
func (s *Store) DeleteByAuthorityID(ctx context.Context, authorityID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM instance_authority_links WHERE authority_id = ?`, authorityID.String())
	if err != nil {
		return 0, fmt.Errorf("delete links of authority: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete links of authority: %w", err)
	}
	return n, nil
}

// UpdateNaturalID rewrites the natural id stored on an authority's links.
// Links that already carry naturalID are not touched.
func (s *Store) UpdateNaturalID(ctx context.Context, authorityID uuid.UUID, naturalID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE instance_authority_links
		SET authority_natural_id = ?, updated_at = ?
		WHERE authority_id = ? AND authority_natural_id <> ?
	`, naturalID, formatTime(s.now()), authorityID.String(), naturalID)
	if err != nil {
		return 0, fmt.Errorf("update link natural id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update link natural id: %w", err)
	}
	return n, nil
}
