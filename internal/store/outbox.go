package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/authsync/internal/event"
)

// OutboxEntry is an undelivered outbox row.
type OutboxEntry struct {
	Seq       int64
	Record    event.OutboxRecord
	Attempts  int
	LastError string
	CreatedAt time.Time
}

// AppendOutbox appends records in order, atomically.
func (s *Store) AppendOutbox(ctx context.Context, recs []event.OutboxRecord) error {
	if len(recs) == 0 {
		return nil
	}
	now := formatTime(s.now())
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range recs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO event_outbox (tenant, job_id, type, payload, created_at)
				VALUES (?, ?, ?, ?, ?)
			`, r.Tenant, r.JobID, string(r.Type), string(r.Payload), now); err != nil {
				return fmt.Errorf("append outbox: %w", err)
			}
		}
		return nil
	})
}

// PendingOutbox returns up to limit undelivered rows in append order.
func (s *Store) PendingOutbox(ctx context.Context, limit int) ([]OutboxEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, tenant, job_id, type, payload, attempts, last_error, created_at
		FROM event_outbox
		WHERE sent_at IS NULL
		ORDER BY seq ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	out := []OutboxEntry{}
	for rows.Next() {
		var (
			e                OutboxEntry
			typ, payload, at string
		)
		if err := rows.Scan(&e.Seq, &e.Record.Tenant, &e.Record.JobID, &typ, &payload, &e.Attempts, &e.LastError, &at); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		e.Record.Type = event.Type(typ)
		e.Record.Payload = []byte(payload)
		if e.CreatedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return out, nil
}

// MarkOutboxSent marks a row delivered. Marking a delivered row again is a
// no-op.
func (s *Store) MarkOutboxSent(ctx context.Context, seq int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE event_outbox SET sent_at = ? WHERE seq = ? AND sent_at IS NULL`,
		formatTime(s.now()), seq); err != nil {
		return fmt.Errorf("mark outbox sent: %w", err)
	}
	return nil
}

// MarkOutboxFailed records a failed delivery attempt.
func (s *Store) MarkOutboxFailed(ctx context.Context, seq int64, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE event_outbox SET attempts = attempts + 1, last_error = ? WHERE seq = ?`,
		msg, seq); err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

// CountPendingOutbox returns the number of undelivered rows.
func (s *Store) CountPendingOutbox(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM event_outbox WHERE sent_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbox: %w", err)
	}
	return n, nil
}
