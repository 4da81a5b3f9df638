// Package store provides SQLite-backed storage for one tenant.
//
// Tables:
//   - authority_source_files: source files and the base URL used for $0
//   - authorities: authority records with optimistic version and archive flag
//   - authority_data: natural id mirror maintained by link reconciliation
//   - instance_authority_links: links, identity UNIQUE(instance_id,
//     authority_id, bib_record_tag, linking_rule_id)
//   - event_outbox: encoded change events waiting for the relay
//
// # Idempotency
//
// Writes that can be replayed (link upserts, natural id upserts, authority
// updates with unchanged content, outbox deliveries) leave rows untouched when
// nothing differs. Version counters and updated_at only move on real change.
//
// # Deterministic Query Results
//
// Every list query has an ORDER BY; links are ordered by their surrogate id,
// which also drives keyset pagination.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
