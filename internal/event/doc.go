// Package event defines the ChangeEvent wire format and its publishers.
//
// A ChangeEvent tells downstream consumers that the bib fields controlled by
// one authority must be updated (new subfield values) or unlinked (authority
// deleted). Events for one logical change share a job id; each event carries at
// most one page of links grouped by bib tag.
//
// The JSON shape of ChangeEvent is a compatibility surface: field names and
// nesting must not change. The acting tenant travels beside the payload
// (message header, outbox column), never inside it.
//
// Publishers:
//   - Memory records events in order (tests, dry runs)
//   - JetStream publishes to a NATS JetStream stream
//   - Outbox appends events to the tenant store for a relay to forward
//   - Metered counts events before delegating
package event
