// Package reconcile diffs the links submitted for an instance against the
// links already stored for it.
//
// Reconcile is read-only. It resolves rules and authority content, splits the
// incoming links into valid and invalid partitions, and reports which stored
// links to delete and which links to upsert together with the natural ids to
// record. The caller persists the result, then asks Events for the change
// events of the persisted links so every event carries stored link ids.
//
// Reconciling the same input twice yields the same result; applying it twice
// leaves the store unchanged.
package reconcile
