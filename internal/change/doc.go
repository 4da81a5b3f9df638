// Package change turns authority mutations into change events.
//
// Classify compares two versions of an authority over a fixed set of tracked
// attributes: the natural id and the heading. A supported change is a natural
// id change alone, or a single heading attribute change with or without a
// natural id change. Anything else is unsupported and is not propagated.
//
// Handler runs the pipeline for one tenant: classify, build the subfield
// changes, refresh stored natural ids, then page the authority's links into
// events and publish them.
package change
