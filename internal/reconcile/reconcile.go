package reconcile

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/roach88/authsync/internal/model"
	"github.com/roach88/authsync/internal/rules"
)

// RuleSource lists the linking rules of the current tenant.
type RuleSource interface {
	ListRules(ctx context.Context) ([]rules.LinkingRule, error)
}

// ContentProvider fetches the content of active authorities. Missing ids are
// absent from the result.
type ContentProvider interface {
	FetchByIDs(ctx context.Context, ids []uuid.UUID) ([]model.AuthorityContent, error)
}

// LinkReader reads the stored links of an instance.
type LinkReader interface {
	FindByInstanceID(ctx context.Context, instanceID uuid.UUID) ([]model.Link, error)
}

// InvalidLink is an incoming link that cannot be kept. ID is the id of the
// stored link with the same identity, or zero.
type InvalidLink struct {
	Link  model.Link
	Cause string
}

// Result is the outcome of one reconciliation.
type Result struct {
	InstanceID uuid.UUID

	// ToPersist holds the valid incoming links with stored ids copied over
	// and natural ids refreshed. Ordered by bib tag, then rule, then authority.
	ToPersist []model.Link

	// ToDelete holds stored links that are not in the valid incoming set.
	ToDelete []model.Link

	// Invalid holds the incoming links dropped during validation.
	Invalid []InvalidLink

	// NaturalIDs maps every authority with at least one valid link to its
	// current natural id.
	NaturalIDs map[uuid.UUID]string

	authorities map[uuid.UUID]model.AuthorityContent
	rules       map[int]rules.LinkingRule
}

// DeleteIDs returns the ids of ToDelete.
func (r Result) DeleteIDs() []int64 {
	ids := make([]int64, len(r.ToDelete))
	for i, l := range r.ToDelete {
		ids[i] = l.ID
	}
	return ids
}

func sortLinks(links []model.Link) {
	sort.SliceStable(links, func(i, j int) bool {
		a, b := links[i], links[j]
		if a.BibRecordTag != b.BibRecordTag {
			return a.BibRecordTag < b.BibRecordTag
		}
		if a.LinkingRuleID != b.LinkingRuleID {
			return a.LinkingRuleID < b.LinkingRuleID
		}
		return a.AuthorityID.String() < b.AuthorityID.String()
	})
}
