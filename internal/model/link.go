package model

import (
	"time"

	"github.com/google/uuid"
)

// Link is a persisted instance-to-authority link.
//
// ID is zero for a link that has not been stored yet.
type Link struct {
	ID                 int64      `json:"id,omitempty"`
	InstanceID         uuid.UUID  `json:"instanceId"`
	AuthorityID        uuid.UUID  `json:"authorityId"`
	AuthorityNaturalID string     `json:"authorityNaturalId"`
	BibRecordTag       string     `json:"bibRecordTag"`
	BibRecordSubfields []string   `json:"bibRecordSubfields"`
	LinkingRuleID      int        `json:"linkingRuleId"`
	Status             LinkStatus `json:"status"`
	ErrorCause         string     `json:"errorCause,omitempty"`
	CreatedAt          time.Time  `json:"createdAt,omitempty"`
	UpdatedAt          time.Time  `json:"updatedAt,omitempty"`
}

// LinkKey is the identity of a link. Subfields and status are mutable
// attributes of that identity, not part of it.
type LinkKey struct {
	InstanceID    uuid.UUID
	AuthorityID   uuid.UUID
	BibRecordTag  string
	LinkingRuleID int
}

// Key returns the link's identity.
func (l Link) Key() LinkKey {
	return LinkKey{
		InstanceID:    l.InstanceID,
		AuthorityID:   l.AuthorityID,
		BibRecordTag:  l.BibRecordTag,
		LinkingRuleID: l.LinkingRuleID,
	}
}

// SameLink reports whether l and o identify the same link.
func (l Link) SameLink(o Link) bool {
	return l.Key() == o.Key()
}

// Clone returns a copy of the link with its own subfield slice.
func (l Link) Clone() Link {
	c := l
	c.BibRecordSubfields = append([]string(nil), l.BibRecordSubfields...)
	return c
}
