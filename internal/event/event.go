package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type is the kind of change an event carries.
type Type string

const (
	TypeUpdate Type = "UPDATE"
	TypeDelete Type = "DELETE"
)

// LinkRef identifies one stored link of an instance.
type LinkRef struct {
	InstanceID uuid.UUID `json:"instanceId"`
	LinkID     int64     `json:"linkId"`
}

// UpdateTarget groups the links of one bib tag.
type UpdateTarget struct {
	BibFieldTag string    `json:"bibFieldTag"`
	Links       []LinkRef `json:"links"`
}

// SubfieldChange is a new value for one controlled subfield. An empty value
// means the subfield is removed.
type SubfieldChange struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

// ChangeEvent is one page of an authority change.
type ChangeEvent struct {
	JobID           uuid.UUID        `json:"jobId"`
	AuthorityID     uuid.UUID        `json:"authorityId"`
	Type            Type             `json:"type"`
	UpdateTargets   []UpdateTarget   `json:"updateTargets"`
	SubfieldChanges []SubfieldChange `json:"subfieldChanges"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Validate checks the structural invariants of an event.
func (e ChangeEvent) Validate() error {
	switch e.Type {
	case TypeUpdate:
	case TypeDelete:
		if len(e.SubfieldChanges) != 0 {
			return fmt.Errorf("DELETE event %s carries subfield changes", e.JobID)
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.JobID == uuid.Nil || e.AuthorityID == uuid.Nil {
		return fmt.Errorf("event needs job and authority ids")
	}
	return nil
}

// LinkCount returns the number of links the event targets.
func (e ChangeEvent) LinkCount() int {
	n := 0
	for _, t := range e.UpdateTargets {
		n += len(t.Links)
	}
	return n
}

// MarshalJSON renders nil slices as empty arrays.
func (e ChangeEvent) MarshalJSON() ([]byte, error) {
	type wire ChangeEvent
	w := wire(e)
	w.UpdateTargets = make([]UpdateTarget, len(e.UpdateTargets))
	for i, t := range e.UpdateTargets {
		if t.Links == nil {
			t.Links = []LinkRef{}
		}
		w.UpdateTargets[i] = t
	}
	if w.SubfieldChanges == nil {
		w.SubfieldChanges = []SubfieldChange{}
	}
	w.Timestamp = w.Timestamp.UTC()
	return json.Marshal(w)
}
