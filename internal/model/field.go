package model

import (
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// System subfield codes written by the linking engine.
const (
	SubfieldNaturalID   = "0"
	SubfieldAuthorityID = "9"
)

// LinkStatus is the evaluation state of a bib field link.
type LinkStatus string

const (
	LinkStatusNew    LinkStatus = "NEW"
	LinkStatusActual LinkStatus = "ACTUAL"
	LinkStatusError  LinkStatus = "ERROR"
)

// Valid reports whether s is one of the known statuses.
func (s LinkStatus) Valid() bool {
	switch s {
	case LinkStatusNew, LinkStatusActual, LinkStatusError:
		return true
	}
	return false
}

// Short error codes carried in LinkDetails.ErrorCause. The codes are stable and
// rendered by cataloging UIs.
const (
	ErrorNoSuggestions         = "101"
	ErrorMoreThanOneSuggestion = "102"
	ErrorDisabledAutoLinking   = "103"
	ErrorAuthorityNotFound     = "104"
	ErrorAuthorityFieldInvalid = "105"
)

// Subfield is a single (code, value) pair of a field.
type Subfield struct {
	Code  string `json:"code"`
	Value string `json:"value"`
}

// NewSubfield returns a subfield with an NFC-normalized value.
func NewSubfield(code, value string) Subfield {
	return Subfield{Code: code, Value: norm.NFC.String(value)}
}

// LinkDetails is attached to a bib field after it has been evaluated.
//
// INVARIANT: Status ERROR implies AuthorityID and RuleID are nil; NEW and ACTUAL
// imply both are set.
type LinkDetails struct {
	Status             LinkStatus `json:"status"`
	RuleID             *int       `json:"linkingRuleId,omitempty"`
	AuthorityID        *uuid.UUID `json:"authorityId,omitempty"`
	AuthorityNaturalID string     `json:"authorityNaturalId,omitempty"`
	ErrorCause         string     `json:"errorCause,omitempty"`
}

// LinkError returns error details with the given cause.
func LinkError(cause string) *LinkDetails {
	return &LinkDetails{Status: LinkStatusError, ErrorCause: cause}
}

// Linked returns success details for the given rule and authority.
func Linked(status LinkStatus, ruleID int, authorityID uuid.UUID, naturalID string) *LinkDetails {
	return &LinkDetails{
		Status:             status,
		RuleID:             &ruleID,
		AuthorityID:        &authorityID,
		AuthorityNaturalID: naturalID,
	}
}

// Consistent checks the status/identity invariant.
func (d LinkDetails) Consistent() bool {
	switch d.Status {
	case LinkStatusError:
		return d.AuthorityID == nil && d.RuleID == nil
	case LinkStatusNew, LinkStatusActual:
		return d.AuthorityID != nil && d.RuleID != nil
	}
	return false
}

// Field is a MARC data field.
type Field struct {
	Tag       string       `json:"tag"`
	Ind1      string       `json:"ind1,omitempty"`
	Ind2      string       `json:"ind2,omitempty"`
	Subfields []Subfield   `json:"subfields"`
	Link      *LinkDetails `json:"linkDetails,omitempty"`
}

// Has reports whether the field carries at least one subfield with code.
func (f Field) Has(code string) bool {
	for _, sf := range f.Subfields {
		if sf.Code == code {
			return true
		}
	}
	return false
}

// Values returns every value for code in field order.
func (f Field) Values(code string) []string {
	var out []string
	for _, sf := range f.Subfields {
		if sf.Code == code {
			out = append(out, sf.Value)
		}
	}
	return out
}

// First returns the first value for code.
func (f Field) First(code string) (string, bool) {
	for _, sf := range f.Subfields {
		if sf.Code == code {
			return sf.Value, true
		}
	}
	return "", false
}

// Codes returns the distinct subfield codes in first-seen order.
func (f Field) Codes() []string {
	seen := make(map[string]bool, len(f.Subfields))
	var out []string
	for _, sf := range f.Subfields {
		if !seen[sf.Code] {
			seen[sf.Code] = true
			out = append(out, sf.Code)
		}
	}
	return out
}

// Clone returns a deep copy of the field.
func (f Field) Clone() Field {
	c := f
	c.Subfields = append([]Subfield(nil), f.Subfields...)
	if f.Link != nil {
		d := *f.Link
		c.Link = &d
	}
	return c
}

// String renders the field as "$a value $d value", used for heading comparison.
func (f Field) String() string {
	var b strings.Builder
	for i, sf := range f.Subfields {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteByte('$')
		b.WriteString(sf.Code)
		b.WriteByte(' ')
		b.WriteString(norm.NFC.String(sf.Value))
	}
	return b.String()
}

// AuthorityIDRef returns the authority id carried in $9, if it parses.
func (f Field) AuthorityIDRef() (uuid.UUID, bool) {
	v, ok := f.First(SubfieldAuthorityID)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimSpace(v))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// NaturalIDRef returns the natural id carried in $0. A $0 holding a URI yields
// the last path segment.
func (f Field) NaturalIDRef() (string, bool) {
	v, ok := f.First(SubfieldNaturalID)
	if !ok {
		return "", false
	}
	return TrimNaturalID(v), true
}

// TrimNaturalID strips a base URL prefix from a $0 value.
func TrimNaturalID(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimRight(v, "/")
	if i := strings.LastIndex(v, "/"); i >= 0 {
		v = v[i+1:]
	}
	return strings.ReplaceAll(v, " ", "")
}
