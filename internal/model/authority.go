package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SourceFile is an authority source file. Its base URL is used to build $0.
type SourceFile struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	BaseURL   string    `json:"baseUrl,omitempty"`
	Codes     []string  `json:"codes,omitempty"`
	Shared    bool      `json:"shared"`
	Version   int       `json:"_version"`
	UpdatedAt time.Time `json:"updatedDate,omitempty"`
}

// Authority is a stored authority record.
//
// Version is the optimistic-concurrency counter. Shared marks a consortium
// shadow copy replicated from another tenant.
type Authority struct {
	ID           uuid.UUID  `json:"id"`
	NaturalID    string     `json:"naturalId"`
	SourceFileID *uuid.UUID `json:"sourceFileId,omitempty"`
	Fields       []Field    `json:"fields"`
	Shared       bool       `json:"shared"`
	Deleted      bool       `json:"deleted"`
	Version      int        `json:"_version"`
	UpdatedAt    time.Time  `json:"updatedDate,omitempty"`
}

// FieldsByTag returns the authority's fields with the given tag.
func (a Authority) FieldsByTag(tag string) []Field {
	return fieldsByTag(a.Fields, tag)
}

// Clone returns a deep copy of the authority.
func (a Authority) Clone() Authority {
	c := a
	if a.SourceFileID != nil {
		id := *a.SourceFileID
		c.SourceFileID = &id
	}
	c.Fields = make([]Field, len(a.Fields))
	for i, f := range a.Fields {
		c.Fields[i] = f.Clone()
	}
	return c
}

// AuthorityContent is the read model used by matching and reconciliation.
type AuthorityContent struct {
	AuthorityID       uuid.UUID `json:"authorityId"`
	NaturalID         string    `json:"naturalId"`
	SourceFileBaseURL string    `json:"sourceFileBaseUrl,omitempty"`
	Fields            []Field   `json:"fields"`
}

// FieldsByTag returns the content's fields with the given tag.
func (c AuthorityContent) FieldsByTag(tag string) []Field {
	return fieldsByTag(c.Fields, tag)
}

// SubfieldZero returns the $0 value for this authority.
func (c AuthorityContent) SubfieldZero() string {
	return ZeroValue(c.SourceFileBaseURL, c.NaturalID)
}

// ZeroValue builds a $0 value: baseURL + "/" + naturalID, or the bare natural
// id when there is no base URL. Exactly one slash separates the two parts.
func ZeroValue(baseURL, naturalID string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return naturalID
	}
	return strings.TrimRight(baseURL, "/") + "/" + naturalID
}

func fieldsByTag(fields []Field, tag string) []Field {
	var out []Field
	for _, f := range fields {
		if f.Tag == tag {
			out = append(out, f)
		}
	}
	return out
}
