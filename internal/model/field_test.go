package model

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSubfieldNormalizesNFC(t *testing.T) {
	decomposed := "Cafe\u0301"
	sf := NewSubfield("a", decomposed)
	assert.Equal(t, "Caf\u00e9", sf.Value)
	assert.Equal(t, "a", sf.Code)
}

func TestFieldAccessors(t *testing.T) {
	f := Field{Tag: "100", Subfields: []Subfield{
		{Code: "a", Value: "Tesla, Nikola"},
		{Code: "d", Value: "1856-1943"},
		{Code: "a", Value: "second"},
	}}

	assert.True(t, f.Has("a"))
	assert.False(t, f.Has("t"))
	assert.Equal(t, []string{"Tesla, Nikola", "second"}, f.Values("a"))
	v, ok := f.First("d")
	assert.True(t, ok)
	assert.Equal(t, "1856-1943", v)
	assert.Equal(t, []string{"a", "d"}, f.Codes())
	assert.Equal(t, "$a Tesla, Nikola $d 1856-1943 $a second", f.String())
}

func TestFieldCloneIsDeep(t *testing.T) {
	id := uuid.New()
	f := Field{Tag: "100", Subfields: []Subfield{{Code: "a", Value: "x"}}, Link: Linked(LinkStatusNew, 1, id, "n1")}
	c := f.Clone()
	c.Subfields[0].Value = "y"
	c.Link.Status = LinkStatusActual

	assert.Equal(t, "x", f.Subfields[0].Value)
	assert.Equal(t, LinkStatusNew, f.Link.Status)
}

func TestAuthorityIDRef(t *testing.T) {
	id := uuid.New()
	f := Field{Tag: "100", Subfields: []Subfield{{Code: "9", Value: " " + id.String() + " "}}}
	got, ok := f.AuthorityIDRef()
	require.True(t, ok)
	assert.Equal(t, id, got)

	bad := Field{Tag: "100", Subfields: []Subfield{{Code: "9", Value: "not-a-uuid"}}}
	_, ok = bad.AuthorityIDRef()
	assert.False(t, ok)
}

func TestNaturalIDRef(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  string
	}{
		{"bare", "n79021164", "n79021164"},
		{"uri", "http://id.loc.gov/authorities/names/n79021164", "n79021164"},
		{"trailing slash", "http://id.loc.gov/authorities/names/n79021164/", "n79021164"},
		{"inner spaces", "n 79021164", "n79021164"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Field{Tag: "100", Subfields: []Subfield{{Code: "0", Value: tt.value}}}
			got, ok := f.NaturalIDRef()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLinkDetailsConsistent(t *testing.T) {
	assert.True(t, LinkError(ErrorNoSuggestions).Consistent())
	assert.True(t, Linked(LinkStatusNew, 1, uuid.New(), "n1").Consistent())

	broken := LinkDetails{Status: LinkStatusError, RuleID: new(int)}
	assert.False(t, broken.Consistent())
	assert.False(t, LinkDetails{Status: LinkStatusActual}.Consistent())
	assert.False(t, LinkDetails{Status: "BOGUS"}.Consistent())
}

func TestZeroValue(t *testing.T) {
	assert.Equal(t, "n123", ZeroValue("", "n123"))
	assert.Equal(t, "http://id.loc.gov/authorities/names/n123", ZeroValue("http://id.loc.gov/authorities/names", "n123"))
	assert.Equal(t, "http://id.loc.gov/authorities/names/n123", ZeroValue("http://id.loc.gov/authorities/names/", "n123"))
}

func TestLinkSameLink(t *testing.T) {
	base := Link{
		InstanceID:         uuid.New(),
		AuthorityID:        uuid.New(),
		BibRecordTag:       "100",
		LinkingRuleID:      1,
		BibRecordSubfields: []string{"a"},
		Status:             LinkStatusActual,
	}

	other := base.Clone()
	other.ID = 42
	other.BibRecordSubfields = []string{"a", "d"}
	other.Status = LinkStatusError
	assert.True(t, base.SameLink(other), "subfields and status are not part of identity")

	other.LinkingRuleID = 2
	assert.False(t, base.SameLink(other))
}
