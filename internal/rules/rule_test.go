package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/authsync/internal/model"
)

func uniformTitleRule() LinkingRule {
	return LinkingRule{
		ID:                            5,
		AuthorityField:                "100",
		BibField:                      "240",
		AuthoritySubfields:            []string{"f", "k", "t"},
		SubfieldModifications:         []SubfieldModification{{Source: "t", Target: "a"}},
		SubfieldsExistenceValidations: map[string]bool{"t": true},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, uniformTitleRule().Validate())

	tests := []struct {
		name   string
		mutate func(*LinkingRule)
		want   string
	}{
		{"zero id", func(r *LinkingRule) { r.ID = 0 }, "positive"},
		{"short authority tag", func(r *LinkingRule) { r.AuthorityField = "10" }, "authorityField"},
		{"empty bib tag", func(r *LinkingRule) { r.BibField = "" }, "bibField"},
		{"double rename", func(r *LinkingRule) {
			r.SubfieldModifications = append(r.SubfieldModifications, SubfieldModification{Source: "t", Target: "b"})
		}, "more than one modification"},
		{"system subfield", func(r *LinkingRule) { r.AuthoritySubfields = append(r.AuthoritySubfields, "9") }, "system subfield"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := uniformTitleRule().Clone()
			tt.mutate(&r)
			err := r.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAllDuplicateIDs(t *testing.T) {
	err := ValidateAll([]LinkingRule{uniformTitleRule(), uniformTitleRule()})
	assert.ErrorContains(t, err, "duplicate rule id 5")
}

func TestRenameAndControls(t *testing.T) {
	r := uniformTitleRule()
	assert.Equal(t, "a", r.Rename("t"))
	assert.Equal(t, "k", r.Rename("k"))
	assert.True(t, r.Controls("t"))
	assert.False(t, r.Controls("a"))
}

func TestAccepts(t *testing.T) {
	r := uniformTitleRule()
	withTitle := model.Field{Tag: "100", Subfields: []model.Subfield{{Code: "a", Value: "Beethoven"}, {Code: "t", Value: "Symphonies"}}}
	withoutTitle := model.Field{Tag: "100", Subfields: []model.Subfield{{Code: "a", Value: "Beethoven"}}}

	assert.True(t, r.Accepts(withTitle))
	assert.False(t, r.Accepts(withoutTitle))

	r.SubfieldsExistenceValidations = map[string]bool{"t": false}
	assert.False(t, r.Accepts(withTitle))
	assert.True(t, r.Accepts(withoutTitle))
}

func TestCloneIsDeep(t *testing.T) {
	r := uniformTitleRule()
	c := r.Clone()
	c.AuthoritySubfields[0] = "z"
	c.SubfieldModifications[0].Target = "z"
	c.SubfieldsExistenceValidations["t"] = false

	assert.Equal(t, "f", r.AuthoritySubfields[0])
	assert.Equal(t, "a", r.SubfieldModifications[0].Target)
	assert.True(t, r.SubfieldsExistenceValidations["t"])
}

func TestGroupByBibField(t *testing.T) {
	groups := GroupByBibField(MustDefault())
	require.Len(t, groups["240"], 4)
	assert.Equal(t, []int{5, 6, 7, 8}, []int{groups["240"][0].ID, groups["240"][1].ID, groups["240"][2].ID, groups["240"][3].ID})
	assert.Len(t, groups["650"], 1)
}
