package match

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/authsync/internal/model"
	"github.com/roach88/authsync/internal/rules"
)

var (
	teslaID = uuid.MustParse("0191e5c4-0000-7000-8000-000000000001")
	otherID = uuid.MustParse("0191e5c4-0000-7000-8000-000000000002")
)

func sf(code, value string) model.Subfield {
	return model.Subfield{Code: code, Value: value}
}

func tesla() model.AuthorityContent {
	return model.AuthorityContent{
		AuthorityID:       teslaID,
		NaturalID:         "n79021164",
		SourceFileBaseURL: "http://id.loc.gov/authorities/names/",
		Fields: []model.Field{
			{Tag: "100", Ind1: "1", Subfields: []model.Subfield{sf("a", "Tesla, Nikola,"), sf("d", "1856-1943")}},
			{Tag: "400", Ind1: "1", Subfields: []model.Subfield{sf("a", "Tesla, N.")}},
		},
	}
}

func rulesFor(t *testing.T, bibTag string) []rules.LinkingRule {
	t.Helper()
	return rules.GroupByBibField(rules.MustDefault())[bibTag]
}

func TestSuggestTesla100(t *testing.T) {
	bib := model.Field{Tag: "100", Ind1: "1", Subfields: []model.Subfield{
		sf("a", "Tesla, Nikola"), sf("e", "author."), sf("0", "http://id.loc.gov/authorities/names/n79021164"),
	}}

	got := Suggest(bib, []model.AuthorityContent{tesla()}, rulesFor(t, "100"))

	require.NotNil(t, got.Link)
	assert.Equal(t, model.LinkStatusNew, got.Link.Status)
	require.NotNil(t, got.Link.RuleID)
	assert.Equal(t, 1, *got.Link.RuleID)
	assert.Equal(t, teslaID, *got.Link.AuthorityID)
	assert.Equal(t, "n79021164", got.Link.AuthorityNaturalID)
	assert.True(t, got.Link.Consistent())
	assert.Equal(t, []model.Subfield{
		sf("a", "Tesla, Nikola,"),
		sf("d", "1856-1943"),
		sf("0", "http://id.loc.gov/authorities/names/n79021164"),
		sf("9", teslaID.String()),
		sf("e", "author."),
	}, got.Subfields)
	assert.Equal(t, "1", got.Ind1)

	assert.Nil(t, bib.Link, "input is not mutated")
}

func TestSuggestTesla100ByAuthorityID(t *testing.T) {
	bib := model.Field{Tag: "100", Ind1: "1", Subfields: []model.Subfield{sf("9", teslaID.String())}}

	got := Suggest(bib, []model.AuthorityContent{tesla()}, rulesFor(t, "100"))

	require.NotNil(t, got.Link)
	assert.Equal(t, model.LinkStatusNew, got.Link.Status)
	assert.Equal(t, teslaID, *got.Link.AuthorityID)
	assert.Equal(t, 1, *got.Link.RuleID)
	assert.Equal(t, []model.Subfield{
		sf("a", "Tesla, Nikola,"),
		sf("d", "1856-1943"),
		sf("0", "http://id.loc.gov/authorities/names/n79021164"),
		sf("9", teslaID.String()),
	}, got.Subfields)
}

func TestSuggestSearchModes(t *testing.T) {
	byID := model.Field{Tag: "100", Subfields: []model.Subfield{sf("9", teslaID.String())}}
	byNaturalID := model.Field{Tag: "100", Subfields: []model.Subfield{sf("0", "n79021164")}}
	badID := model.Field{Tag: "100", Subfields: []model.Subfield{sf("9", "not-a-uuid"), sf("0", "n79021164")}}

	tests := []struct {
		name  string
		field model.Field
		opts  []Option
		want  model.LinkStatus
	}{
		{"default uses $9", byID, nil, model.LinkStatusNew},
		{"default falls back to $0", byNaturalID, nil, model.LinkStatusNew},
		{"default skips unparsable $9", badID, nil, model.LinkStatusNew},
		{"natural id mode ignores $9", byID, []Option{WithSearchBy(SearchByNaturalID)}, model.LinkStatusError},
		{"id mode ignores $0", byNaturalID, []Option{WithSearchBy(SearchByID)}, model.LinkStatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Suggest(tt.field, []model.AuthorityContent{tesla()}, rulesFor(t, "100"), tt.opts...)
			assert.Equal(t, tt.want, got.Link.Status)
		})
	}
}

func TestSuggestActualWhenPreviouslyLinked(t *testing.T) {
	bib := model.Field{Tag: "100", Subfields: []model.Subfield{sf("a", "Tesla"), sf("9", teslaID.String())},
		Link: model.Linked(model.LinkStatusNew, 1, teslaID, "n79021164")}

	got := Suggest(bib, []model.AuthorityContent{tesla()}, rulesFor(t, "100"), WithSearchBy(SearchByID))
	assert.Equal(t, model.LinkStatusActual, got.Link.Status)
}

func TestSuggestNoSuggestions(t *testing.T) {
	bib := model.Field{Tag: "100", Subfields: []model.Subfield{sf("a", "Tesla"), sf("0", "n00000000")}}
	got := Suggest(bib, []model.AuthorityContent{tesla()}, rulesFor(t, "100"))

	assert.Equal(t, model.LinkStatusError, got.Link.Status)
	assert.Equal(t, model.ErrorNoSuggestions, got.Link.ErrorCause)
	assert.Nil(t, got.Link.AuthorityID)
	assert.Nil(t, got.Link.RuleID)
	assert.Equal(t, bib.Subfields, got.Subfields)
}

func TestSuggestMoreThanOne(t *testing.T) {
	dup := tesla()
	dup.AuthorityID = otherID
	bib := model.Field{Tag: "700", Subfields: []model.Subfield{sf("a", "Tesla"), sf("0", "n79021164")}}

	got := Suggest(bib, []model.AuthorityContent{tesla(), dup}, rulesFor(t, "700"))
	assert.Equal(t, model.LinkStatusError, got.Link.Status)
	assert.Equal(t, model.ErrorMoreThanOneSuggestion, got.Link.ErrorCause)
	assert.True(t, got.Link.Consistent())
}

func TestSuggestHeadingMustBeUnique(t *testing.T) {
	c := tesla()
	c.Fields = append(c.Fields, model.Field{Tag: "100", Subfields: []model.Subfield{sf("a", "Second heading")}})
	bib := model.Field{Tag: "100", Subfields: []model.Subfield{sf("0", "n79021164")}}

	got := Suggest(bib, []model.AuthorityContent{c}, rulesFor(t, "100"))
	assert.Equal(t, model.ErrorNoSuggestions, got.Link.ErrorCause)
}

func TestSuggestExistenceValidation(t *testing.T) {
	nameTitle := tesla()
	nameTitle.Fields[0].Subfields = append(nameTitle.Fields[0].Subfields, sf("t", "Inventions"))
	bib := model.Field{Tag: "100", Subfields: []model.Subfield{sf("0", "n79021164")}}

	got := Suggest(bib, []model.AuthorityContent{nameTitle}, rulesFor(t, "100"))
	assert.Equal(t, model.ErrorNoSuggestions, got.Link.ErrorCause, "a name/title heading cannot control 100")
}

func TestSuggestDisabledAutoLinking(t *testing.T) {
	nameTitle := tesla()
	nameTitle.Fields[0].Subfields = append(nameTitle.Fields[0].Subfields, sf("t", "Inventions"))
	bib := model.Field{Tag: "240", Subfields: []model.Subfield{sf("a", "Inventions"), sf("0", "n79021164")}}

	got := Suggest(bib, []model.AuthorityContent{nameTitle}, rulesFor(t, "240"))
	assert.Equal(t, model.ErrorDisabledAutoLinking, got.Link.ErrorCause)

	got = Suggest(bib, []model.AuthorityContent{nameTitle}, rulesFor(t, "240"), WithAllRules())
	require.Equal(t, model.LinkStatusNew, got.Link.Status)
	assert.Equal(t, 5, *got.Link.RuleID)
	first, _ := got.First("a")
	assert.Equal(t, "Inventions", first)
}

func TestSuggestLastRuleCauseWins(t *testing.T) {
	a := tesla()
	b := tesla()
	b.AuthorityID = otherID
	// Rule 10 sees both candidates, rule 20 sees none because neither has a 151.
	rs := []rules.LinkingRule{
		{ID: 10, AuthorityField: "100", BibField: "600", AuthoritySubfields: []string{"a"}, AutoLinkingEnabled: true},
		{ID: 20, AuthorityField: "151", BibField: "600", AuthoritySubfields: []string{"a"}, AutoLinkingEnabled: true},
	}
	bib := model.Field{Tag: "600", Subfields: []model.Subfield{sf("0", "n79021164")}}

	got := Suggest(bib, []model.AuthorityContent{a, b}, rs)
	assert.Equal(t, model.ErrorNoSuggestions, got.Link.ErrorCause)

	rs[0], rs[1] = rs[1], rs[0]
	got = Suggest(bib, []model.AuthorityContent{a, b}, rs)
	assert.Equal(t, model.ErrorMoreThanOneSuggestion, got.Link.ErrorCause)
}

func TestSuggestWithoutIdentifier(t *testing.T) {
	bib := model.Field{Tag: "100", Subfields: []model.Subfield{sf("a", "Tesla")}}
	got := Suggest(bib, []model.AuthorityContent{tesla()}, rulesFor(t, "100"))
	assert.Equal(t, model.ErrorNoSuggestions, got.Link.ErrorCause)

	got = Suggest(bib, []model.AuthorityContent{tesla()}, rulesFor(t, "100"), WithSearchBy(SearchByID))
	assert.Equal(t, model.ErrorNoSuggestions, got.Link.ErrorCause)
}

func TestIdentifiers(t *testing.T) {
	fields := []model.Field{
		{Tag: "100", Subfields: []model.Subfield{sf("0", "n1"), sf("9", teslaID.String())}},
		{Tag: "700", Subfields: []model.Subfield{sf("0", "http://x/n1"), sf("9", "garbage")}},
		{Tag: "650", Subfields: []model.Subfield{sf("0", "sh2"), sf("9", otherID.String())}},
	}
	ids, nids := Identifiers(fields)
	assert.Equal(t, []uuid.UUID{teslaID, otherID}, ids)
	assert.Equal(t, []string{"n1", "sh2"}, nids)
}
