package match

import (
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/authsync/internal/model"
	"github.com/roach88/authsync/internal/rules"
	"github.com/roach88/authsync/internal/subfield"
)

// SearchBy selects the bib subfield that identifies the authority.
type SearchBy string

const (
	// SearchByAny uses $9 when it holds a valid authority id and $0
	// otherwise.
	SearchByAny       SearchBy = ""
	SearchByNaturalID SearchBy = "NATURAL_ID"
	SearchByID        SearchBy = "ID"
)

type options struct {
	allRules bool
	searchBy SearchBy
}

// Option configures Suggest.
type Option func(*options)

// WithAllRules evaluates rules whose auto linking is disabled.
func WithAllRules() Option {
	return func(o *options) { o.allRules = true }
}

// WithSearchBy restricts identification to one reference subfield. The
// default is SearchByAny.
func WithSearchBy(s SearchBy) Option {
	return func(o *options) {
		if s.Valid() {
			o.searchBy = s
		}
	}
}

// Valid reports whether s is a known mode.
func (s SearchBy) Valid() bool {
	switch s {
	case SearchByAny, SearchByID, SearchByNaturalID:
		return true
	}
	return false
}

// Suggest evaluates field against candidates under the rules for its tag and
// returns a copy of the field with link details set.
func Suggest(field model.Field, candidates []model.AuthorityContent, rulesForTag []rules.LinkingRule, opts ...Option) model.Field {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	out := field.Clone()
	applicable := rulesForTag
	if !o.allRules {
		applicable = nil
		for _, r := range rulesForTag {
			if r.AutoLinkingEnabled {
				applicable = append(applicable, r)
			}
		}
	}
	if len(applicable) == 0 {
		out.Link = model.LinkError(model.ErrorDisabledAutoLinking)
		return out
	}

	identified := identify(field, candidates, o.searchBy)

	cause := model.ErrorNoSuggestions
	for _, rule := range applicable {
		survivors, heading := survivorsFor(identified, rule)
		switch len(survivors) {
		case 1:
			content := survivors[0]
			status := model.LinkStatusNew
			if field.Link != nil && field.Link.RuleID != nil {
				status = model.LinkStatusActual
			}
			out.Subfields = subfield.Apply(field, content, heading, rule)
			out.Link = model.Linked(status, rule.ID, content.AuthorityID, content.NaturalID)
			return out
		case 0:
			cause = model.ErrorNoSuggestions
		default:
			cause = model.ErrorMoreThanOneSuggestion
		}
	}
	out.Link = model.LinkError(cause)
	return out
}

// identify keeps the candidates the bib field points at.
func identify(field model.Field, candidates []model.AuthorityContent, by SearchBy) []model.AuthorityContent {
	if by == SearchByAny {
		by = SearchByNaturalID
		if _, ok := field.AuthorityIDRef(); ok {
			by = SearchByID
		}
	}
	var out []model.AuthorityContent
	switch by {
	case SearchByID:
		id, ok := field.AuthorityIDRef()
		if !ok {
			return nil
		}
		for _, c := range candidates {
			if c.AuthorityID == id {
				out = append(out, c)
			}
		}
	default:
		nid, ok := field.NaturalIDRef()
		if !ok || nid == "" {
			return nil
		}
		for _, c := range candidates {
			if normalizeNaturalID(c.NaturalID) == nid {
				out = append(out, c)
			}
		}
	}
	return out
}

// survivorsFor keeps candidates with exactly one heading of the rule's
// authority tag that the rule accepts. The heading of the first survivor is
// returned alongside.
func survivorsFor(candidates []model.AuthorityContent, rule rules.LinkingRule) ([]model.AuthorityContent, model.Field) {
	var (
		out     []model.AuthorityContent
		heading model.Field
	)
	for _, c := range candidates {
		fields := c.FieldsByTag(rule.AuthorityField)
		if len(fields) != 1 || !rule.Accepts(fields[0]) {
			continue
		}
		if len(out) == 0 {
			heading = fields[0]
		}
		out = append(out, c)
	}
	return out, heading
}

func normalizeNaturalID(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "")
}

// Identifiers collects the authority ids ($9) and natural ids ($0) referenced
// by fields, each deduplicated in first-seen order.
func Identifiers(fields []model.Field) ([]uuid.UUID, []string) {
	var (
		ids     []uuid.UUID
		nids    []string
		seenID  = make(map[uuid.UUID]bool)
		seenNID = make(map[string]bool)
	)
	for _, f := range fields {
		if id, ok := f.AuthorityIDRef(); ok && !seenID[id] {
			seenID[id] = true
			ids = append(ids, id)
		}
		if nid, ok := f.NaturalIDRef(); ok && nid != "" && !seenNID[nid] {
			seenNID[nid] = true
			nids = append(nids, nid)
		}
	}
	return ids, nids
}
