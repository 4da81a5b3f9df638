package rules

import (
	"context"
)

// Store serves linking rules. Results are in rule id order; callers must not
// modify returned rules.
type Store interface {
	ListRules(ctx context.Context) ([]LinkingRule, error)
	RulesForAuthorityField(ctx context.Context, tag string) ([]LinkingRule, error)
	RulesForBibField(ctx context.Context, tag string) ([]LinkingRule, error)
}

// Static is an immutable in-memory rule store.
type Static struct {
	rules []LinkingRule
}

// NewStatic validates rs and returns a store over a sorted copy.
func NewStatic(rs []LinkingRule) (*Static, error) {
	cp := make([]LinkingRule, len(rs))
	for i, r := range rs {
		cp[i] = r.Clone()
	}
	if err := ValidateAll(cp); err != nil {
		return nil, err
	}
	SortByID(cp)
	return &Static{rules: cp}, nil
}

func (s *Static) ListRules(context.Context) ([]LinkingRule, error) {
	return s.rules, nil
}

func (s *Static) RulesForAuthorityField(_ context.Context, tag string) ([]LinkingRule, error) {
	return filter(s.rules, func(r LinkingRule) bool { return r.AuthorityField == tag }), nil
}

func (s *Static) RulesForBibField(_ context.Context, tag string) ([]LinkingRule, error) {
	return filter(s.rules, func(r LinkingRule) bool { return r.BibField == tag }), nil
}

func filter(rs []LinkingRule, keep func(LinkingRule) bool) []LinkingRule {
	var out []LinkingRule
	for _, r := range rs {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// listFiltered implements the tag lookups on top of a ListRules func.
func listFiltered(ctx context.Context, list func(context.Context) ([]LinkingRule, error), keep func(LinkingRule) bool) ([]LinkingRule, error) {
	rs, err := list(ctx)
	if err != nil {
		return nil, err
	}
	return filter(rs, keep), nil
}
