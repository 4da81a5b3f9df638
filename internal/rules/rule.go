package rules

import (
	"fmt"
	"sort"

	"github.com/roach88/authsync/internal/model"
)

// SubfieldModification renames an authority subfield code on its way into the
// bib field.
type SubfieldModification struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// LinkingRule maps an authority heading field to a bib field.
type LinkingRule struct {
	ID                            int                    `json:"id"`
	AuthorityField                string                 `json:"authorityField"`
	BibField                      string                 `json:"bibField"`
	AuthoritySubfields            []string               `json:"authoritySubfields"`
	SubfieldModifications         []SubfieldModification `json:"subfieldModifications,omitempty"`
	SubfieldsExistenceValidations map[string]bool        `json:"subfieldsExistenceValidations,omitempty"`
	AutoLinkingEnabled            bool                   `json:"autoLinkingEnabled"`
}

// Validate checks the structural invariants of a rule.
func (r LinkingRule) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("rule id must be positive, got %d", r.ID)
	}
	if len(r.AuthorityField) != 3 {
		return fmt.Errorf("rule %d: authorityField must be a 3-character tag, got %q", r.ID, r.AuthorityField)
	}
	if len(r.BibField) != 3 {
		return fmt.Errorf("rule %d: bibField must be a 3-character tag, got %q", r.ID, r.BibField)
	}
	seen := make(map[string]bool, len(r.SubfieldModifications))
	for _, m := range r.SubfieldModifications {
		if m.Source == "" || m.Target == "" {
			return fmt.Errorf("rule %d: subfield modification needs source and target", r.ID)
		}
		if seen[m.Source] {
			return fmt.Errorf("rule %d: more than one modification for subfield %q", r.ID, m.Source)
		}
		seen[m.Source] = true
	}
	for _, code := range r.AuthoritySubfields {
		if code == model.SubfieldNaturalID || code == model.SubfieldAuthorityID {
			return fmt.Errorf("rule %d: system subfield %q cannot be controlled", r.ID, code)
		}
	}
	return nil
}

// Controls reports whether authority subfield code is copied by the rule.
func (r LinkingRule) Controls(code string) bool {
	for _, c := range r.AuthoritySubfields {
		if c == code {
			return true
		}
	}
	return false
}

// Rename returns the bib subfield code an authority subfield lands in.
func (r LinkingRule) Rename(code string) string {
	for _, m := range r.SubfieldModifications {
		if m.Source == code {
			return m.Target
		}
	}
	return code
}

// Accepts reports whether an authority field satisfies every existence
// validation: true means the subfield must be present, false means it must be
// absent.
func (r LinkingRule) Accepts(f model.Field) bool {
	for code, mustExist := range r.SubfieldsExistenceValidations {
		if f.Has(code) != mustExist {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the rule.
func (r LinkingRule) Clone() LinkingRule {
	c := r
	c.AuthoritySubfields = append([]string(nil), r.AuthoritySubfields...)
	c.SubfieldModifications = append([]SubfieldModification(nil), r.SubfieldModifications...)
	if r.SubfieldsExistenceValidations != nil {
		c.SubfieldsExistenceValidations = make(map[string]bool, len(r.SubfieldsExistenceValidations))
		for k, v := range r.SubfieldsExistenceValidations {
			c.SubfieldsExistenceValidations[k] = v
		}
	}
	return c
}

// ValidateAll validates each rule and checks that ids are unique.
func ValidateAll(rs []LinkingRule) error {
	ids := make(map[int]bool, len(rs))
	for _, r := range rs {
		if err := r.Validate(); err != nil {
			return err
		}
		if ids[r.ID] {
			return fmt.Errorf("duplicate rule id %d", r.ID)
		}
		ids[r.ID] = true
	}
	return nil
}

// SortByID sorts rules by id in place. Rule order is evaluation order.
func SortByID(rs []LinkingRule) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
}

// GroupByBibField groups rules by bib tag, preserving order within a group.
func GroupByBibField(rs []LinkingRule) map[string][]LinkingRule {
	out := make(map[string][]LinkingRule)
	for _, r := range rs {
		out[r.BibField] = append(out[r.BibField], r)
	}
	return out
}
