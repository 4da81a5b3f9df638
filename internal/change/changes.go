package change

import (
	"github.com/roach88/authsync/internal/event"
	"github.com/roach88/authsync/internal/model"
	"github.com/roach88/authsync/internal/rules"
)

// SubfieldChanges builds the subfield changes of a supported decision.
//
// A natural id change contributes the rebuilt $0. A heading change
// contributes the heading subfields controlled by any rule that accepts the
// heading, in heading order and with authority-side codes, followed by the
// controlled codes the heading lacks with empty values. Consumers apply the
// rename table of the rule that links each bib field.
func SubfieldChanges(d Decision, heading model.Field, candidates []rules.LinkingRule, zero string) []event.SubfieldChange {
	var out []event.SubfieldChange
	if d.Kind == KindFieldChange {
		var applicable []rules.LinkingRule
		for _, r := range candidates {
			if r.AuthorityField == heading.Tag && r.Accepts(heading) {
				applicable = append(applicable, r)
			}
		}
		controls := func(code string) bool {
			for _, r := range applicable {
				if r.Controls(code) {
					return true
				}
			}
			return false
		}

		present := make(map[string]bool)
		for _, sf := range heading.Subfields {
			if controls(sf.Code) {
				present[sf.Code] = true
				out = append(out, event.SubfieldChange{Code: sf.Code, Value: model.NewSubfield(sf.Code, sf.Value).Value})
			}
		}
		for _, r := range applicable {
			for _, code := range r.AuthoritySubfields {
				if !present[code] {
					present[code] = true
					out = append(out, event.SubfieldChange{Code: code})
				}
			}
		}
	}
	if d.NaturalIDChanged {
		out = append(out, event.SubfieldChange{Code: model.SubfieldNaturalID, Value: zero})
	}
	return out
}
