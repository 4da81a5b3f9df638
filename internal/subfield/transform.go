// Package subfield rewrites bib field subfields from a controlling authority
// field according to a linking rule.
package subfield

import (
	"github.com/google/uuid"

	"github.com/roach88/authsync/internal/model"
	"github.com/roach88/authsync/internal/rules"
)

// Controlled returns the authority subfields the rule copies, in authority
// field order, with renames applied.
func Controlled(authField model.Field, rule rules.LinkingRule) []model.Subfield {
	var out []model.Subfield
	for _, sf := range authField.Subfields {
		if !rule.Controls(sf.Code) {
			continue
		}
		out = append(out, model.NewSubfield(rule.Rename(sf.Code), sf.Value))
	}
	return out
}

// System returns the system subfields for a linked authority: $0 when zero is
// non-empty, then $9.
func System(zero string, authorityID uuid.UUID) []model.Subfield {
	var out []model.Subfield
	if zero != "" {
		out = append(out, model.Subfield{Code: model.SubfieldNaturalID, Value: zero})
	}
	return append(out, model.Subfield{Code: model.SubfieldAuthorityID, Value: authorityID.String()})
}

// Uncontrolled returns the bib subfields the rule does not own. Rule subfield
// codes, rename targets and the system codes are dropped.
func Uncontrolled(bib model.Field, rule rules.LinkingRule) []model.Subfield {
	owned := ownedCodes(rule)
	var out []model.Subfield
	for _, sf := range bib.Subfields {
		if owned[sf.Code] {
			continue
		}
		out = append(out, sf)
	}
	return out
}

// Apply builds the linked bib subfields: controlled, then system, then
// uncontrolled.
func Apply(bib model.Field, content model.AuthorityContent, authField model.Field, rule rules.LinkingRule) []model.Subfield {
	controlled := Controlled(authField, rule)
	system := System(content.SubfieldZero(), content.AuthorityID)
	uncontrolled := Uncontrolled(bib, rule)

	out := make([]model.Subfield, 0, len(controlled)+len(system)+len(uncontrolled))
	out = append(out, controlled...)
	out = append(out, system...)
	return append(out, uncontrolled...)
}

// Changes returns the authority subfields the rule controls, in field order
// and with authority-side codes, followed by the controlled codes the field
// lacks with empty values so consumers clear them. Renames are left to the
// consumer, which applies the table of the rule linking each bib field.
func Changes(authField model.Field, rule rules.LinkingRule) []model.Subfield {
	var out []model.Subfield
	present := make(map[string]bool)
	for _, sf := range authField.Subfields {
		if rule.Controls(sf.Code) {
			present[sf.Code] = true
			out = append(out, model.NewSubfield(sf.Code, sf.Value))
		}
	}
	for _, code := range rule.AuthoritySubfields {
		if !present[code] {
			present[code] = true
			out = append(out, model.Subfield{Code: code})
		}
	}
	return out
}

func ownedCodes(rule rules.LinkingRule) map[string]bool {
	owned := map[string]bool{
		model.SubfieldNaturalID:   true,
		model.SubfieldAuthorityID: true,
	}
	for _, c := range rule.AuthoritySubfields {
		owned[c] = true
	}
	for _, m := range rule.SubfieldModifications {
		owned[m.Target] = true
	}
	return owned
}
