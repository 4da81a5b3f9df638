// Package match decides which authority record a bib field links to.
//
// Suggest walks the rules for the bib field's tag in order. For each rule it
// keeps the candidate authorities that are identified by the bib field ($9 id
// or $0 natural id) and carry exactly one heading field of the rule's
// authority tag that passes the rule's existence validations. The first rule
// with exactly one survivor wins; the field's subfields are rewritten from the
// authority heading and its link details set to NEW or ACTUAL. If no rule
// yields exactly one survivor the field gets ERROR details with the cause of
// the last rule tried.
//
// Match failures are data, not errors: Suggest never returns an error.
package match
