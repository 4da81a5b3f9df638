package rules

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

//go:embed default.cue
var defaultSource string

// schemaSource constrains each rule element before it is decoded.
const schemaSource = `
#Tag:  =~"^[0-9A-Za-z]{3}$"
#Code: =~"^[0-9a-z]$"

#Rule: {
	id:                 int & >0
	authorityField:     #Tag
	bibField:           #Tag
	authoritySubfields: [...#Code]
	subfieldModifications: *[] | [...{source: #Code, target: #Code}]
	subfieldsExistenceValidations: *{} | {[string]: bool}
	autoLinkingEnabled: *true | bool
}
`

// Compile decodes the top-level "rules" list of v into linking rules, sorted
// by id. Every rule is checked against the rule schema and Validate.
func Compile(v cue.Value) ([]LinkingRule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError("cue", err)
	}

	list := v.LookupPath(cue.ParsePath("rules"))
	if !list.Exists() {
		return nil, &CompileError{Field: "rules", Message: "rules list is required", Pos: v.Pos()}
	}

	schema := v.Context().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("rule schema: %w", err)
	}
	ruleDef := schema.LookupPath(cue.ParsePath("#Rule"))

	iter, err := list.List()
	if err != nil {
		return nil, formatCUEError("rules", err)
	}

	var out []LinkingRule
	for i := 0; iter.Next(); i++ {
		elem := iter.Value()
		field := fmt.Sprintf("rules[%d]", i)

		unified := ruleDef.Unify(elem)
		if err := unified.Validate(); err != nil {
			return nil, formatCUEError(field, err)
		}
		r, err := decodeRule(unified, field)
		if err != nil {
			return nil, err
		}
		if err := r.Validate(); err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: elem.Pos()}
		}
		out = append(out, r)
	}

	if err := ValidateAll(out); err != nil {
		return nil, &CompileError{Field: "rules", Message: err.Error(), Pos: list.Pos()}
	}
	SortByID(out)
	return out, nil
}

func decodeRule(v cue.Value, field string) (LinkingRule, error) {
	var r LinkingRule

	id, err := resolve(v, "id").Int64()
	if err != nil {
		return r, formatCUEError(field+".id", err)
	}
	r.ID = int(id)

	if r.AuthorityField, err = resolve(v, "authorityField").String(); err != nil {
		return r, formatCUEError(field+".authorityField", err)
	}
	if r.BibField, err = resolve(v, "bibField").String(); err != nil {
		return r, formatCUEError(field+".bibField", err)
	}

	codes, err := resolve(v, "authoritySubfields").List()
	if err != nil {
		return r, formatCUEError(field+".authoritySubfields", err)
	}
	for codes.Next() {
		c, err := codes.Value().String()
		if err != nil {
			return r, formatCUEError(field+".authoritySubfields", err)
		}
		r.AuthoritySubfields = append(r.AuthoritySubfields, c)
	}

	mods, err := resolve(v, "subfieldModifications").List()
	if err != nil {
		return r, formatCUEError(field+".subfieldModifications", err)
	}
	for mods.Next() {
		var m SubfieldModification
		if m.Source, err = mods.Value().LookupPath(cue.ParsePath("source")).String(); err != nil {
			return r, formatCUEError(field+".subfieldModifications", err)
		}
		if m.Target, err = mods.Value().LookupPath(cue.ParsePath("target")).String(); err != nil {
			return r, formatCUEError(field+".subfieldModifications", err)
		}
		r.SubfieldModifications = append(r.SubfieldModifications, m)
	}

	checks, err := resolve(v, "subfieldsExistenceValidations").Fields()
	if err != nil {
		return r, formatCUEError(field+".subfieldsExistenceValidations", err)
	}
	for checks.Next() {
		b, err := checks.Value().Bool()
		if err != nil {
			return r, formatCUEError(field+".subfieldsExistenceValidations", err)
		}
		if r.SubfieldsExistenceValidations == nil {
			r.SubfieldsExistenceValidations = make(map[string]bool)
		}
		r.SubfieldsExistenceValidations[checks.Label()] = b
	}

	if r.AutoLinkingEnabled, err = resolve(v, "autoLinkingEnabled").Bool(); err != nil {
		return r, formatCUEError(field+".autoLinkingEnabled", err)
	}
	return r, nil
}

// resolve looks up path and picks the default of a disjunction.
func resolve(v cue.Value, path string) cue.Value {
	f := v.LookupPath(cue.ParsePath(path))
	if d, ok := f.Default(); ok {
		return d
	}
	return f
}

// CompileString compiles rules from a single CUE source.
func CompileString(src, filename string) ([]LinkingRule, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	return Compile(v)
}

// LoadDir loads every .cue file of the package in dir and compiles its rules.
func LoadDir(dir string) ([]LinkingRule, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("rules directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rules directory: not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError("load", inst.Err)
	}
	v := ctx.BuildInstance(inst)
	return Compile(v)
}

// Default returns the embedded default rule set.
func Default() ([]LinkingRule, error) {
	return CompileString(defaultSource, "default.cue")
}

// MustDefault is Default for program initialization and tests.
func MustDefault() []LinkingRule {
	rs, err := Default()
	if err != nil {
		panic(err)
	}
	return rs
}
