// Package rules defines linking rules and the stores that serve them.
//
// A LinkingRule says which authority heading field may control which bib
// field, which authority subfields are copied over, how they are renamed, and
// which subfields must (or must not) be present on the authority field for the
// rule to apply.
//
// Rules are authored in CUE:
//
//	rules: [{
//		id:                 5
//		authorityField:     "100"
//		bibField:           "240"
//		authoritySubfields: ["f", "g", "h", "k", "l", "m", "n", "o", "p", "r", "s", "t"]
//		subfieldModifications: [{source: "t", target: "a"}]
//		subfieldsExistenceValidations: {t: true}
//		autoLinkingEnabled: false
//	}]
//
// The package embeds the default rule set; Default returns it compiled.
// Store implementations: Static (immutable, sorted by id), Cache (per-tenant
// in-process TTL cache) and RedisCache (shared cache backed by Redis).
package rules
