// Package harness runs linking scenarios written in YAML against a real,
// isolated tenant store and compares their traces with golden files.
//
// # Scenario Format
//
//	name: tesla_100
//	description: "Tesla heading controls 100 and 700"
//	rules: rules.cue            # optional, embedded defaults otherwise
//	page_size: 100              # optional
//	source_files:
//	  - id: 7e3bb6e8-...
//	    name: LCNAF
//	    base_url: http://id.loc.gov/authorities/names/
//	authorities:
//	  - id: 0191e5c4-...
//	    natural_id: n79021164
//	    source_file: 7e3bb6e8-...
//	    fields:
//	      - tag: "100"
//	        ind1: "1"
//	        subfields: ["a Tesla, Nikola,", "d 1856-1943"]
//	steps:
//	  - suggest:
//	      fields:
//	        - tag: "100"
//	          subfields: ["a Tesla", "0 n79021164"]
//	    expect:
//	      fields:
//	        - {tag: "100", status: NEW, rule: 1}
//	  - update_links:
//	      instance: 5bf370e0-...
//	      links:
//	        - {authority: 0191e5c4-..., tag: "100", rule: 1, subfields: [a, d]}
//	    expect: {links: 1, deleted: 0, events: 1}
//	  - update_authority:
//	      id: 0191e5c4-...
//	      natural_id: n79021165
//	    expect: {events: 1, unsupported: false}
//	  - delete_authority: {id: 0191e5c4-...}
//	assertions:
//	  - {type: link_count, authority: 0191e5c4-..., count: 0}
//	  - {type: event_count, event: DELETE, count: 1}
//
// Subfields are written as "<code> <value>"; a bare code means an empty
// value. Link subfields are bare codes. Authority updates are forced.
//
// # Assertion Types
//
//   - link_count: stored links of an authority
//   - instance_links: stored links of an instance
//   - event_count: published events, optionally of one type
//   - event_links: links targeted by published events, optionally of one type
//
// # Determinism
//
// Every run uses a fresh database, a DeterministicClock for timestamps and
// sequential job ids, so the trace of a scenario is identical across runs and
// can be compared with testdata/golden/<name>.golden.
package harness
