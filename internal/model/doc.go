// Package model defines the shared record model for authority linking.
//
// The package covers three groups of types:
//
//   - Field content: Field and Subfield describe a MARC field as an ordered
//     list of (code, value) pairs. Bib fields optionally carry LinkDetails once
//     the matching engine has evaluated them.
//
//   - Authorities: Authority is the stored authority record, SourceFile its
//     authority source file, and AuthorityContent the read model handed to the
//     matching and reconciliation code (id, natural id, base URL, fields).
//
//   - Links: Link is the persisted instance-to-authority link. Two links are the
//     same link when instance id, authority id, bib tag and rule id all match;
//     see LinkKey.
//
// Subfield values are NFC-normalized on construction so that values coming
// from different cataloging clients compare equal. Content hashes (hash.go)
// use canonical JSON (canonical.go) with domain separation and are used by the
// store to make authority writes idempotent.
package model
