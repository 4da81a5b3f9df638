package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows algorithm
// migration without collisions.
const (
	DomainAuthority  = "authsync/authority/v1"
	DomainSourceFile = "authsync/source-file/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// AuthorityHash hashes the mutable content of an authority: natural id, source
// file and fields. Version, timestamps and flags are excluded so that writing
// the same content twice yields the same hash.
func AuthorityHash(a Authority) (string, error) {
	doc := map[string]any{
		"natural_id": a.NaturalID,
		"fields":     fieldsDocument(a.Fields),
	}
	if a.SourceFileID != nil {
		doc["source_file_id"] = a.SourceFileID.String()
	}
	data, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("AuthorityHash: %w", err)
	}
	return hashWithDomain(DomainAuthority, data), nil
}

// SourceFileHash hashes the mutable content of a source file.
func SourceFileHash(sf SourceFile) (string, error) {
	doc := map[string]any{
		"name":     sf.Name,
		"base_url": sf.BaseURL,
		"codes":    append([]string{}, sf.Codes...),
	}
	data, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("SourceFileHash: %w", err)
	}
	return hashWithDomain(DomainSourceFile, data), nil
}

func fieldsDocument(fields []Field) []any {
	out := make([]any, len(fields))
	for i, f := range fields {
		subfields := make([]any, len(f.Subfields))
		for j, sf := range f.Subfields {
			subfields[j] = map[string]any{"code": sf.Code, "value": sf.Value}
		}
		out[i] = map[string]any{
			"tag":       f.Tag,
			"ind1":      f.Ind1,
			"ind2":      f.Ind2,
			"subfields": subfields,
		}
	}
	return out
}
