package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/authsync/internal/model"
)

const timeLayout = time.RFC3339Nano

// marshalFields converts authority fields to JSON TEXT for storage.
func marshalFields(fields []model.Field) (string, error) {
	if fields == nil {
		fields = []model.Field{}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

func unmarshalFields(s string) ([]model.Field, error) {
	var fields []model.Field
	if err := json.Unmarshal([]byte(s), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return fields, nil
}

// marshalCodes converts a code list to canonical JSON TEXT. Canonical form
// keeps equal lists byte-equal, which the link upsert relies on to detect
// change.
func marshalCodes(codes []string) (string, error) {
	if codes == nil {
		codes = []string{}
	}
	data, err := model.MarshalCanonical(codes)
	if err != nil {
		return "", fmt.Errorf("marshal codes: %w", err)
	}
	return string(data), nil
}

func unmarshalCodes(s string) ([]string, error) {
	var codes []string
	if err := json.Unmarshal([]byte(s), &codes); err != nil {
		return nil, fmt.Errorf("unmarshal codes: %w", err)
	}
	if codes == nil {
		codes = []string{}
	}
	return codes, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
