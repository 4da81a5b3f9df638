package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON for content hashing.
//
// Supported values are string, int, int64, bool, []string, []any and
// map[string]any. Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping, U+2028/U+2029 emitted literally
//  3. Strings are NFC normalized
//  4. Floats and null are rejected
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		return writeCanonicalString(buf, val)
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case []string:
		arr := make([]any, len(val))
		for i, s := range val {
			arr[i] = s
		}
		return writeCanonicalArray(buf, arr)
	case []any:
		return writeCanonicalArray(buf, val)
	case map[string]any:
		return writeCanonicalObject(buf, val)
	case float32, float64:
		return fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes produced by
// encoding/json back into literal characters. An escape preceded by an odd
// number of backslashes is literal text and stays as is.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+5 < len(data) && string(data[i+1:i+5]) == "u202" &&
			(data[i+5] == '8' || data[i+5] == '9') {
			backslashes := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				backslashes++
			}
			if backslashes%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

func writeCanonicalArray(buf *bytes.Buffer, arr []any) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonical(buf, elem); err != nil {
			return fmt.Errorf("array[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeCanonicalObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return compareUTF16(keys[i], keys[j]) < 0
	})

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := writeCanonical(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// compareUTF16 orders keys by UTF-16 code units as RFC 8785 requires.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	for i := 0; i < len(a16) && i < len(b16); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}
