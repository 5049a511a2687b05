// Copyright 2025 Traceprompt
//
// Canonical encoding for audit records.
//
// Marshal produces the deterministic byte encoding that internal/hasher
// digests to build the hash chain: object keys sorted in code-point order,
// no insignificant whitespace, strings minimally escaped, numbers in their
// shortest unambiguous form. This is a simplified RFC 8785-like approach:
// full JCS compliance (e.g. ECMA-262 number-to-string conversion) is more
// than this encoder's inputs need.
package canonical

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// EncodingError is returned when a value cannot be canonically encoded
// (cycles, NaN, infinities, or an unsupported Go type).
type EncodingError struct {
	Path   string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("canonical: cannot encode value at %s: %s", e.Path, e.Reason)
}

// Marshal walks v (built from maps, slices, strings, bools, numbers, and
// nil — the shapes produced by encoding/json.Unmarshal, or hand-built
// map[string]interface{} payloads) and returns its canonical UTF-8 bytes.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v, "$", make(map[uintptr]bool)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v interface{}, path string, seen map[uintptr]bool) error {
	switch vv := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if vv {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case string:
		encodeString(buf, vv)
		return nil
	case float64:
		return encodeFloat(buf, vv, path)
	case float32:
		return encodeFloat(buf, float64(vv), path)
	case int:
		fmt.Fprintf(buf, "%d", vv)
		return nil
	case int32:
		fmt.Fprintf(buf, "%d", vv)
		return nil
	case int64:
		fmt.Fprintf(buf, "%d", vv)
		return nil
	case uint64:
		fmt.Fprintf(buf, "%d", vv)
		return nil
	case map[string]interface{}:
		return encodeObject(buf, vv, path, seen)
	case []interface{}:
		return encodeArray(buf, vv, path, seen)
	case []string:
		arr := make([]interface{}, len(vv))
		for i, s := range vv {
			arr[i] = s
		}
		return encodeArray(buf, arr, path, seen)
	default:
		return &EncodingError{Path: path, Reason: fmt.Sprintf("unsupported type %T", v)}
	}
}

func encodeFloat(buf *bytes.Buffer, f float64, path string) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &EncodingError{Path: path, Reason: "NaN and Infinity are not representable"}
	}
	// Shortest round-trippable representation; matches the precision
	// encoding/json itself would choose for a float64.
	buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

func encodeObject(buf *bytes.Buffer, m map[string]interface{}, path string, seen map[uintptr]bool) error {
	ptr := reflect.ValueOf(m).Pointer()
	if seen[ptr] {
		return &EncodingError{Path: path, Reason: "cyclic structure"}
	}
	seen[ptr] = true
	defer delete(seen, ptr)

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')
		if err := encodeValue(buf, m[k], path+"."+k, seen); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeArray(buf *bytes.Buffer, arr []interface{}, path string, seen map[uintptr]bool) error {
	buf.WriteByte('[')
	for i, v := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(buf, v, fmt.Sprintf("%s[%d]", path, i), seen); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// encodeString writes s as a minimally-escaped, double-quoted JSON string.
func encodeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
