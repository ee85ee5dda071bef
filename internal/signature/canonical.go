package signature

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/corvid-labs/chronicle/pkg/api"
)

// CanonicalBytes produces the deterministic encoding of an event that
// signatures are computed over. All fields except the signature itself
// are included.
//
// Properties the signer depends on:
//  1. Object keys emitted in sorted byte order.
//  2. No HTML escaping (< > & are written as-is).
//  3. Strings NFC-normalized at the serialization boundary.
//  4. All numbers widened to float64 and written in plain decimal
//     form, so an int and the float64 it decodes to after a JSON
//     round trip serialize identically.
//  5. Timestamps as RFC 3339 nanoseconds in UTC.
//
// The same logical event therefore always yields the same bytes, no
// matter how it was stored or decoded in between.
func CanonicalBytes(e api.WorkflowEvent) ([]byte, error) {
	fields := map[string]any{
		"event_id":      e.EventID,
		"workflow_id":   e.WorkflowID,
		"action":        string(e.Action),
		"timestamp":     e.Timestamp.UTC().Format(time.RFC3339Nano),
		"event_version": e.EventVersion,
	}
	if e.ParentWorkflowID != "" {
		fields["parent_workflow_id"] = e.ParentWorkflowID
	}
	if e.StepID != "" {
		fields["step_id"] = e.StepID
	}
	if len(e.Data) > 0 {
		fields["data"] = e.Data
	}
	return marshalCanonical(fields)
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case string:
		return marshalCanonicalString(val)
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case int:
		return canonicalNumber(float64(val))
	case int64:
		return canonicalNumber(float64(val))
	case float64:
		return canonicalNumber(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q in canonical form", val)
		}
		return canonicalNumber(f)
	case []any:
		return marshalCanonicalArray(val)
	case map[string]any:
		return marshalCanonicalObject(val)
	default:
		return nil, fmt.Errorf("unsupported type in canonical form: %T", v)
	}
}

// canonicalNumber writes a number in plain decimal form ('f', shortest
// exact). Every numeric type is widened to float64 first: json.Unmarshal
// yields float64 for all numbers, so an event signed with a Go int must
// canonicalize the same way after it has been stored as JSON and read
// back.
func canonicalNumber(f float64) ([]byte, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number in canonical form: %v", f)
	}
	return strconv.AppendFloat(nil, f, 'f', -1, 64), nil
}

// marshalCanonicalString emits a JSON string with NFC normalization and
// HTML escaping disabled.
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder adds a trailing newline; strip it.
	out := buf.Bytes()
	if n := len(out); n > 0 && out[n-1] == '\n' {
		out = out[:n-1]
	}
	return out, nil
}

func marshalCanonicalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := marshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func marshalCanonicalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')

		vb, err := marshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
