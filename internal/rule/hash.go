package rule

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// DefinitionHash returns a stable hex digest of the rule's trigger and
// action configuration.
//
// The engine keys its debounce ledger on (rule ID, definition hash), so
// editing a rule's conditions or action starts a fresh debounce window while
// bookkeeping edits (name, enabled) do not.
//
// The digest is computed over canonical JSON: object keys sorted, strings
// NFC-normalized, no HTML escaping. Unlike strict RFC 8785, floats are
// permitted because condition thresholds are frequently fractional; they are
// rendered with the shortest round-trip representation.
func DefinitionHash(r *Rule) (string, error) {
	canonical, err := marshalCanonical(map[string]any{
		"trigger_type": string(r.Trigger.Kind),
		"conditions":   r.Trigger.Conditions,
		"action_type":  string(r.Action.Kind),
		"params":       r.Action.Params,
	})
	if err != nil {
		return "", fmt.Errorf("hash rule %s: %w", r.ID, err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case string:
		return marshalCanonicalString(val)
	case int:
		return []byte(strconv.FormatInt(int64(val), 10)), nil
	case int64:
		return []byte(strconv.FormatInt(val, 10)), nil
	case float64:
		// Whole floats render as integers so YAML's int/float ambiguity
		// cannot change the digest.
		if val == float64(int64(val)) {
			return []byte(strconv.FormatInt(int64(val), 10)), nil
		}
		return []byte(strconv.FormatFloat(val, 'g', -1, 64)), nil
	case []any:
		return marshalCanonicalArray(val)
	case map[string]any:
		return marshalCanonicalObject(val)
	default:
		return nil, fmt.Errorf("unsupported type %T in canonical JSON", v)
	}
}

func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)
	var buf bytes.Buffer
	buf.WriteByte('"')
	for _, r := range normalized {
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
				buf.WriteString(fmt.Sprintf(`\u%04x`, r))
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
	return buf.Bytes(), nil
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
			return nil, fmt.Errorf("value of %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
