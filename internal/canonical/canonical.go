// Package canonical produces a deterministic JSON encoding so that the same
// logical document always hashes to the same digest, regardless of map
// iteration order or how the caller assembled the value. Re-verification
// depends on this: the digest computed at signing time must be reproducible
// from the stored payload years later.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Marshal encodes v as JSON with all object keys sorted lexicographically at
// every nesting level. The value is first normalized through encoding/json so
// struct tags, json.Marshaler implementations and numeric widening behave
// exactly as they would for a regular marshal.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}

	var normalized any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&normalized); err != nil {
		return nil, fmt.Errorf("failed to normalize value: %w", err)
	}

	var buf bytes.Buffer
	if err := encode(&buf, normalized); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Hash returns the hex-encoded SHA-256 digest of the canonical encoding of v.
func Hash(v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyJSON, err := json.Marshal(k)
			if err != nil {
				return fmt.Errorf("failed to encode key %q: %w", k, err)
			}
			buf.Write(keyJSON)
			buf.WriteByte(':')
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case json.Number:
		buf.WriteString(val.String())
		return nil

	default:
		// string, bool, nil
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("failed to encode value: %w", err)
		}
		buf.Write(raw)
		return nil
	}
}
