package common

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// JobHash computes the deterministic fingerprint of (jobType, inputParams)
// used as the deduplication key. The canonical form sorts object keys
// lexicographically at every nesting depth, preserves array order, and
// keeps scalar values in their source form (numbers are not re-encoded, so
// 1 and 1.0 hash differently). Two submissions with semantically equal
// params hash identically regardless of key insertion order.
func JobHash(jobType string, inputParams json.RawMessage) (string, error) {
	params := inputParams
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage("null")
	}

	canonicalParams, err := canonicalizeJSON(params)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize input params: %w", err)
	}

	typeJSON, err := json.Marshal(jobType)
	if err != nil {
		return "", fmt.Errorf("failed to encode job type: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"job_type":`)
	buf.Write(typeJSON)
	buf.WriteString(`,"input_params":`)
	buf.Write(canonicalParams)
	buf.WriteString(`}`)

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// canonicalizeJSON rewrites a JSON document with object keys sorted at
// every depth. Decoding uses json.Number so numeric literals pass through
// unchanged instead of round-tripping through float64.
func canonicalizeJSON(raw json.RawMessage) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, value interface{}) error {
	switch v := value.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
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
			if err := writeCanonical(buf, v[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case []interface{}:
		buf.WriteByte('[')
		for i, item := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case json.Number:
		buf.WriteString(v.String())
		return nil

	default:
		// Strings, booleans, null
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode scalar: %w", err)
		}
		buf.Write(encoded)
		return nil
	}
}
