// Package jsonpatch implements the patching step of the profile blob
// engine (§4.3.4): given a JSON blob the caller has read under a row
// lock, it applies a structured patch — deep merge or functional
// operators — and returns the bytes for the caller to write back within
// the same transaction. Used for both group and participation profiles.
//
// Patches are applied path-by-path against the raw JSON bytes with
// gjson/sjson rather than a full unmarshal-merge-remarshal round trip,
// so untouched parts of the blob are left byte-for-byte as stored.
package jsonpatch

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// opFunc is the leaf shape {"@func": op, "@value": v} (§4.3.4, §9).
const (
	opKeyFunc  = "@func"
	opKeyValue = "@value"
	opIncr     = "++"
	opDecr     = "--"
)

// Replace marshals patch as the new blob wholesale (merge=false).
func Replace(patch map[string]interface{}) ([]byte, error) {
	if patch == nil {
		patch = map[string]interface{}{}
	}
	return json.Marshal(patch)
}

// Merge deep-merges patch into raw (merge=true): scalar leaves
// overwrite, dict leaves recurse, and operator dicts apply arithmetic
// to the prior scalar (missing prior values default to 0). An unknown
// operator is an error, never silently ignored (§9).
func Merge(raw []byte, patch map[string]interface{}) ([]byte, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("jsonpatch: existing blob is not valid JSON")
	}

	result := raw
	for key, value := range patch {
		merged, err := mergeAt(result, key, value)
		if err != nil {
			return nil, err
		}
		result = merged
	}
	return result, nil
}

func mergeAt(raw []byte, path string, value interface{}) ([]byte, error) {
	asMap, isMap := value.(map[string]interface{})
	if !isMap {
		return sjson.SetBytes(raw, path, value)
	}

	if op, hasOp := asMap[opKeyFunc]; hasOp {
		return applyOp(raw, path, op, asMap[opKeyValue])
	}

	result := raw
	for k, v := range asMap {
		merged, err := mergeAt(result, path+"."+k, v)
		if err != nil {
			return nil, err
		}
		result = merged
	}
	return result, nil
}

func applyOp(raw []byte, path string, op interface{}, operand interface{}) ([]byte, error) {
	opName, ok := op.(string)
	if !ok {
		return nil, fmt.Errorf("jsonpatch: %q operator name must be a string", opKeyFunc)
	}

	delta, err := toFloat(operand)
	if err != nil {
		return nil, fmt.Errorf("jsonpatch: %s %s: %w", path, opName, err)
	}

	prior := gjson.GetBytes(raw, path)
	var current float64
	if prior.Exists() {
		current = prior.Float()
	}

	var next float64
	switch opName {
	case opIncr:
		next = current + delta
	case opDecr:
		next = current - delta
	default:
		return nil, fmt.Errorf("jsonpatch: unknown operator %q at %s", opName, path)
	}

	if next == float64(int64(next)) {
		return sjson.SetBytes(raw, path, int64(next))
	}
	return sjson.SetBytes(raw, path, next)
}

func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case nil:
		return 1, nil
	default:
		return 0, fmt.Errorf("non-numeric @value %v", v)
	}
}
