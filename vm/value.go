package vm

import (
	"fmt"
	"reflect"
	"sort"
)

// Model values are JSON-like: nil, bool, float64 (plus int/int64 from
// packed tables), string, []any, map[string]any.

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return -1
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

// truthy follows the surface language's notion of truth: nil, false, zero
// and the empty string are falsy, everything else is truthy.
func truthy(v any) bool {
	switch n := v.(type) {
	case nil:
		return false
	case bool:
		return n
	case string:
		return n != ""
	default:
		if f, ok := toFloat(v); ok {
			return f != 0
		}
		return true
	}
}

// looseEqual compares scalars with numeric widening; containers compare by
// identity of structure.
func looseEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

// keyEqual compares two path keys after numeric normalization.
func keyEqual(a, b any) bool {
	return looseEqual(a, b)
}

// getFrom reads a key from a container, nil-safe on either side.
func getFrom(obj, key any) any {
	switch c := obj.(type) {
	case map[string]any:
		return c[keyString(key)]
	case []any:
		idx := toInt(key)
		if idx < 0 || idx >= len(c) {
			return nil
		}
		return c[idx]
	default:
		return nil
	}
}

func keyString(key any) string {
	switch k := key.(type) {
	case string:
		return k
	default:
		if n, ok := toInt64(key); ok {
			return fmt.Sprintf("%d", n)
		}
		return fmt.Sprintf("%v", key)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case int, int64, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
