package syncdoc

import (
	"encoding/json"
	"strconv"
	"strings"
)

// The JSON tree is represented by the value union produced by encoding/json:
// map[string]any, []any, string, float64, bool and nil. Path resolution works
// purely against that union and never touches a serializer.

// splitPointer splits a JSON-Pointer style path into unescaped segments.
// A leading slash is stripped; "~1" unescapes to "/" and "~0" to "~".
// An empty path yields no segments.
func splitPointer(path string) []string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		p = strings.ReplaceAll(p, "~1", "/")
		p = strings.ReplaceAll(p, "~0", "~")
		parts[i] = p
	}
	return parts
}

// isDigits reports whether s is non-empty and composed only of ASCII digits.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// parseIndex converts a digit-only segment to a non-negative array index.
// Segments with signs, non-digits or values that overflow int fail, so a
// hostile path can never produce a negative index.
func parseIndex(s string) (int, bool) {
	if !isDigits(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// maxPadIndex bounds how far a set may grow an array. Larger indexes fail
// resolution instead of allocating.
const maxPadIndex = 1 << 16

// GetValueAtPath resolves path against root and returns the value it
// addresses. A digit-only segment indexes the current node when it is an
// array and names an object key otherwise. Missing keys, out-of-range
// indexes and descending into a scalar all resolve to nothing; the empty
// path resolves to root itself.
func GetValueAtPath(root any, path string) (any, bool) {
	segs := splitPointer(path)
	cur := root
	for _, seg := range segs {
		switch node := cur.(type) {
		case map[string]any:
			child, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = child
		case []any:
			idx, ok := parseIndex(seg)
			if !ok || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// parseLooseValue decodes a JSON-encoded value. Text that is not valid JSON
// is kept as a plain string literal rather than rejected.
func parseLooseValue(value string) any {
	var v any
	if err := json.Unmarshal([]byte(value), &v); err != nil {
		return value
	}
	return v
}

// SetValueAtPath stores a value at path inside root, creating missing
// intermediate objects along the way. Digit-only segments address arrays
// when the current node is an array: short arrays are padded with empty
// objects for intermediate segments and with nulls for the terminal
// segment. The value string is decoded as JSON, falling back to a string
// literal when it does not parse. Setting the root itself is not allowed.
func SetValueAtPath(root map[string]any, path string, value string) bool {
	segs := splitPointer(path)
	if len(segs) == 0 || root == nil {
		return false
	}
	_, ok := setSegments(root, segs, parseLooseValue(value))
	return ok
}

// setSegments descends node along segs and installs v at the terminal
// segment, returning the possibly replaced node. Arrays are returned by
// value so growth propagates back to the parent container.
func setSegments(node any, segs []string, v any) (any, bool) {
	seg := segs[0]
	last := len(segs) == 1

	switch cur := node.(type) {
	case map[string]any:
		if last {
			cur[seg] = v
			return cur, true
		}
		child, ok := cur[seg]
		if !ok || !isContainer(child) {
			child = map[string]any{}
		}
		newChild, ok := setSegments(child, segs[1:], v)
		if !ok {
			return cur, false
		}
		cur[seg] = newChild
		return cur, true

	case []any:
		idx, ok := parseIndex(seg)
		if !ok || idx > maxPadIndex {
			return cur, false
		}
		if last {
			for len(cur) <= idx {
				cur = append(cur, nil)
			}
			cur[idx] = v
			return cur, true
		}
		for len(cur) <= idx {
			cur = append(cur, map[string]any{})
		}
		if !isContainer(cur[idx]) {
			cur[idx] = map[string]any{}
		}
		newChild, ok := setSegments(cur[idx], segs[1:], v)
		if !ok {
			return cur, false
		}
		cur[idx] = newChild
		return cur, true

	default:
		return node, false
	}
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// copyJSONValue deep-copies a JSON tree value.
func copyJSONValue(v any) any {
	switch node := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(node))
		for k, child := range node {
			out[k] = copyJSONValue(child)
		}
		return out
	case []any:
		out := make([]any, len(node))
		for i, child := range node {
			out[i] = copyJSONValue(child)
		}
		return out
	default:
		return v
	}
}

// encodeJSONValue serializes a JSON tree value to its compact text form.
func encodeJSONValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
