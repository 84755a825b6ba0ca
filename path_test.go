package syncdoc

import (
	"encoding/json"
	"reflect"
	"testing"
)

func parseTree(t *testing.T, raw string) map[string]any {
	t.Helper()
	var tree map[string]any
	if err := json.Unmarshal([]byte(raw), &tree); err != nil {
		t.Fatalf("parse tree: %v", err)
	}
	return tree
}

func TestGetValueAtPath(t *testing.T) {
	tree := parseTree(t, `{
		"name": "alice",
		"profile": {"age": 30, "tags": ["a", "b", "c"]},
		"items": [{"id": 1}, {"id": 2}],
		"7": "field-named-seven"
	}`)

	t.Run("NestedObject", func(t *testing.T) {
		v, ok := GetValueAtPath(tree, "/profile/age")
		if !ok {
			t.Fatal("expected path to resolve")
		}
		if v != float64(30) {
			t.Errorf("got %v, want 30", v)
		}
	})

	t.Run("ArrayIndex", func(t *testing.T) {
		v, ok := GetValueAtPath(tree, "/profile/tags/1")
		if !ok || v != "b" {
			t.Errorf("got %v ok=%v, want b", v, ok)
		}
	})

	t.Run("ArrayOfObjects", func(t *testing.T) {
		v, ok := GetValueAtPath(tree, "/items/1/id")
		if !ok || v != float64(2) {
			t.Errorf("got %v ok=%v, want 2", v, ok)
		}
	})

	t.Run("NumericSegmentOnObjectIsKey", func(t *testing.T) {
		v, ok := GetValueAtPath(tree, "/7")
		if !ok || v != "field-named-seven" {
			t.Errorf("got %v ok=%v, want field-named-seven", v, ok)
		}
	})

	t.Run("MissingKey", func(t *testing.T) {
		if _, ok := GetValueAtPath(tree, "/profile/missing"); ok {
			t.Error("expected miss for absent key")
		}
	})

	t.Run("IndexOutOfRange", func(t *testing.T) {
		if _, ok := GetValueAtPath(tree, "/profile/tags/9"); ok {
			t.Error("expected miss for out-of-range index")
		}
	})

	t.Run("NonNumericArraySegment", func(t *testing.T) {
		if _, ok := GetValueAtPath(tree, "/profile/tags/x"); ok {
			t.Error("expected miss for non-numeric index")
		}
	})

	t.Run("DescendIntoScalar", func(t *testing.T) {
		if _, ok := GetValueAtPath(tree, "/name/deeper"); ok {
			t.Error("expected miss when descending into a string")
		}
	})

	t.Run("OverflowingIndexResolvesToNothing", func(t *testing.T) {
		// 2^63 wraps negative under naive conversion; resolution must
		// fail instead.
		if _, ok := GetValueAtPath(tree, "/profile/tags/9223372036854775808"); ok {
			t.Error("expected miss for index overflowing int")
		}
		if _, ok := GetValueAtPath(tree, "/profile/tags/99999999999999999999999999"); ok {
			t.Error("expected miss for absurdly long index")
		}
	})

	t.Run("EmptyPathIsRoot", func(t *testing.T) {
		v, ok := GetValueAtPath(tree, "")
		if !ok || !reflect.DeepEqual(v, tree) {
			t.Error("empty path should resolve to the root")
		}
	})

	t.Run("EscapedSegments", func(t *testing.T) {
		escaped := parseTree(t, `{"a/b": 1, "c~d": 2}`)
		if v, ok := GetValueAtPath(escaped, "/a~1b"); !ok || v != float64(1) {
			t.Errorf("~1 escape: got %v ok=%v", v, ok)
		}
		if v, ok := GetValueAtPath(escaped, "/c~0d"); !ok || v != float64(2) {
			t.Errorf("~0 escape: got %v ok=%v", v, ok)
		}
	})
}

func TestSetValueAtPath(t *testing.T) {
	t.Run("CreatesIntermediateObjects", func(t *testing.T) {
		tree := map[string]any{}
		if !SetValueAtPath(tree, "/a/b/c", "42") {
			t.Fatal("set failed")
		}
		v, ok := GetValueAtPath(tree, "/a/b/c")
		if !ok || v != float64(42) {
			t.Errorf("got %v ok=%v, want 42", v, ok)
		}
	})

	t.Run("OverwritesExisting", func(t *testing.T) {
		tree := parseTree(t, `{"a": {"b": 1}}`)
		if !SetValueAtPath(tree, "/a/b", `"two"`) {
			t.Fatal("set failed")
		}
		if v, _ := GetValueAtPath(tree, "/a/b"); v != "two" {
			t.Errorf("got %v, want two", v)
		}
	})

	t.Run("ReplacesScalarIntermediate", func(t *testing.T) {
		tree := parseTree(t, `{"a": 5}`)
		if !SetValueAtPath(tree, "/a/b", "1") {
			t.Fatal("set failed")
		}
		if v, _ := GetValueAtPath(tree, "/a/b"); v != float64(1) {
			t.Errorf("got %v, want 1", v)
		}
	})

	t.Run("PadsArrayWithNulls", func(t *testing.T) {
		tree := parseTree(t, `{"arr": ["x"]}`)
		if !SetValueAtPath(tree, "/arr/3", "true") {
			t.Fatal("set failed")
		}
		arr, _ := GetValueAtPath(tree, "/arr")
		want := []any{"x", nil, nil, true}
		if !reflect.DeepEqual(arr, want) {
			t.Errorf("got %v, want %v", arr, want)
		}
	})

	t.Run("PadsArrayWithObjectsForIntermediate", func(t *testing.T) {
		tree := parseTree(t, `{"arr": []}`)
		if !SetValueAtPath(tree, "/arr/1/name", `"bob"`) {
			t.Fatal("set failed")
		}
		if v, _ := GetValueAtPath(tree, "/arr/1/name"); v != "bob" {
			t.Errorf("got %v, want bob", v)
		}
		if v, ok := GetValueAtPath(tree, "/arr/0"); !ok || !reflect.DeepEqual(v, map[string]any{}) {
			t.Errorf("padding element: got %v ok=%v, want empty object", v, ok)
		}
	})

	t.Run("NonJSONValueStoredAsString", func(t *testing.T) {
		tree := map[string]any{}
		if !SetValueAtPath(tree, "/raw", "not json at all") {
			t.Fatal("set failed")
		}
		if v, _ := GetValueAtPath(tree, "/raw"); v != "not json at all" {
			t.Errorf("got %v", v)
		}
	})

	t.Run("EmptyPathRejected", func(t *testing.T) {
		if SetValueAtPath(map[string]any{}, "", "1") {
			t.Error("setting the root should fail")
		}
	})

	t.Run("NonNumericArraySegmentRejected", func(t *testing.T) {
		tree := parseTree(t, `{"arr": [1, 2]}`)
		if SetValueAtPath(tree, "/arr/x", "3") {
			t.Error("non-numeric segment on array should fail")
		}
	})

	t.Run("OverflowingIndexRejected", func(t *testing.T) {
		tree := parseTree(t, `{"arr": [1]}`)
		if SetValueAtPath(tree, "/arr/9223372036854775808", "2") {
			t.Error("index overflowing int should fail")
		}
	})

	t.Run("HugeIndexPaddingRejected", func(t *testing.T) {
		// A valid but enormous index must fail rather than allocate the
		// padding.
		tree := parseTree(t, `{"arr": [1]}`)
		if SetValueAtPath(tree, "/arr/1000000000000", "2") {
			t.Error("padding to a huge index should fail")
		}
		if SetValueAtPath(tree, "/arr/1000000000000/name", `"x"`) {
			t.Error("intermediate padding to a huge index should fail")
		}
	})
}
