package syncdoc

import (
	"errors"
	"reflect"
	"testing"
)

func TestApplyOperationAdd(t *testing.T) {
	t.Run("ObjectKey", func(t *testing.T) {
		tree := parseTree(t, `{}`)
		op := Operation{Type: OpAdd, Path: "/name", Value: `"alice"`}
		if err := applyOperation(tree, op); err != nil {
			t.Fatalf("add: %v", err)
		}
		if tree["name"] != "alice" {
			t.Errorf("got %v", tree["name"])
		}
	})

	t.Run("ObjectKeyOverwrite", func(t *testing.T) {
		tree := parseTree(t, `{"name": "alice"}`)
		op := Operation{Type: OpAdd, Path: "/name", Value: `"bob"`}
		if err := applyOperation(tree, op); err != nil {
			t.Fatalf("add: %v", err)
		}
		if tree["name"] != "bob" {
			t.Errorf("add should overwrite, got %v", tree["name"])
		}
	})

	t.Run("ArrayInsertBefore", func(t *testing.T) {
		tree := parseTree(t, `{"arr": [1, 3]}`)
		op := Operation{Type: OpAdd, Path: "/arr/1", Value: "2"}
		if err := applyOperation(tree, op); err != nil {
			t.Fatalf("add: %v", err)
		}
		want := []any{float64(1), float64(2), float64(3)}
		if !reflect.DeepEqual(tree["arr"], want) {
			t.Errorf("got %v, want %v", tree["arr"], want)
		}
	})

	t.Run("ArrayAppendDash", func(t *testing.T) {
		tree := parseTree(t, `{"arr": [1]}`)
		op := Operation{Type: OpAdd, Path: "/arr/-", Value: "2"}
		if err := applyOperation(tree, op); err != nil {
			t.Fatalf("add: %v", err)
		}
		want := []any{float64(1), float64(2)}
		if !reflect.DeepEqual(tree["arr"], want) {
			t.Errorf("got %v, want %v", tree["arr"], want)
		}
	})

	t.Run("ArrayIndexPastEnd", func(t *testing.T) {
		tree := parseTree(t, `{"arr": [1]}`)
		op := Operation{Type: OpAdd, Path: "/arr/5", Value: "2"}
		if err := applyOperation(tree, op); err == nil {
			t.Error("expected error for index past end")
		}
	})

	t.Run("MissingParent", func(t *testing.T) {
		tree := parseTree(t, `{}`)
		op := Operation{Type: OpAdd, Path: "/a/b", Value: "1"}
		err := applyOperation(tree, op)
		if !errors.Is(err, ErrPathNotFound) {
			t.Errorf("got %v, want ErrPathNotFound", err)
		}
	})
}

func TestApplyOperationRemove(t *testing.T) {
	t.Run("ObjectKey", func(t *testing.T) {
		tree := parseTree(t, `{"a": 1, "b": 2}`)
		if err := applyOperation(tree, Operation{Type: OpRemove, Path: "/a"}); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if _, exists := tree["a"]; exists {
			t.Error("key should be gone")
		}
	})

	t.Run("ArrayElementShifts", func(t *testing.T) {
		tree := parseTree(t, `{"arr": [1, 2, 3]}`)
		if err := applyOperation(tree, Operation{Type: OpRemove, Path: "/arr/1"}); err != nil {
			t.Fatalf("remove: %v", err)
		}
		want := []any{float64(1), float64(3)}
		if !reflect.DeepEqual(tree["arr"], want) {
			t.Errorf("got %v, want %v", tree["arr"], want)
		}
	})

	t.Run("AbsentTarget", func(t *testing.T) {
		tree := parseTree(t, `{}`)
		err := applyOperation(tree, Operation{Type: OpRemove, Path: "/missing"})
		if !errors.Is(err, ErrPathNotFound) {
			t.Errorf("got %v, want ErrPathNotFound", err)
		}
	})
}

func TestApplyOperationReplace(t *testing.T) {
	t.Run("ExistingTarget", func(t *testing.T) {
		tree := parseTree(t, `{"a": 1}`)
		if err := applyOperation(tree, Operation{Type: OpReplace, Path: "/a", Value: "2"}); err != nil {
			t.Fatalf("replace: %v", err)
		}
		if tree["a"] != float64(2) {
			t.Errorf("got %v", tree["a"])
		}
	})

	t.Run("AbsentTargetFails", func(t *testing.T) {
		tree := parseTree(t, `{}`)
		err := applyOperation(tree, Operation{Type: OpReplace, Path: "/a", Value: "2"})
		if !errors.Is(err, ErrPathNotFound) {
			t.Errorf("replace must not create, got %v", err)
		}
	})

	t.Run("OverflowingArrayIndex", func(t *testing.T) {
		tree := parseTree(t, `{"arr": [1, 2, 3]}`)
		op := Operation{Type: OpReplace, Path: "/arr/9223372036854775808", Value: "9"}
		err := applyOperation(tree, op)
		if !errors.Is(err, ErrPathNotFound) {
			t.Errorf("got %v, want ErrPathNotFound", err)
		}
	})
}

func TestApplyOperationMove(t *testing.T) {
	t.Run("BetweenKeys", func(t *testing.T) {
		tree := parseTree(t, `{"a": {"x": 1}}`)
		op := Operation{Type: OpMove, Path: "/b", FromPath: "/a"}
		if err := applyOperation(tree, op); err != nil {
			t.Fatalf("move: %v", err)
		}
		if _, exists := tree["a"]; exists {
			t.Error("source should be gone")
		}
		if v, _ := GetValueAtPath(tree, "/b/x"); v != float64(1) {
			t.Errorf("got %v", v)
		}
	})

	t.Run("WithinArray", func(t *testing.T) {
		// Remove happens first, so the target index addresses the
		// already-shrunk array.
		tree := parseTree(t, `{"arr": ["a", "b", "c"]}`)
		op := Operation{Type: OpMove, Path: "/arr/2", FromPath: "/arr/0"}
		if err := applyOperation(tree, op); err != nil {
			t.Fatalf("move: %v", err)
		}
		want := []any{"b", "c", "a"}
		if !reflect.DeepEqual(tree["arr"], want) {
			t.Errorf("got %v, want %v", tree["arr"], want)
		}
	})

	t.Run("MissingFromPath", func(t *testing.T) {
		tree := parseTree(t, `{"a": 1}`)
		err := applyOperation(tree, Operation{Type: OpMove, Path: "/b"})
		if !errors.Is(err, ErrInvalidOperation) {
			t.Errorf("got %v, want ErrInvalidOperation", err)
		}
	})

	t.Run("AbsentSource", func(t *testing.T) {
		tree := parseTree(t, `{}`)
		err := applyOperation(tree, Operation{Type: OpMove, Path: "/b", FromPath: "/a"})
		if !errors.Is(err, ErrPathNotFound) {
			t.Errorf("got %v, want ErrPathNotFound", err)
		}
	})
}

func TestApplyOperationCopy(t *testing.T) {
	t.Run("DeepCopyIsIndependent", func(t *testing.T) {
		tree := parseTree(t, `{"src": {"n": 1}}`)
		op := Operation{Type: OpCopy, Path: "/dst", FromPath: "/src"}
		if err := applyOperation(tree, op); err != nil {
			t.Fatalf("copy: %v", err)
		}
		tree["src"].(map[string]any)["n"] = float64(99)
		if v, _ := GetValueAtPath(tree, "/dst/n"); v != float64(1) {
			t.Errorf("copy should be independent of source, got %v", v)
		}
	})

	t.Run("AbsentSource", func(t *testing.T) {
		tree := parseTree(t, `{}`)
		err := applyOperation(tree, Operation{Type: OpCopy, Path: "/dst", FromPath: "/src"})
		if !errors.Is(err, ErrPathNotFound) {
			t.Errorf("got %v, want ErrPathNotFound", err)
		}
	})
}

func TestApplyOperationTest(t *testing.T) {
	tree := parseTree(t, `{"a": {"b": [1, 2]}, "s": "hi"}`)

	t.Run("EqualDeep", func(t *testing.T) {
		op := Operation{Type: OpTest, Path: "/a", Value: `{"b": [1, 2]}`}
		if err := applyOperation(tree, op); err != nil {
			t.Errorf("deep-equal test should pass: %v", err)
		}
	})

	t.Run("Mismatch", func(t *testing.T) {
		op := Operation{Type: OpTest, Path: "/s", Value: `"bye"`}
		err := applyOperation(tree, op)
		if !errors.Is(err, ErrTestFailed) {
			t.Errorf("got %v, want ErrTestFailed", err)
		}
	})

	t.Run("AbsentPath", func(t *testing.T) {
		op := Operation{Type: OpTest, Path: "/missing", Value: "1"}
		err := applyOperation(tree, op)
		if !errors.Is(err, ErrPathNotFound) {
			t.Errorf("got %v, want ErrPathNotFound", err)
		}
	})

	t.Run("DoesNotMutate", func(t *testing.T) {
		before := encodeJSONValue(tree)
		applyOperation(tree, Operation{Type: OpTest, Path: "/s", Value: `"nope"`})
		if encodeJSONValue(tree) != before {
			t.Error("test operation must not mutate the tree")
		}
	})
}
