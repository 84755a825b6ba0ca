package syncdoc

import (
	"fmt"
	"reflect"
)

// RFC 6902 apply semantics for the six operation kinds, executed directly
// against the decoded JSON tree. Unlike SetValueAtPath, these are strict:
// parents must exist, remove and replace require a present target, and a
// failed test aborts the patch.

// applyOperation mutates content according to op. The root object itself is
// never replaced, so callers can hold on to the map across operations.
func applyOperation(content map[string]any, op Operation) error {
	switch op.Type {
	case OpAdd:
		return addAtPath(content, op.Path, parseLooseValue(op.Value))
	case OpRemove:
		_, err := removeAtPath(content, op.Path)
		return err
	case OpReplace:
		return replaceAtPath(content, op.Path, parseLooseValue(op.Value))
	case OpMove:
		if op.FromPath == "" {
			return fmt.Errorf("%w: move without from path", ErrInvalidOperation)
		}
		moved, err := removeAtPath(content, op.FromPath)
		if err != nil {
			return fmt.Errorf("move %s: %w", op.FromPath, err)
		}
		return addValueAtPath(content, op.Path, moved)
	case OpCopy:
		if op.FromPath == "" {
			return fmt.Errorf("%w: copy without from path", ErrInvalidOperation)
		}
		src, ok := GetValueAtPath(content, op.FromPath)
		if !ok {
			return fmt.Errorf("copy %s: %w", op.FromPath, ErrPathNotFound)
		}
		return addValueAtPath(content, op.Path, copyJSONValue(src))
	case OpTest:
		cur, ok := GetValueAtPath(content, op.Path)
		if !ok {
			return fmt.Errorf("test %s: %w", op.Path, ErrPathNotFound)
		}
		if !reflect.DeepEqual(cur, parseLooseValue(op.Value)) {
			return fmt.Errorf("%w at %s", ErrTestFailed, op.Path)
		}
		return nil
	default:
		return fmt.Errorf("%w: type %d", ErrInvalidOperation, op.Type)
	}
}

// segEdit receives the parent container and terminal segment of a path and
// returns the parent's replacement (arrays reallocate on insert/remove).
type segEdit func(parent any, seg string) (any, error)

// editPath walks node down segs and applies edit at the terminal segment,
// threading replaced containers back up the tree.
func editPath(node any, segs []string, edit segEdit) (any, error) {
	if len(segs) == 1 {
		return edit(node, segs[0])
	}
	switch cur := node.(type) {
	case map[string]any:
		child, ok := cur[segs[0]]
		if !ok {
			return nil, ErrPathNotFound
		}
		newChild, err := editPath(child, segs[1:], edit)
		if err != nil {
			return nil, err
		}
		cur[segs[0]] = newChild
		return cur, nil
	case []any:
		idx, ok := parseIndex(segs[0])
		if !ok || idx >= len(cur) {
			return nil, ErrPathNotFound
		}
		newChild, err := editPath(cur[idx], segs[1:], edit)
		if err != nil {
			return nil, err
		}
		cur[idx] = newChild
		return cur, nil
	default:
		return nil, ErrPathNotFound
	}
}

func addAtPath(content map[string]any, path string, v any) error {
	return addValueAtPath(content, path, v)
}

// addValueAtPath inserts v at path. Object targets create or overwrite the
// key; array targets insert before the index, with "-" meaning append.
func addValueAtPath(content map[string]any, path string, v any) error {
	segs := splitPointer(path)
	if len(segs) == 0 {
		return fmt.Errorf("%w: cannot add at document root", ErrInvalidOperation)
	}
	_, err := editPath(content, segs, func(parent any, seg string) (any, error) {
		switch p := parent.(type) {
		case map[string]any:
			p[seg] = v
			return p, nil
		case []any:
			if seg == "-" {
				return append(p, v), nil
			}
			idx, ok := parseIndex(seg)
			if !ok {
				return nil, fmt.Errorf("%w: array index %q", ErrInvalidOperation, seg)
			}
			if idx > len(p) {
				return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidOperation, idx)
			}
			p = append(p, nil)
			copy(p[idx+1:], p[idx:])
			p[idx] = v
			return p, nil
		default:
			return nil, ErrPathNotFound
		}
	})
	if err != nil {
		return fmt.Errorf("add %s: %w", path, err)
	}
	return nil
}

// removeAtPath deletes the node at path and returns the removed value.
func removeAtPath(content map[string]any, path string) (any, error) {
	segs := splitPointer(path)
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: cannot remove document root", ErrInvalidOperation)
	}
	var removed any
	_, err := editPath(content, segs, func(parent any, seg string) (any, error) {
		switch p := parent.(type) {
		case map[string]any:
			v, ok := p[seg]
			if !ok {
				return nil, ErrPathNotFound
			}
			removed = v
			delete(p, seg)
			return p, nil
		case []any:
			idx, ok := parseIndex(seg)
			if !ok || idx >= len(p) {
				return nil, ErrPathNotFound
			}
			removed = p[idx]
			return append(p[:idx], p[idx+1:]...), nil
		default:
			return nil, ErrPathNotFound
		}
	})
	if err != nil {
		return nil, fmt.Errorf("remove %s: %w", path, err)
	}
	return removed, nil
}

// replaceAtPath overwrites the existing node at path; the target must exist.
func replaceAtPath(content map[string]any, path string, v any) error {
	segs := splitPointer(path)
	if len(segs) == 0 {
		return fmt.Errorf("%w: cannot replace document root", ErrInvalidOperation)
	}
	_, err := editPath(content, segs, func(parent any, seg string) (any, error) {
		switch p := parent.(type) {
		case map[string]any:
			if _, ok := p[seg]; !ok {
				return nil, ErrPathNotFound
			}
			p[seg] = v
			return p, nil
		case []any:
			idx, ok := parseIndex(seg)
			if !ok || idx >= len(p) {
				return nil, ErrPathNotFound
			}
			p[idx] = v
			return p, nil
		default:
			return nil, ErrPathNotFound
		}
	})
	if err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
