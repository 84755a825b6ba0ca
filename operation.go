package syncdoc

import (
	"encoding/json"
	"fmt"
	"time"
)

// OperationType identifies the kind of edit an operation performs.
type OperationType int

const (
	// OpAdd inserts a value at a path.
	OpAdd OperationType = iota
	// OpRemove deletes the value at a path.
	OpRemove
	// OpReplace overwrites an existing value at a path.
	OpReplace
	// OpMove removes the value at a source path and adds it at a target path.
	OpMove
	// OpCopy adds a deep copy of the value at a source path at a target path.
	OpCopy
	// OpTest checks that the value at a path equals an expected value.
	OpTest
)

// String returns the display name used in audit log entries.
func (t OperationType) String() string {
	switch t {
	case OpAdd:
		return "Add"
	case OpRemove:
		return "Remove"
	case OpReplace:
		return "Replace"
	case OpMove:
		return "Move"
	case OpCopy:
		return "Copy"
	case OpTest:
		return "Test"
	default:
		return "Unknown"
	}
}

// wireName returns the RFC 6902 operation name used on the wire.
func (t OperationType) wireName() string {
	switch t {
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	case OpReplace:
		return "replace"
	case OpMove:
		return "move"
	case OpCopy:
		return "copy"
	case OpTest:
		return "test"
	default:
		return ""
	}
}

// parseOperationType maps a wire name back to an OperationType.
func parseOperationType(name string) (OperationType, error) {
	switch name {
	case "add":
		return OpAdd, nil
	case "remove":
		return OpRemove, nil
	case "replace":
		return OpReplace, nil
	case "move":
		return OpMove, nil
	case "copy":
		return OpCopy, nil
	case "test":
		return OpTest, nil
	default:
		return 0, fmt.Errorf("%w: unknown op %q", ErrInvalidOperation, name)
	}
}

// Operation is a single edit against a document. Value carries the operand
// as JSON text for add, replace and test; FromPath is set for move and copy.
// Operations are immutable once created.
type Operation struct {
	Type      OperationType `json:"type"`
	Path      string        `json:"path"`
	FromPath  string        `json:"fromPath,omitempty"`
	Value     string        `json:"value,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	ClientID  string        `json:"clientId,omitempty"`
}

// NewOperation builds an operation stamped with the current time.
func NewOperation(t OperationType, path, value, fromPath string) Operation {
	return Operation{
		Type:      t,
		Path:      path,
		Value:     value,
		FromPath:  fromPath,
		Timestamp: time.Now().UTC(),
	}
}

// Patch is an ordered batch of operations applied atomically against one
// document version.
type Patch struct {
	DocumentID  string      `json:"documentId"`
	BaseVersion int64       `json:"baseVersion"`
	Operations  []Operation `json:"operations"`
	Timestamp   time.Time   `json:"timestamp"`
	ClientID    string      `json:"clientId,omitempty"`
}

// NewPatch builds a patch stamped with the current time.
func NewPatch(documentID string, baseVersion int64, ops []Operation) Patch {
	return Patch{
		DocumentID:  documentID,
		BaseVersion: baseVersion,
		Operations:  ops,
		Timestamp:   time.Now().UTC(),
	}
}

// Snapshot is an immutable point-in-time copy of document content.
type Snapshot struct {
	DocumentID string    `json:"documentId"`
	Version    int64     `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
	Content    string    `json:"content"`
}

// wireOperation is the transport encoding of an Operation.
type wireOperation struct {
	Op        string          `json:"op"`
	Path      string          `json:"path"`
	From      string          `json:"from,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
	Timestamp *time.Time      `json:"timestamp,omitempty"`
}

// wirePatch is the transport encoding of a Patch.
type wirePatch struct {
	Type        string          `json:"type"`
	DocumentID  string          `json:"documentId"`
	ClientID    string          `json:"clientId,omitempty"`
	BaseVersion int64           `json:"baseVersion"`
	Operations  []wireOperation `json:"operations"`
	Timestamp   *time.Time      `json:"timestamp,omitempty"`
}

// EncodeWirePatch serializes a patch into its wire form: op names are the
// RFC 6902 strings, "from" appears only for move/copy and "value" only for
// add/replace/test.
func EncodeWirePatch(p Patch) ([]byte, error) {
	wp := wirePatch{
		Type:        "patch",
		DocumentID:  p.DocumentID,
		ClientID:    p.ClientID,
		BaseVersion: p.BaseVersion,
		Operations:  make([]wireOperation, 0, len(p.Operations)),
	}
	if !p.Timestamp.IsZero() {
		ts := p.Timestamp
		wp.Timestamp = &ts
	}
	for _, op := range p.Operations {
		name := op.Type.wireName()
		if name == "" {
			return nil, fmt.Errorf("%w: type %d", ErrInvalidOperation, op.Type)
		}
		wo := wireOperation{Op: name, Path: op.Path}
		switch op.Type {
		case OpMove, OpCopy:
			wo.From = op.FromPath
		case OpAdd, OpReplace, OpTest:
			if op.Value != "" {
				if json.Valid([]byte(op.Value)) {
					wo.Value = json.RawMessage(op.Value)
				} else {
					enc, err := json.Marshal(op.Value)
					if err != nil {
						return nil, fmt.Errorf("encode op value: %w", err)
					}
					wo.Value = json.RawMessage(enc)
				}
			}
		}
		if !op.Timestamp.IsZero() {
			ts := op.Timestamp
			wo.Timestamp = &ts
		}
		wp.Operations = append(wp.Operations, wo)
	}
	return json.Marshal(wp)
}

// DecodeWirePatch parses a wire patch frame. Operations missing their own
// timestamp inherit the patch timestamp; a missing patch timestamp falls
// back to the arrival time.
func DecodeWirePatch(data []byte) (Patch, error) {
	var wp wirePatch
	if err := json.Unmarshal(data, &wp); err != nil {
		return Patch{}, fmt.Errorf("parse patch: %w", err)
	}
	if wp.Type != "" && wp.Type != "patch" {
		return Patch{}, fmt.Errorf("%w: frame type %q", ErrInvalidOperation, wp.Type)
	}

	p := Patch{
		DocumentID:  wp.DocumentID,
		ClientID:    wp.ClientID,
		BaseVersion: wp.BaseVersion,
		Operations:  make([]Operation, 0, len(wp.Operations)),
		Timestamp:   time.Now().UTC(),
	}
	if wp.Timestamp != nil {
		p.Timestamp = *wp.Timestamp
	}
	for _, wo := range wp.Operations {
		t, err := parseOperationType(wo.Op)
		if err != nil {
			return Patch{}, err
		}
		op := Operation{
			Type:      t,
			Path:      wo.Path,
			FromPath:  wo.From,
			Value:     string(wo.Value),
			ClientID:  wp.ClientID,
			Timestamp: p.Timestamp,
		}
		if wo.Timestamp != nil {
			op.Timestamp = *wo.Timestamp
		}
		p.Operations = append(p.Operations, op)
	}
	return p, nil
}
