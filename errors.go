package syncdoc

import "errors"

// Sentinel errors returned by documents, stores and the sync manager.
// Callers match them with errors.Is; wrapped variants carry the detail.
var (
	// ErrDocumentIDMismatch is returned when a patch, snapshot or persisted
	// record targets a different document id.
	ErrDocumentIDMismatch = errors.New("document id mismatch")

	// ErrPathNotFound is returned when an operation references a path that
	// does not resolve in the current content.
	ErrPathNotFound = errors.New("path not found")

	// ErrTestFailed is returned when a test operation's expected value does
	// not match the value at its path.
	ErrTestFailed = errors.New("test operation failed")

	// ErrInvalidOperation is returned for operations that are structurally
	// unusable (unknown type, bad array index, missing from path).
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrRecordNotFound is returned by stores when no persisted record
	// exists for a document id.
	ErrRecordNotFound = errors.New("record not found")

	// ErrNoStore is returned when a persistence operation is requested on a
	// document with no store configured.
	ErrNoStore = errors.New("no document store configured")

	// ErrNoTransport is returned when a network operation is requested on a
	// manager with no transport configured.
	ErrNoTransport = errors.New("no transport configured")

	// ErrRecoveryExhausted is returned when both local load and snapshot
	// restore failed during document recovery.
	ErrRecoveryExhausted = errors.New("recovery exhausted: no usable local record or snapshot")
)
