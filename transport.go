package syncdoc

// DocumentData is the server-side representation of a document exchanged
// over a transport. Content is the serialized JSON tree.
type DocumentData struct {
	DocumentID string `json:"documentId"`
	Version    int64  `json:"version"`
	Content    string `json:"content"`
	CreatedAt  string `json:"createdAt,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

// Transport moves documents and patches between this client and a remote
// peer. All methods are asynchronous: they return after the request is
// issued and report the outcome through the supplied callbacks. Callback
// goroutine discipline is implementation-defined; the sync manager assumes
// callbacks arrive on a single logical thread.
type Transport interface {
	// Connect establishes the transport's connections.
	Connect() error

	// Close tears the transport down. Registered callbacks stop firing.
	Close() error

	// Connected reports whether the transport is usable.
	Connected() bool

	// LoadDocument fetches a document by id. Exactly one of onLoaded or
	// onError fires per call.
	LoadDocument(documentID string, onLoaded func(DocumentData), onError func(documentID string, err error))

	// SaveDocument stores a full document remotely. Exactly one of onSaved
	// or onError fires per call.
	SaveDocument(doc DocumentData, onSaved func(documentID string), onError func(documentID string, err error))

	// SendPatch submits a patch to the remote peer. Exactly one of onAck or
	// onError fires per call.
	SendPatch(p Patch, onAck func(documentID string), onError func(documentID string, err error))

	// RegisterPatchReceived installs the handler for patches pushed by the
	// remote peer. At most one handler is active; a later call replaces the
	// earlier one.
	RegisterPatchReceived(fn func(Patch))
}
