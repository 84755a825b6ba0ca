// Package syncdoc is an embedded JSON document synchronization engine.
//
// A Document owns one JSON tree with a monotonically increasing version,
// a bounded operation history and a bounded snapshot history. Edits arrive
// as RFC 6902 style patches; replace operations are checked against the
// local history for conflicts and resolved by a pluggable ConflictResolver
// (last-writer-wins by default). Documents persist through a DocumentStore
// (memory, file, SQLite or S3) and recover from local records or snapshots
// after failures.
//
// A SyncManager coordinates many documents against a remote peer through a
// Transport. The built-in WebSocketTransport exchanges whole documents over
// HTTP and realtime patches over a websocket.
//
// The engine assumes one logical thread drives each manager and its
// documents, including transport callbacks; hosts with concurrent callers
// serialize access externally. Stores and audit loggers are safe to share.
package syncdoc
