// Package remote adapts object stores to the storage contract.
//
// A Client wraps one backend SDK and exposes the handful of calls the
// Adapter needs:
// - Get/Put/Delete/Stat for whole objects
// - Mkdir for stores with folders
// - optional SessionClient for chunked uploads
//
// The Adapter layers the write-back cache, append emulation and chunked
// upload protocol on top, so every backend behaves the same way.
package remote

import (
	"context"
	"time"
)

// PutMode selects the commit semantics of a single upload.
type PutMode uint8

const (
	// PutOverwrite replaces any existing object.
	PutOverwrite PutMode = iota
	// PutCreate only succeeds when the object does not exist yet.
	PutCreate
)

func (m PutMode) String() string {
	if m == PutCreate {
		return "create"
	}
	return "overwrite"
}

// Client performs backend round trips. Every method is one network call.
//
// Implementations normalise backend errors into the storage taxonomy:
// missing objects return storage.ErrNotFound, existing folders
// storage.ErrAlreadyExists, auth failures storage.ErrCredential and
// timeouts storage.ErrTransient (storage.ErrUploadTimeout on Put).
type Client interface {
	// Name identifies the backend in logs.
	Name() string

	// Get downloads the whole object.
	Get(ctx context.Context, path string) ([]byte, error)

	// Put uploads data in a single request.
	Put(ctx context.Context, path string, data []byte, mode PutMode) error

	// Delete removes the object.
	Delete(ctx context.Context, path string) error

	// Stat returns the object size in bytes.
	Stat(ctx context.Context, path string) (int64, error)

	// Mkdir creates a folder. Flat stores return storage.ErrUnsupported.
	Mkdir(ctx context.Context, path string) error
}

// Cursor tracks an open upload session: the session id issued by the
// backend and the number of bytes already transmitted.
type Cursor struct {
	SessionID string
	Offset    uint64
}

// SessionClient is implemented by clients that support multi-request
// uploads for payloads above the single-request ceiling.
type SessionClient interface {
	// StartSession opens a session carrying the first chunk.
	StartSession(ctx context.Context, chunk []byte) (sessionID string, err error)

	// AppendSession sends the chunk that starts at cur.Offset.
	AppendSession(ctx context.Context, cur Cursor, chunk []byte) error

	// FinishSession commits everything sent so far to path.
	FinishSession(ctx context.Context, cur Cursor, path string, mode PutMode) error
}

// TokenSource returns a currently valid access token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}
