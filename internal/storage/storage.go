// Package storage defines the file-storage contract shared by every backend.
//
// The Storage interface is deliberately small and synchronous:
//   - Read/Write/Delete/Exists/Size for object access
//   - MakeDirs for backends with a directory model
//   - Init/Cleanup for two-phase setup and deterministic flush
//   - Token for backends that need a refreshed credential
//
// Content is either text or binary; which one is decided by the mode used
// to produce it, not stored alongside the object.
package storage

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Storage is the capability set every backend satisfies.
type Storage interface {
	// Read returns the object at path. Text mode decodes to text, binary
	// mode returns the raw bytes. Missing objects yield ErrNotFound.
	Read(ctx context.Context, path string, mode ReadMode) (Content, error)

	// Write stores data at path. The action in mode selects overwrite,
	// append or create-if-absent; the Binary flag must match data's kind.
	Write(ctx context.Context, path string, data Content, mode Mode) error

	// Delete removes path. A missing object is logged, not returned.
	Delete(ctx context.Context, path string) error

	// Exists reports whether path exists in the cache or the backend.
	Exists(ctx context.Context, path string) (bool, error)

	// Size returns the byte length of path. Failures are logged and
	// reported as 0 since the size is advisory.
	Size(ctx context.Context, path string) (int64, error)

	// MakeDirs creates a directory and its parents.
	// Flat object stores return ErrUnsupported.
	MakeDirs(ctx context.Context, path string) error

	// Init wires logging and metrics after construction.
	Init(env Env) error

	// Cleanup flushes pending cached writes. Safe to call more than once.
	Cleanup(ctx context.Context) error

	// Token returns a currently valid access token, refreshing if needed.
	// Backends without credentials return "".
	Token(ctx context.Context) (string, error)
}

// Observer receives one notification per backend round trip.
type Observer interface {
	Observe(op string, bytes int64, err error, dur time.Duration)
}

// NopObserver discards observations.
type NopObserver struct{}

func (NopObserver) Observe(string, int64, error, time.Duration) {}

// DefaultQuietSuffixes are path suffixes excluded from per-path logging.
// Log files are written through storage themselves.
var DefaultQuietSuffixes = []string{".log"}

// Env carries the dependencies supplied in the second initialisation phase.
type Env struct {
	Logger        *slog.Logger
	Observer      Observer
	QuietSuffixes []string
}

// DiscardLogger is used until Init supplies a real logger.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return DiscardLogger()
	}
	return e.Logger
}

func (e Env) observer() Observer {
	if e.Observer == nil {
		return NopObserver{}
	}
	return e.Observer
}

// Resolve fills unset fields with defaults.
func (e Env) Resolve() Env {
	e.Logger = e.logger()
	e.Observer = e.observer()
	if e.QuietSuffixes == nil {
		e.QuietSuffixes = DefaultQuietSuffixes
	}
	return e
}

// Quiet reports whether per-path logging is suppressed for path.
func (e Env) Quiet(path string) bool {
	for _, s := range e.QuietSuffixes {
		if s != "" && strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}
