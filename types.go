package filestore

import "github.com/flashbackbot/filestore/internal/storage"

// Storage is the capability set every backend satisfies.
type Storage = storage.Storage

type (
	Content  = storage.Content
	Kind     = storage.Kind
	Mode     = storage.Mode
	ReadMode = storage.ReadMode
	Observer = storage.Observer
)

const (
	Overwrite      = storage.Overwrite
	Append         = storage.Append
	CreateIfAbsent = storage.CreateIfAbsent
	Binary         = storage.Binary

	ReadText   = storage.ReadText
	ReadBinary = storage.ReadBinary
)

// Text wraps s as text content.
func Text(s string) Content { return storage.Text(s) }

// Bytes wraps b as binary content.
func Bytes(b []byte) Content { return storage.Bytes(b) }

// ParseMode parses "w", "a", "x" with an optional "b" suffix.
func ParseMode(s string) (Mode, error) { return storage.ParseMode(s) }

// ParseReadMode parses "r" or "rb".
func ParseReadMode(s string) (ReadMode, error) { return storage.ParseReadMode(s) }
