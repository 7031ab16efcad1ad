package filestore

import "github.com/flashbackbot/filestore/internal/storage"

var (
	ErrNotFound      = storage.ErrNotFound
	ErrAlreadyExists = storage.ErrAlreadyExists
	ErrTypeMismatch  = storage.ErrTypeMismatch
	ErrUnsupported   = storage.ErrUnsupported
	ErrTransient     = storage.ErrTransient
	ErrCredential    = storage.ErrCredential
	ErrUploadTimeout = storage.ErrUploadTimeout
)

// Error records the operation and path that failed.
type Error = storage.Error
