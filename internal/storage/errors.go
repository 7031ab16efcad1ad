package storage

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("filestore: not found")
	ErrAlreadyExists = errors.New("filestore: already exists")
	ErrTypeMismatch  = errors.New("filestore: type mismatch")
	ErrUnsupported   = errors.New("filestore: unsupported operation")
	ErrTransient     = errors.New("filestore: transient backend error")
	ErrCredential    = errors.New("filestore: credential error")

	// ErrUploadTimeout is a transient failure attributed to request size.
	ErrUploadTimeout = fmt.Errorf("%w: upload timed out", ErrTransient)
)

// Error records the operation and path that failed.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap attaches op and path to err. It returns nil for a nil err and does
// not double-wrap an *Error for the same path.
func Wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) && se.Path == path {
		return err
	}
	return &Error{Op: op, Path: path, Err: err}
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
