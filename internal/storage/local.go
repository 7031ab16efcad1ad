package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Local implements Storage directly on the local filesystem.
// It has no cache and no chunking; every call is one disk operation.
//
// Paths are resolved relative to root. An empty root leaves paths as given,
// so relative paths resolve against the working directory.
type Local struct {
	root string
	env  Env
}

// NewLocal creates a Local backend rooted at root.
func NewLocal(root string) (*Local, error) {
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
		}
		if err := os.MkdirAll(abs, 0755); err != nil {
			return nil, fmt.Errorf("failed to create root %s: %w", abs, err)
		}
		root = abs
	}
	return &Local{root: root, env: Env{}.Resolve()}, nil
}

func (l *Local) Name() string { return "local" }

func (l *Local) Init(env Env) error {
	l.env = env.Resolve()
	l.env.Logger.Debug("local storage initialized", "root", l.root)
	return nil
}

// resolve turns a storage path into a filesystem path.
func (l *Local) resolve(path string) string {
	if l.root == "" {
		return filepath.FromSlash(path)
	}
	return filepath.Join(l.root, filepath.FromSlash(path))
}

func (l *Local) observe(op string, n int64, err error, start time.Time) {
	l.env.Observer.Observe(op, n, err, time.Since(start))
}

// Read returns the file content as text or bytes depending on mode.
func (l *Local) Read(_ context.Context, path string, mode ReadMode) (Content, error) {
	start := time.Now()
	data, err := os.ReadFile(l.resolve(path))
	l.observe("read", int64(len(data)), err, start)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Content{}, Wrap("read", path, ErrNotFound)
		}
		return Content{}, Wrap("read", path, err)
	}
	c, err := Bytes(data).As(mode)
	if err != nil {
		return Content{}, Wrap("read", path, err)
	}
	return c, nil
}

// Write stores data using the action in mode.
func (l *Local) Write(_ context.Context, path string, data Content, mode Mode) error {
	if err := CheckMode(data, mode); err != nil {
		return Wrap("write", path, err)
	}

	full := l.resolve(path)
	if dir := filepath.Dir(full); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Wrap("write", path, fmt.Errorf("failed to create directory: %w", err))
		}
	}

	flag := os.O_WRONLY | os.O_CREATE
	switch mode.Action() {
	case Overwrite:
		flag |= os.O_TRUNC
	case Append:
		flag |= os.O_APPEND
	case CreateIfAbsent:
		flag |= os.O_EXCL
	default:
		return Wrap("write", path, fmt.Errorf("unknown write mode %s", mode))
	}

	start := time.Now()
	err := writeFile(full, flag, data.Bytes())
	l.observe("write", data.Len(), err, start)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Wrap("write", path, ErrAlreadyExists)
		}
		return Wrap("write", path, err)
	}
	if !l.env.Quiet(path) {
		l.env.Logger.Debug("file written", "path", path, "mode", mode.String(), "bytes", data.Len())
	}
	return nil
}

func writeFile(name string, flag int, data []byte) error {
	f, err := os.OpenFile(name, flag, 0644)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// Delete removes the file. A missing file is logged and ignored.
func (l *Local) Delete(_ context.Context, path string) error {
	start := time.Now()
	err := os.Remove(l.resolve(path))
	l.observe("delete", 0, err, start)
	if errors.Is(err, fs.ErrNotExist) {
		l.env.Logger.Info("file does not exist, nothing to delete", "path", path)
		return nil
	}
	return Wrap("delete", path, err)
}

// Exists reports whether the file exists.
func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(l.resolve(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, Wrap("exists", path, err)
}

// Size returns the file size, or 0 if it cannot be determined.
func (l *Local) Size(_ context.Context, path string) (int64, error) {
	info, err := os.Stat(l.resolve(path))
	if err != nil {
		l.env.Logger.Debug("could not determine file size", "path", path, "err", err)
		return 0, nil
	}
	return info.Size(), nil
}

// MakeDirs creates path and any missing parents.
func (l *Local) MakeDirs(_ context.Context, path string) error {
	return Wrap("makedirs", path, os.MkdirAll(l.resolve(path), 0755))
}

// Cleanup is a no-op: nothing is buffered.
func (l *Local) Cleanup(context.Context) error { return nil }

// Token returns "": the local filesystem needs no credential.
func (l *Local) Token(context.Context) (string, error) { return "", nil }

var _ Storage = (*Local)(nil)
