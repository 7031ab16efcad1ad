// Package backup mirrors the objects of a remote backend into a local
// directory.
//
// Listing is only needed here, so it lives on the backup side as the
// Source interface rather than in the storage contract.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/flashbackbot/filestore/internal/compression"
	"github.com/flashbackbot/filestore/internal/remote"
	"github.com/flashbackbot/filestore/internal/storage"
)

const DefaultConcurrency = 4

// Source is a backend that can enumerate and download its objects.
type Source interface {
	Name() string
	Get(ctx context.Context, path string) ([]byte, error)
	List(ctx context.Context, prefix string) iter.Seq2[remote.ObjectInfo, error]
}

// Options control a mirror run.
type Options struct {
	// Dir is the local destination.
	Dir string
	// Prefix limits the mirror to objects under it. It is stripped from
	// the local paths.
	Prefix string
	// Compress stores each copy as a zstd frame with a .zst suffix.
	Compress bool
	// Level is the zstd level, 1 to 3.
	Level       int
	Concurrency int
	Logger      *slog.Logger
}

// Stats summarises a mirror run.
type Stats struct {
	Listed     int
	Existing   int // local copy was already present
	UpToDate   int
	Downloaded int
	Calls      int64
}

// Mirror copies every listed object whose local copy is missing or older
// than the remote one. Downloads run in parallel; the first listing error
// stops the run.
func Mirror(ctx context.Context, src Source, opts Options) (Stats, error) {
	if opts.Dir == "" {
		return Stats{}, errors.New("backup: destination directory is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = storage.DiscardLogger()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return Stats{}, fmt.Errorf("backup: create %s: %w", opts.Dir, err)
	}

	var comp *compression.Compressor
	if opts.Compress {
		var err error
		if comp, err = compression.NewCompressor(opts.Level); err != nil {
			return Stats{}, err
		}
		defer comp.Close()
	}

	logger.Info("attempting to download files", "backend", src.Name(), "dir", opts.Dir, "prefix", opts.Prefix)

	var (
		stats              Stats
		existing, upToDate atomic.Int64
		downloaded, calls  atomic.Int64
	)
	p := pool.New().WithMaxGoroutines(opts.Concurrency).WithErrors().WithContext(ctx)
	prefix := strings.Trim(opts.Prefix, "/")

	var listErr error
	for obj, err := range src.List(ctx, opts.Prefix) {
		if err != nil {
			listErr = fmt.Errorf("backup: list %s: %w", src.Name(), err)
			break
		}
		stats.Listed++
		local, err := localPath(opts.Dir, prefix, obj.Path, opts.Compress)
		if err != nil {
			logger.Warn("skipping object", "path", obj.Path, "err", err)
			continue
		}
		p.Go(func(ctx context.Context) error {
			if info, err := os.Stat(local); err == nil {
				existing.Add(1)
				if !obj.ModTime.After(info.ModTime()) {
					upToDate.Add(1)
					logger.Debug("skipped, local version is up to date", "path", obj.Path)
					return nil
				}
			}
			data, err := src.Get(ctx, obj.Path)
			calls.Add(1)
			if err != nil {
				return storage.Wrap("backup", obj.Path, err)
			}
			if comp != nil {
				data = comp.Compress(data)
			}
			if err := writeFile(local, data, obj.ModTime); err != nil {
				return storage.Wrap("backup", obj.Path, err)
			}
			downloaded.Add(1)
			logger.Info("downloaded", "path", obj.Path, "to", local)
			return nil
		})
	}
	err := errors.Join(listErr, p.Wait())

	stats.Existing = int(existing.Load())
	stats.UpToDate = int(upToDate.Load())
	stats.Downloaded = int(downloaded.Load())
	stats.Calls = calls.Load()
	logger.Info("backup finished",
		"up_to_date", stats.UpToDate,
		"existing", stats.Existing,
		"downloaded", stats.Downloaded,
		"calls", stats.Calls)
	return stats, err
}

// localPath maps a remote path under prefix to a file inside dir.
func localPath(dir, prefix, remotePath string, compress bool) (string, error) {
	rel := strings.TrimPrefix(remotePath, "/")
	if prefix != "" {
		after, ok := strings.CutPrefix(rel, prefix+"/")
		if !ok {
			return "", fmt.Errorf("path %q is outside prefix %q", remotePath, prefix)
		}
		rel = after
	}
	rel = filepath.FromSlash(rel)
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("path %q escapes the backup directory", remotePath)
	}
	if compress {
		rel += compression.Ext
	}
	return filepath.Join(dir, rel), nil
}

// writeFile replaces path atomically and stamps it with the remote
// modification time.
func writeFile(path string, data []byte, mtime time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".backup-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	if !mtime.IsZero() {
		if err := os.Chtimes(path, mtime, mtime); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
