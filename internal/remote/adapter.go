package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/flashbackbot/filestore/internal/storage"
)

const DefaultFlushConcurrency = 4

// Adapter implements storage.Storage over a remote Client.
//
// Locking: the cache mutex is taken exactly once by each public method.
// Methods with a Locked suffix expect it held and never take it. The call
// counter and upload limit are atomics because flush uploads run on a pool.
type Adapter struct {
	client  Client
	session SessionClient // nil when the backend has no upload sessions
	tokens  TokenSource
	cache   *storage.Cache
	env     storage.Env

	calls            atomic.Int64
	limit            atomic.Int64
	chunkSize        int64
	margin           int64
	flushConcurrency int
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithCache enables or disables the write-back cache.
func WithCache(enabled bool) Option {
	return func(a *Adapter) { a.cache = storage.NewCache(enabled) }
}

// WithUploadLimit sets the payload size above which chunked uploads are used.
func WithUploadLimit(n int64) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.limit.Store(n)
		}
	}
}

// WithChunkSize sets the size of each upload session request.
func WithChunkSize(n int64) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.chunkSize = n
		}
	}
}

// WithShrinkMargin sets how much the upload limit drops after a timeout.
func WithShrinkMargin(n int64) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.margin = n
		}
	}
}

// WithFlushConcurrency sets the number of parallel uploads during a flush.
func WithFlushConcurrency(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.flushConcurrency = n
		}
	}
}

// WithTokenSource sets where Token gets credentials from.
func WithTokenSource(ts TokenSource) Option {
	return func(a *Adapter) { a.tokens = ts }
}

// New creates an Adapter. Chunked uploads are available when client also
// implements SessionClient.
func New(client Client, opts ...Option) *Adapter {
	a := &Adapter{
		client:           client,
		cache:            storage.NewCache(false),
		env:              storage.Env{}.Resolve(),
		chunkSize:        DefaultChunkSize,
		margin:           DefaultShrinkMargin,
		flushConcurrency: DefaultFlushConcurrency,
	}
	a.limit.Store(DefaultUploadLimit)
	if sc, ok := client.(SessionClient); ok {
		a.session = sc
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.limit.Load() < a.chunkSize {
		a.limit.Store(a.chunkSize)
	}
	return a
}

// Name returns the backend name.
func (a *Adapter) Name() string { return a.client.Name() }

// Calls returns the number of backend round trips made so far.
func (a *Adapter) Calls() int64 { return a.calls.Load() }

// UploadLimit returns the current single-request size ceiling.
func (a *Adapter) UploadLimit() int64 { return a.limit.Load() }

// Pending returns the number of cached writes not yet flushed.
func (a *Adapter) Pending() int {
	a.cache.Lock()
	defer a.cache.Unlock()
	return a.cache.Len()
}

func (a *Adapter) Init(env storage.Env) error {
	a.cache.Lock()
	defer a.cache.Unlock()
	a.env = env.Resolve()
	a.env.Logger.Info("storage initialized",
		"backend", a.client.Name(),
		"cache", a.cache.Enabled(),
		"chunked_uploads", a.session != nil)
	return nil
}

// call runs one round trip, counting and observing it.
func (a *Adapter) call(op string, n int64, fn func() error) error {
	start := time.Now()
	err := fn()
	a.calls.Add(1)
	a.env.Observer.Observe(op, n, err, time.Since(start))
	return err
}

func (a *Adapter) debug(path, msg string, args ...any) {
	if a.env.Quiet(path) {
		return
	}
	a.env.Logger.Debug(msg, append([]any{"backend", a.client.Name(), "path", path}, args...)...)
}

// Read returns cached content when present, otherwise downloads it and,
// with caching enabled, keeps a copy.
func (a *Adapter) Read(ctx context.Context, path string, mode storage.ReadMode) (storage.Content, error) {
	a.cache.Lock()
	defer a.cache.Unlock()
	c, err := a.readLocked(ctx, path)
	if err != nil {
		return storage.Content{}, storage.Wrap("read", path, err)
	}
	out, err := c.Clone().As(mode)
	if err != nil {
		return storage.Content{}, storage.Wrap("read", path, err)
	}
	return out, nil
}

func (a *Adapter) readLocked(ctx context.Context, path string) (storage.Content, error) {
	if a.cache.Enabled() {
		if c, ok := a.cache.Get(path); ok {
			a.debug(path, "read from cache")
			return c, nil
		}
	}
	var data []byte
	err := a.call("get", 0, func() error {
		var err error
		data, err = a.client.Get(ctx, path)
		return err
	})
	if err != nil {
		a.debug(path, "could not read object", "err", err)
		return storage.Content{}, err
	}
	c := storage.Bytes(data)
	if a.cache.Enabled() {
		a.cache.Put(path, c)
		a.debug(path, "stored in cache", "bytes", len(data))
	}
	return c, nil
}

// Write stores data according to the action in mode.
func (a *Adapter) Write(ctx context.Context, path string, data storage.Content, mode storage.Mode) error {
	if err := storage.CheckMode(data, mode); err != nil {
		return storage.Wrap("write", path, err)
	}
	a.cache.Lock()
	defer a.cache.Unlock()

	var err error
	switch mode.Action() {
	case storage.Overwrite:
		err = a.storeLocked(ctx, path, data)
	case storage.Append:
		err = a.appendLocked(ctx, path, data)
	case storage.CreateIfAbsent:
		err = a.createLocked(ctx, path, data)
	default:
		err = fmt.Errorf("unknown write mode %s", mode)
	}
	return storage.Wrap("write", path, err)
}

func (a *Adapter) createLocked(ctx context.Context, path string, data storage.Content) error {
	exists, err := a.existsLocked(ctx, path)
	if err != nil {
		return err
	}
	if exists {
		return storage.ErrAlreadyExists
	}
	return a.storeLocked(ctx, path, data)
}

// appendLocked emulates append: read what exists, combine, overwrite.
func (a *Adapter) appendLocked(ctx context.Context, path string, addition storage.Content) error {
	existing, err := a.readLocked(ctx, path)
	switch {
	case storage.IsNotFound(err):
		a.debug(path, "object does not exist, creating it")
		existing = storage.Missing(addition)
	case err != nil:
		return err
	}
	return a.storeLocked(ctx, path, storage.Combine(existing, addition, a.env.Logger, path))
}

func (a *Adapter) storeLocked(ctx context.Context, path string, data storage.Content) error {
	if a.cache.Enabled() {
		a.cache.Put(path, data.Clone())
		a.debug(path, "cached for future upload", "bytes", data.Len())
		return nil
	}
	return a.upload(ctx, path, data.Bytes())
}

// upload writes data to the backend, switching to an upload session above
// the size limit. It touches no cache state and may run concurrently.
func (a *Adapter) upload(ctx context.Context, path string, data []byte) error {
	size := int64(len(data))
	if a.session != nil && size > a.limit.Load() {
		return a.uploadChunked(ctx, path, data, PutOverwrite)
	}

	err := a.put(ctx, path, data, PutOverwrite)
	switch {
	case err == nil:
		a.debug(path, "object written", "bytes", size)
		return nil
	case storage.IsNotFound(err):
		a.debug(path, "object not found on overwrite, creating it")
		return a.put(ctx, path, data, PutCreate)
	case errors.Is(err, storage.ErrUploadTimeout) && a.session != nil:
		limit := shrinkLimit(size, a.margin, a.chunkSize)
		a.limit.Store(limit)
		a.env.Logger.Warn("upload timed out, lowering size limit and retrying in chunks",
			"backend", a.client.Name(), "path", path, "bytes", size, "limit", limit)
		return a.uploadChunked(ctx, path, data, PutOverwrite)
	default:
		a.debug(path, "could not write object", "err", err)
		return err
	}
}

func (a *Adapter) put(ctx context.Context, path string, data []byte, mode PutMode) error {
	return a.call("put", int64(len(data)), func() error {
		return a.client.Put(ctx, path, data, mode)
	})
}

// Delete removes path from the cache and the backend.
func (a *Adapter) Delete(ctx context.Context, path string) error {
	a.cache.Lock()
	defer a.cache.Unlock()
	a.cache.Remove(path)

	err := a.call("delete", 0, func() error { return a.client.Delete(ctx, path) })
	switch {
	case err == nil:
		a.debug(path, "object deleted")
		return nil
	case storage.IsNotFound(err):
		a.env.Logger.Info("object does not exist, nothing to delete", "backend", a.client.Name(), "path", path)
		return nil
	default:
		a.debug(path, "could not delete object", "err", err)
		return storage.Wrap("delete", path, err)
	}
}

// Exists checks the cache first, then the backend.
func (a *Adapter) Exists(ctx context.Context, path string) (bool, error) {
	a.cache.Lock()
	defer a.cache.Unlock()
	ok, err := a.existsLocked(ctx, path)
	return ok, storage.Wrap("exists", path, err)
}

func (a *Adapter) existsLocked(ctx context.Context, path string) (bool, error) {
	if a.cache.Enabled() && a.cache.Has(path) {
		a.debug(path, "found in cache")
		return true, nil
	}
	_, err := a.stat(ctx, path)
	if storage.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (a *Adapter) stat(ctx context.Context, path string) (int64, error) {
	var n int64
	err := a.call("stat", 0, func() error {
		var err error
		n, err = a.client.Stat(ctx, path)
		return err
	})
	return n, err
}

// Size returns the cached length or the backend's metadata size. Failures
// are logged and reported as 0.
func (a *Adapter) Size(ctx context.Context, path string) (int64, error) {
	a.cache.Lock()
	defer a.cache.Unlock()
	if a.cache.Enabled() {
		if c, ok := a.cache.Get(path); ok {
			return c.Len(), nil
		}
	}
	n, err := a.stat(ctx, path)
	if err != nil {
		a.debug(path, "could not retrieve object size", "err", err)
		return 0, nil
	}
	return n, nil
}

// MakeDirs creates a folder. An existing folder is not an error.
func (a *Adapter) MakeDirs(ctx context.Context, path string) error {
	err := a.call("mkdir", 0, func() error { return a.client.Mkdir(ctx, path) })
	if errors.Is(err, storage.ErrAlreadyExists) {
		a.env.Logger.Info("directory already exists", "backend", a.client.Name(), "path", path)
		return nil
	}
	return storage.Wrap("makedirs", path, err)
}

// Flush uploads every cached entry and drops the ones that were written.
// Caching is off while the flush runs so its own writes go straight to the
// backend. Entries that fail stay cached; their errors are joined.
func (a *Adapter) Flush(ctx context.Context) error {
	a.cache.Lock()
	defer a.cache.Unlock()
	return a.flushLocked(ctx)
}

func (a *Adapter) flushLocked(ctx context.Context) error {
	if !a.cache.Enabled() || a.cache.Len() == 0 {
		return nil
	}
	a.cache.SetEnabled(false)
	defer a.cache.SetEnabled(true)

	entries := a.cache.Snapshot()
	a.env.Logger.Debug("writing cached changes",
		"backend", a.client.Name(),
		"entries", len(entries),
		"size", storage.HumanSize(a.cache.Size()))

	var (
		mu      sync.Mutex
		flushed = make([]string, 0, len(entries))
	)
	p := pool.New().WithMaxGoroutines(a.flushConcurrency).WithContext(ctx)
	for _, e := range entries {
		p.Go(func(ctx context.Context) error {
			mode := storage.Overwrite
			if e.Content.IsBinary() {
				mode |= storage.Binary
			}
			if err := a.upload(ctx, e.Path, e.Content.Bytes()); err != nil {
				a.env.Logger.Error("failed to flush cached object", "backend", a.client.Name(), "path", e.Path, "err", err)
				return storage.Wrap("flush", e.Path, err)
			}
			a.debug(e.Path, "flushed", "mode", mode.String())
			mu.Lock()
			flushed = append(flushed, e.Path)
			mu.Unlock()
			return nil
		})
	}
	err := p.Wait()

	for _, path := range flushed {
		a.cache.Remove(path)
	}
	a.env.Logger.Debug("cache flushed", "backend", a.client.Name(), "written", len(flushed), "remaining", a.cache.Len())
	return err
}

// Cleanup flushes the cache and reports the number of backend calls.
// It is safe to call repeatedly.
func (a *Adapter) Cleanup(ctx context.Context) error {
	err := a.Flush(ctx)
	a.env.Logger.Info("storage calls", "backend", a.client.Name(), "count", a.Calls())
	return err
}

// Token returns the current access token, or "" without a token source.
func (a *Adapter) Token(ctx context.Context) (string, error) {
	if a.tokens == nil {
		return "", nil
	}
	tok, err := a.tokens.Token(ctx)
	if err != nil {
		return "", storage.Wrap("token", "", err)
	}
	return tok, nil
}

var _ storage.Storage = (*Adapter)(nil)
