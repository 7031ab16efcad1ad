package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flashbackbot/filestore/internal/storage"
)

// memClient is an in-memory Client and SessionClient.
type memClient struct {
	mu       sync.Mutex
	objects  map[string][]byte
	sessions map[string][]byte
	nextID   int

	putLimit     int64 // Put fails with ErrUploadTimeout above this size
	failPut      map[string]error
	overwriteNF  bool // Put overwrite on a missing object returns ErrNotFound
	puts         []PutMode
	sessionCalls int
}

func newMemClient() *memClient {
	return &memClient{
		objects:  make(map[string][]byte),
		sessions: make(map[string][]byte),
		failPut:  make(map[string]error),
	}
}

func (m *memClient) Name() string { return "mem" }

func (m *memClient) Get(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return bytes.Clone(b), nil
}

func (m *memClient) Put(_ context.Context, path string, data []byte, mode PutMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts = append(m.puts, mode)
	if err := m.failPut[path]; err != nil {
		return err
	}
	if m.putLimit > 0 && int64(len(data)) > m.putLimit {
		return storage.ErrUploadTimeout
	}
	_, exists := m.objects[path]
	if mode == PutOverwrite && m.overwriteNF && !exists {
		return storage.ErrNotFound
	}
	if mode == PutCreate && exists {
		return storage.ErrAlreadyExists
	}
	m.objects[path] = bytes.Clone(data)
	return nil
}

func (m *memClient) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[path]; !ok {
		return storage.ErrNotFound
	}
	delete(m.objects, path)
	return nil
}

func (m *memClient) Stat(_ context.Context, path string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return int64(len(b)), nil
}

func (m *memClient) Mkdir(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[path+"/"]; ok {
		return storage.ErrAlreadyExists
	}
	m.objects[path+"/"] = nil
	return nil
}

func (m *memClient) StartSession(_ context.Context, chunk []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionCalls++
	m.nextID++
	id := fmt.Sprintf("s%d", m.nextID)
	m.sessions[id] = bytes.Clone(chunk)
	return id, nil
}

func (m *memClient) AppendSession(_ context.Context, cur Cursor, chunk []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionCalls++
	buf, ok := m.sessions[cur.SessionID]
	if !ok {
		return fmt.Errorf("unknown session %s", cur.SessionID)
	}
	if uint64(len(buf)) != cur.Offset {
		return fmt.Errorf("incorrect offset %d, want %d", cur.Offset, len(buf))
	}
	m.sessions[cur.SessionID] = append(buf, chunk...)
	return nil
}

func (m *memClient) FinishSession(_ context.Context, cur Cursor, path string, _ PutMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionCalls++
	buf := m.sessions[cur.SessionID]
	if uint64(len(buf)) != cur.Offset {
		return fmt.Errorf("incorrect offset %d, want %d", cur.Offset, len(buf))
	}
	delete(m.sessions, cur.SessionID)
	m.objects[path] = buf
	return nil
}

func (m *memClient) object(path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[path]
	return b, ok
}

// plainClient hides the session methods of memClient.
type plainClient struct{ Client }

func TestAdapterRoundTrip(t *testing.T) {
	for _, cached := range []bool{false, true} {
		t.Run(fmt.Sprintf("cache=%v", cached), func(t *testing.T) {
			ctx := context.Background()
			a := New(newMemClient(), WithCache(cached))

			if err := a.Write(ctx, "notes.txt", storage.Text("héllo"), storage.Overwrite); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := a.Read(ctx, "notes.txt", storage.ReadText)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if !got.IsText() || got.String() != "héllo" {
				t.Errorf("Read = %v %q", got.Kind(), got.String())
			}

			bin := []byte{0, 1, 2, 0xff}
			if err := a.Write(ctx, "blob", storage.Bytes(bin), storage.Overwrite|storage.Binary); err != nil {
				t.Fatalf("Write binary: %v", err)
			}
			got, err = a.Read(ctx, "blob", storage.ReadBinary)
			if err != nil {
				t.Fatalf("Read binary: %v", err)
			}
			if !got.IsBinary() || !bytes.Equal(got.Bytes(), bin) {
				t.Errorf("Read binary = %v %x", got.Kind(), got.Bytes())
			}
		})
	}
}

func TestAdapterCacheOwnsItsBytes(t *testing.T) {
	ctx := context.Background()
	mem := newMemClient()
	a := New(mem, WithCache(true))

	buf := []byte("hello")
	if err := a.Write(ctx, "state.bin", storage.Bytes(buf), storage.Overwrite|storage.Binary); err != nil {
		t.Fatal(err)
	}
	buf[0] = 'J'

	got, err := a.Read(ctx, "state.bin", storage.ReadBinary)
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != "hello" {
		t.Errorf("Read after caller reused its buffer = %q, want hello", got.String())
	}
	got.Bytes()[1] = 'X'

	if again, _ := a.Read(ctx, "state.bin", storage.ReadBinary); again.String() != "hello" {
		t.Errorf("Read after caller edited a result = %q, want hello", again.String())
	}
	if err := a.Cleanup(ctx); err != nil {
		t.Fatal(err)
	}
	if b, _ := mem.object("state.bin"); string(b) != "hello" {
		t.Errorf("flushed %q, want hello", b)
	}
}

func TestAdapterTextReadOfInvalidUTF8(t *testing.T) {
	for _, cached := range []bool{false, true} {
		t.Run(fmt.Sprintf("cache=%v", cached), func(t *testing.T) {
			ctx := context.Background()
			a := New(newMemClient(), WithCache(cached))
			if err := a.Write(ctx, "blob", storage.Bytes([]byte{0xff, 0xfe}), storage.Overwrite|storage.Binary); err != nil {
				t.Fatal(err)
			}
			if _, err := a.Read(ctx, "blob", storage.ReadText); !errors.Is(err, storage.ErrTypeMismatch) {
				t.Errorf("text read err = %v, want ErrTypeMismatch", err)
			}
			if _, err := a.Read(ctx, "blob", storage.ReadBinary); err != nil {
				t.Errorf("binary read err = %v", err)
			}
		})
	}
}

func TestAdapterAppend(t *testing.T) {
	for _, cached := range []bool{false, true} {
		t.Run(fmt.Sprintf("cache=%v", cached), func(t *testing.T) {
			ctx := context.Background()
			a := New(newMemClient(), WithCache(cached))

			if err := a.Write(ctx, "log.txt", storage.Text("a"), storage.Append); err != nil {
				t.Fatalf("append to missing: %v", err)
			}
			if err := a.Write(ctx, "log.txt", storage.Text("b"), storage.Append); err != nil {
				t.Fatalf("append: %v", err)
			}
			got, err := a.Read(ctx, "log.txt", storage.ReadText)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if got.String() != "ab" {
				t.Errorf("after appends = %q, want %q", got.String(), "ab")
			}
		})
	}
}

func TestAdapterCacheSavesRoundTrips(t *testing.T) {
	ctx := context.Background()
	client := newMemClient()
	a := New(client, WithCache(true))

	for i := range 5 {
		if err := a.Write(ctx, "state.json", storage.Text(fmt.Sprint(i)), storage.Overwrite); err != nil {
			t.Fatal(err)
		}
		if _, err := a.Read(ctx, "state.json", storage.ReadText); err != nil {
			t.Fatal(err)
		}
	}
	if n := a.Calls(); n != 0 {
		t.Errorf("calls before flush = %d, want 0", n)
	}
	if _, ok := client.object("state.json"); ok {
		t.Error("object uploaded before flush")
	}

	if err := a.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if n := a.Calls(); n != 1 {
		t.Errorf("calls after flush = %d, want 1", n)
	}
	b, _ := client.object("state.json")
	if string(b) != "4" {
		t.Errorf("flushed = %q, want %q", b, "4")
	}
	if a.Pending() != 0 {
		t.Errorf("pending = %d after flush", a.Pending())
	}

	// Second cleanup has nothing left to do.
	if err := a.Cleanup(ctx); err != nil {
		t.Fatalf("second Cleanup: %v", err)
	}
	if n := a.Calls(); n != 1 {
		t.Errorf("calls after second cleanup = %d, want 1", n)
	}
}

func TestAdapterReadPopulatesCache(t *testing.T) {
	ctx := context.Background()
	client := newMemClient()
	client.objects["cfg"] = []byte("v1")
	a := New(client, WithCache(true))

	for range 3 {
		got, err := a.Read(ctx, "cfg", storage.ReadText)
		if err != nil {
			t.Fatal(err)
		}
		if got.String() != "v1" {
			t.Errorf("Read = %q", got.String())
		}
	}
	if n := a.Calls(); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}

func TestAdapterFlushKeepsFailedEntries(t *testing.T) {
	ctx := context.Background()
	client := newMemClient()
	client.failPut["bad"] = storage.ErrCredential
	a := New(client, WithCache(true))

	for _, p := range []string{"good1", "bad", "good2"} {
		if err := a.Write(ctx, p, storage.Text(p), storage.Overwrite); err != nil {
			t.Fatal(err)
		}
	}
	err := a.Flush(ctx)
	if !errors.Is(err, storage.ErrCredential) {
		t.Fatalf("Flush err = %v, want credential error", err)
	}
	for _, p := range []string{"good1", "good2"} {
		if _, ok := client.object(p); !ok {
			t.Errorf("%s not flushed", p)
		}
	}
	if a.Pending() != 1 {
		t.Errorf("pending = %d, want 1", a.Pending())
	}

	// Caching is re-enabled after a failed flush.
	if err := a.Write(ctx, "later", storage.Text("x"), storage.Overwrite); err != nil {
		t.Fatal(err)
	}
	if _, ok := client.object("later"); ok {
		t.Error("write after flush bypassed the cache")
	}

	delete(client.failPut, "bad")
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("retry Flush: %v", err)
	}
	if b, _ := client.object("bad"); string(b) != "bad" {
		t.Errorf("bad = %q after retry", b)
	}
}

func TestAdapterChunkedUpload(t *testing.T) {
	ctx := context.Background()
	client := newMemClient()
	a := New(client, WithChunkSize(4), WithUploadLimit(10))

	data := []byte("0123456789abcdefghij-") // 21 bytes -> 6 chunks
	if err := a.Write(ctx, "big.bin", storage.Bytes(data), storage.Overwrite|storage.Binary); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, ok := client.object("big.bin")
	if !ok || !bytes.Equal(got, data) {
		t.Errorf("stored %q, want %q", got, data)
	}
	// start + 5 appends + finish
	if client.sessionCalls != 7 {
		t.Errorf("session calls = %d, want 7", client.sessionCalls)
	}
	if a.Calls() != 7 {
		t.Errorf("Calls = %d, want 7", a.Calls())
	}
	if len(client.puts) != 0 {
		t.Errorf("single-request puts = %d, want 0", len(client.puts))
	}
}

func TestAdapterChunkedUploadExactMultiple(t *testing.T) {
	ctx := context.Background()
	client := newMemClient()
	a := New(client, WithChunkSize(4), WithUploadLimit(4))

	data := []byte("abcdefgh")
	if err := a.Write(ctx, "f", storage.Bytes(data), storage.Overwrite|storage.Binary); err != nil {
		t.Fatal(err)
	}
	if got, _ := client.object("f"); !bytes.Equal(got, data) {
		t.Errorf("stored %q", got)
	}
	// start + 1 append + finish
	if client.sessionCalls != 3 {
		t.Errorf("session calls = %d, want 3", client.sessionCalls)
	}
}

func TestAdapterTimeoutShrinksLimit(t *testing.T) {
	ctx := context.Background()
	client := newMemClient()
	client.putLimit = 8
	a := New(client, WithChunkSize(2), WithUploadLimit(100), WithShrinkMargin(3))

	data := []byte("0123456789") // 10 bytes, rejected by single Put
	if err := a.Write(ctx, "f", storage.Bytes(data), storage.Overwrite|storage.Binary); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got, _ := client.object("f"); !bytes.Equal(got, data) {
		t.Errorf("stored %q", got)
	}
	if got := a.UploadLimit(); got != 7 {
		t.Errorf("limit = %d, want 7", got)
	}

	// The next write of the same size goes straight to a session.
	client.puts = nil
	if err := a.Write(ctx, "g", storage.Bytes(data), storage.Overwrite|storage.Binary); err != nil {
		t.Fatal(err)
	}
	if len(client.puts) != 0 {
		t.Errorf("puts = %d after shrink, want 0", len(client.puts))
	}
}

func TestAdapterTimeoutLimitNeverBelowChunk(t *testing.T) {
	if got := shrinkLimit(3, 5, 4); got != 4 {
		t.Errorf("shrinkLimit = %d, want 4", got)
	}
	if got := shrinkLimit(100, 5, 4); got != 95 {
		t.Errorf("shrinkLimit = %d, want 95", got)
	}
}

func TestAdapterTimeoutWithoutSessions(t *testing.T) {
	ctx := context.Background()
	client := newMemClient()
	client.putLimit = 2
	a := New(plainClient{client})

	err := a.Write(ctx, "f", storage.Text("too long"), storage.Overwrite)
	if !errors.Is(err, storage.ErrUploadTimeout) {
		t.Errorf("err = %v, want upload timeout", err)
	}
	if !errors.Is(err, storage.ErrTransient) {
		t.Errorf("upload timeout should be transient: %v", err)
	}
}

func TestAdapterNotFoundOnWriteCreates(t *testing.T) {
	ctx := context.Background()
	client := newMemClient()
	client.overwriteNF = true
	a := New(client)

	if err := a.Write(ctx, "new.txt", storage.Text("x"), storage.Overwrite); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(client.puts) != 2 || client.puts[0] != PutOverwrite || client.puts[1] != PutCreate {
		t.Errorf("puts = %v, want [overwrite create]", client.puts)
	}
	if got, _ := client.object("new.txt"); string(got) != "x" {
		t.Errorf("stored %q", got)
	}
}

func TestAdapterCreateIfAbsent(t *testing.T) {
	for _, cached := range []bool{false, true} {
		t.Run(fmt.Sprintf("cache=%v", cached), func(t *testing.T) {
			ctx := context.Background()
			a := New(newMemClient(), WithCache(cached))

			if err := a.Write(ctx, "lock", storage.Text("1"), storage.CreateIfAbsent); err != nil {
				t.Fatalf("first create: %v", err)
			}
			err := a.Write(ctx, "lock", storage.Text("2"), storage.CreateIfAbsent)
			if !errors.Is(err, storage.ErrAlreadyExists) {
				t.Errorf("second create err = %v, want ErrAlreadyExists", err)
			}
			got, _ := a.Read(ctx, "lock", storage.ReadText)
			if got.String() != "1" {
				t.Errorf("content = %q, want %q", got.String(), "1")
			}
		})
	}
}

func TestAdapterNotFound(t *testing.T) {
	ctx := context.Background()
	a := New(newMemClient(), WithCache(true))

	_, err := a.Read(ctx, "missing", storage.ReadText)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Read err = %v, want ErrNotFound", err)
	}
	var serr *storage.Error
	if !errors.As(err, &serr) || serr.Op != "read" || serr.Path != "missing" {
		t.Errorf("Read err = %#v, want *storage.Error for read missing", err)
	}

	ok, err := a.Exists(ctx, "missing")
	if err != nil || ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	n, err := a.Size(ctx, "missing")
	if err != nil || n != 0 {
		t.Errorf("Size = %d, %v", n, err)
	}
	if err := a.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestAdapterExistsAndSizeUseCache(t *testing.T) {
	ctx := context.Background()
	a := New(newMemClient(), WithCache(true))
	if err := a.Write(ctx, "f", storage.Text("hello"), storage.Overwrite); err != nil {
		t.Fatal(err)
	}
	ok, err := a.Exists(ctx, "f")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
	n, err := a.Size(ctx, "f")
	if err != nil || n != 5 {
		t.Errorf("Size = %d, %v", n, err)
	}
	if a.Calls() != 0 {
		t.Errorf("calls = %d, want 0", a.Calls())
	}
}

func TestAdapterDeleteEvictsCache(t *testing.T) {
	ctx := context.Background()
	client := newMemClient()
	a := New(client, WithCache(true))
	if err := a.Write(ctx, "f", storage.Text("x"), storage.Overwrite); err != nil {
		t.Fatal(err)
	}
	if err := a.Delete(ctx, "f"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := a.Exists(ctx, "f"); ok {
		t.Error("deleted object still exists")
	}
	if err := a.Cleanup(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := client.object("f"); ok {
		t.Error("deleted object resurrected by flush")
	}
}

func TestAdapterTypeMismatch(t *testing.T) {
	a := New(newMemClient())
	err := a.Write(context.Background(), "f", storage.Text("x"), storage.Overwrite|storage.Binary)
	if !errors.Is(err, storage.ErrTypeMismatch) {
		t.Errorf("err = %v, want ErrTypeMismatch", err)
	}
	if a.Calls() != 0 {
		t.Errorf("calls = %d, want 0", a.Calls())
	}
}

func TestAdapterMakeDirs(t *testing.T) {
	ctx := context.Background()
	a := New(newMemClient())
	if err := a.MakeDirs(ctx, "a/b"); err != nil {
		t.Fatal(err)
	}
	if err := a.MakeDirs(ctx, "a/b"); err != nil {
		t.Errorf("existing folder: %v", err)
	}
}

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

func TestAdapterToken(t *testing.T) {
	ctx := context.Background()
	if tok, err := New(newMemClient()).Token(ctx); err != nil || tok != "" {
		t.Errorf("Token without source = %q, %v", tok, err)
	}
	a := New(newMemClient(), WithTokenSource(staticToken("abc")))
	if tok, err := a.Token(ctx); err != nil || tok != "abc" {
		t.Errorf("Token = %q, %v", tok, err)
	}
}

type countingObserver struct {
	mu  sync.Mutex
	ops []string
}

func (o *countingObserver) Observe(op string, _ int64, _ error, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops = append(o.ops, op)
}

func TestAdapterInitWiresEnv(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	obs := &countingObserver{}
	a := New(newMemClient())
	err := a.Init(storage.Env{
		Logger:   slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})),
		Observer: obs,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Write(ctx, "bot.log", storage.Text("line"), storage.Overwrite); err != nil {
		t.Fatal(err)
	}
	if err := a.Write(ctx, "state.json", storage.Text("{}"), storage.Overwrite); err != nil {
		t.Fatal(err)
	}
	if err := a.Cleanup(ctx); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if strings.Contains(out, "bot.log") {
		t.Errorf("quiet path logged: %s", out)
	}
	if !strings.Contains(out, "state.json") {
		t.Errorf("regular path not logged: %s", out)
	}
	if !strings.Contains(out, "storage calls") || !strings.Contains(out, "count=2") {
		t.Errorf("call count not reported: %s", out)
	}
	if len(obs.ops) != 2 {
		t.Errorf("observed %v, want 2 puts", obs.ops)
	}
}

func TestAdapterConcurrentUse(t *testing.T) {
	ctx := context.Background()
	client := newMemClient()
	a := New(client, WithCache(true))

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				if err := a.Write(ctx, "shared.log", storage.Text("x"), storage.Append); err != nil {
					t.Error(err)
				}
				if err := a.Write(ctx, fmt.Sprintf("own-%d", i), storage.Text("y"), storage.Append); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()
	if err := a.Cleanup(ctx); err != nil {
		t.Fatal(err)
	}
	if b, _ := client.object("shared.log"); len(b) != 80 {
		t.Errorf("shared.log has %d bytes, want 80", len(b))
	}
	for i := range 8 {
		if b, _ := client.object(fmt.Sprintf("own-%d", i)); len(b) != 10 {
			t.Errorf("own-%d has %d bytes, want 10", i, len(b))
		}
	}
}
