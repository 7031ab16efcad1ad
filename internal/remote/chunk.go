package remote

import (
	"context"
	"fmt"
)

const (
	DefaultUploadLimit  = 150 * 1024 * 1024 // single-request upload ceiling
	DefaultChunkSize    = 4 * 1024 * 1024   // bytes per session request
	DefaultShrinkMargin = 5 * 1024 * 1024   // subtracted from a size that timed out
)

// Span is one chunk of a payload.
type Span struct {
	Offset int64
	Len    int64
}

// End returns the exclusive end offset.
func (s Span) End() int64 { return s.Offset + s.Len }

// PlanChunks splits size bytes into consecutive chunks of at most
// chunkSize. The spans cover [0, size) without gaps or overlap; an empty
// payload yields a single empty span.
func PlanChunks(size, chunkSize int64) []Span {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if size <= 0 {
		return []Span{{}}
	}
	spans := make([]Span, 0, (size+chunkSize-1)/chunkSize)
	for off := int64(0); off < size; off += chunkSize {
		n := min(chunkSize, size-off)
		spans = append(spans, Span{Offset: off, Len: n})
	}
	return spans
}

// shrinkLimit lowers the upload ceiling after a size-related timeout.
// It never drops below one chunk.
func shrinkLimit(attempted, margin, chunkSize int64) int64 {
	return max(attempted-margin, chunkSize)
}

// uploadChunked streams data through an upload session: start with the
// first chunk, append the rest in order with the cursor offset equal to
// the bytes already sent, then commit with an empty final payload.
// Nothing is visible at path until the commit succeeds.
func (a *Adapter) uploadChunked(ctx context.Context, path string, data []byte, mode PutMode) error {
	spans := PlanChunks(int64(len(data)), a.chunkSize)
	a.debug(path, "uploading in chunks", "bytes", len(data), "chunks", len(spans), "limit", a.limit.Load())

	first := data[spans[0].Offset:spans[0].End()]
	var sessionID string
	err := a.call("session_start", int64(len(first)), func() error {
		var err error
		sessionID, err = a.session.StartSession(ctx, first)
		return err
	})
	if err != nil {
		return fmt.Errorf("start upload session: %w", err)
	}

	cur := Cursor{SessionID: sessionID, Offset: uint64(len(first))}
	for _, s := range spans[1:] {
		if uint64(s.Offset) != cur.Offset {
			return fmt.Errorf("upload session %s: chunk at %d does not follow offset %d", sessionID, s.Offset, cur.Offset)
		}
		chunk := data[s.Offset:s.End()]
		err := a.call("session_append", int64(len(chunk)), func() error {
			return a.session.AppendSession(ctx, cur, chunk)
		})
		if err != nil {
			return fmt.Errorf("append to upload session at offset %d: %w", cur.Offset, err)
		}
		cur.Offset += uint64(len(chunk))
	}

	err = a.call("session_finish", 0, func() error {
		return a.session.FinishSession(ctx, cur, path, mode)
	})
	if err != nil {
		return fmt.Errorf("finish upload session: %w", err)
	}
	a.debug(path, "uploaded in chunks", "bytes", cur.Offset)
	return nil
}
