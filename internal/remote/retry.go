package remote

import (
	"context"
	"errors"
	"time"

	"github.com/flashbackbot/filestore/internal/storage"
)

// Retry runs fn up to maxAttempts times while it fails with a transient
// error. Any other error, including credential failures, returns at once.
func Retry[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for i := range maxAttempts {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, storage.ErrTransient) {
			return zero, err
		}
		lastErr = err
		if i < maxAttempts-1 {
			delay := time.Duration(1<<i) * 500 * time.Millisecond // 500ms, 1s, 2s, 4s...
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return zero, lastErr
}
