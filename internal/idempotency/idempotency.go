// Package idempotency reserves client-supplied Idempotency-Key values so a
// retried request returns the entity the first attempt created.
package idempotency

import (
	"context"
	"errors"
	"time"
)

// ErrInProgress means another request holding the same key has not finished.
var ErrInProgress = errors.New("idempotency: request with this key is in progress")

const DefaultTTL = 24 * time.Hour

type Store interface {
	// Begin reserves key. It returns the stored result id when the key already
	// completed, "" when the caller now owns the key, or ErrInProgress.
	Begin(ctx context.Context, key string) (string, error)
	// Commit records the id of the entity created under key.
	Commit(ctx context.Context, key, resultID string) error
	// Abort releases key so a later retry can run again.
	Abort(ctx context.Context, key string) error
}

const pending = "\x00pending"
