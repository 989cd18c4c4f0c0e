package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_BeginCommitReplay(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(time.Hour)

	id, err := s.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Empty(t, id)

	_, err = s.Begin(ctx, "k1")
	assert.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, s.Commit(ctx, "k1", "wd-1"))
	id, err = s.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "wd-1", id)
}

func TestMemory_AbortFreesKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(time.Hour)

	_, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, s.Abort(ctx, "k"))

	id, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Commit(ctx, "k", "old"))
	now = now.Add(2 * time.Minute)

	id, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, id, "expired key is reserved afresh")
}

func TestMemory_ExpiredKeysAreSwept(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Commit(ctx, "a", "wd-a"))
	require.NoError(t, s.Commit(ctx, "b", "wd-b"))
	now = now.Add(30 * time.Second)
	_, err := s.Begin(ctx, "c")
	require.NoError(t, err)
	assert.Len(t, s.m, 3)

	now = now.Add(2 * time.Minute)
	_, err = s.Begin(ctx, "d")
	require.NoError(t, err)
	assert.Len(t, s.m, 1, "only the fresh reservation survives")
}
