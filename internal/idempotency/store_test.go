package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"madrasah/internal/optimistic"
)

func TestMemoryStoreReplaysReply(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()

	reply, err := s.Begin(ctx, "u1:attendance:tok")
	require.NoError(t, err)
	assert.Nil(t, reply)

	_, err = s.Begin(ctx, "u1:attendance:tok")
	assert.ErrorIs(t, err, ErrInFlight)
	assert.Equal(t, optimistic.KindConflict, optimistic.KindOf(err))

	require.NoError(t, s.Finish(ctx, "u1:attendance:tok", []byte(`{"success":true}`)))
	reply, err = s.Begin(ctx, "u1:attendance:tok")
	require.NoError(t, err)
	assert.Equal(t, `{"success":true}`, string(reply))
}

func TestMemoryStoreExpires(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, s.Finish(ctx, "k", []byte("r")))

	now = now.Add(2 * time.Minute)
	reply, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, reply)
}

func TestMemoryStoreRelease(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	ctx := context.Background()
	_, err := s.Begin(ctx, "k")
	require.NoError(t, err)

	require.NoError(t, s.Release(ctx, "k"))

	reply, err := s.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, reply)
}
