package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/session"
)

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewSessionStore(repo.DB(), time.Hour)
	store.now = func() time.Time { return now }

	sid := session.NewID()
	_, found, err := store.Get(ctx, sid)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, sid, []byte(`{"user_id":1}`)))
	data, found, err := store.Get(ctx, sid)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `{"user_id":1}`, string(data))

	// Upsert replaces the payload.
	require.NoError(t, store.Set(ctx, sid, []byte(`{"user_id":2}`)))
	data, _, err = store.Get(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, `{"user_id":2}`, string(data))

	now = now.Add(50 * time.Minute)
	ok, err := store.Touch(ctx, sid)
	require.NoError(t, err)
	assert.True(t, ok)

	// Still valid 50 minutes after the touch.
	now = now.Add(50 * time.Minute)
	_, found, err = store.Get(ctx, sid)
	require.NoError(t, err)
	assert.True(t, found)

	now = now.Add(time.Hour)
	_, found, err = store.Get(ctx, sid)
	require.NoError(t, err)
	assert.False(t, found)

	ok, err = store.Touch(ctx, sid)
	require.NoError(t, err)
	assert.False(t, ok, "expired sessions cannot be revived")

	assert.Equal(t, 1, store.CleanExpired())
	assert.Equal(t, 0, store.CleanExpired())
}

func TestSessionStoreDestroy(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(newTestRepo(t).DB(), 0)

	sid := session.NewID()
	require.NoError(t, store.Set(ctx, sid, []byte("a")))
	require.NoError(t, store.Destroy(ctx, sid))
	_, found, err := store.Get(ctx, sid)
	require.NoError(t, err)
	assert.False(t, found)

	// Destroying an unknown session is not an error.
	require.NoError(t, store.Destroy(ctx, "missing"))
}

func TestSessionStoreEmptyPayload(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(newTestRepo(t).DB(), time.Hour)

	sid := session.NewID()
	require.NoError(t, store.Set(ctx, sid, nil))
	data, found, err := store.Get(ctx, sid)
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, data)
}
