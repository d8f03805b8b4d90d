package sharhbot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRequest() ExplanationRequest {
	return ExplanationRequest{
		CategoryID:    "category-1",
		RoomName:      "how-to-test",
		Content:       "explanation body",
		RequesterID:   "user-1",
		RequesterName: "someone",
	}
}

func TestRequestStoreCreate(t *testing.T) {
	store := NewRequestStore(nil)

	id := store.Create(newTestRequest())
	require.NotEmpty(t, id)

	request, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, id, request.ID)
	assert.Equal(t, "category-1", request.CategoryID)
	assert.False(t, request.CreatedAt.IsZero())

	// submission-time snapshots
	assert.Equal(t, "category-1", request.OriginalCategoryID)
	assert.Equal(t, "how-to-test", request.OriginalRoomName)
}

func TestRequestStoreUniqueIDs(t *testing.T) {
	store := NewRequestStore(nil)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := store.Create(newTestRequest())
		assert.False(t, seen[id], "duplicate id: %s", id)
		seen[id] = true
	}
	assert.Equal(t, 100, store.Len())
}

func TestRequestStoreGetMissing(t *testing.T) {
	store := NewRequestStore(nil)
	_, ok := store.Get("nope")
	assert.False(t, ok)
}

func TestRequestStoreGetReturnsCopy(t *testing.T) {
	store := NewRequestStore(nil)
	id := store.Create(newTestRequest())

	request, ok := store.Get(id)
	require.True(t, ok)
	request.RoomName = "mutated"

	unchanged, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "how-to-test", unchanged.RoomName)
}

func TestRequestStoreUpdate(t *testing.T) {
	store := NewRequestStore(nil)
	id := store.Create(newTestRequest())

	ok := store.Update(
		id, func(r *ExplanationRequest) {
			r.CategoryID = "category-2"
			r.RoomName = "renamed"
		},
	)
	require.True(t, ok)

	request, ok := store.Get(id)
	require.True(t, ok)
	assert.Equal(t, "category-2", request.CategoryID)
	assert.Equal(t, "renamed", request.RoomName)

	// originals keep the submission-time values
	assert.Equal(t, "category-1", request.OriginalCategoryID)
	assert.Equal(t, "how-to-test", request.OriginalRoomName)

	assert.False(t, store.Update("nope", func(*ExplanationRequest) {}))
}

func TestRequestStoreDeleteIdempotent(t *testing.T) {
	store := NewRequestStore(nil)
	id := store.Create(newTestRequest())

	store.Delete(id)
	_, ok := store.Get(id)
	assert.False(t, ok)

	// deleting again is not an error
	store.Delete(id)
	assert.Equal(t, 0, store.Len())
}

func TestRequestStoreSweepExpired(t *testing.T) {
	store := NewRequestStore(nil)
	ttl := 24 * time.Hour

	oldID := store.Create(newTestRequest())
	freshID := store.Create(newTestRequest())

	// age the first request past the TTL
	require.True(
		t, store.Update(
			oldID, func(r *ExplanationRequest) {
				r.CreatedAt = time.Now().UTC().Add(-ttl - time.Minute)
			},
		),
	)

	expired := store.SweepExpired(time.Now().UTC(), ttl)
	assert.Equal(t, []string{oldID}, expired)

	_, ok := store.Get(oldID)
	assert.False(t, ok)
	_, ok = store.Get(freshID)
	assert.True(t, ok)
}

func TestRequestStoreSweepBoundary(t *testing.T) {
	store := NewRequestStore(nil)
	ttl := time.Hour
	now := time.Now().UTC()

	id := store.Create(newTestRequest())
	// exactly at the TTL is not yet expired
	require.True(
		t, store.Update(
			id, func(r *ExplanationRequest) {
				r.CreatedAt = now.Add(-ttl)
			},
		),
	)

	expired := store.SweepExpired(now, ttl)
	assert.Empty(t, expired)
	_, ok := store.Get(id)
	assert.True(t, ok)
}
