package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darslik/core/quiz"
)

func TestSelectionStore(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewSelectionStore(time.Minute)
	store.now = func() time.Time { return now }

	key := quiz.SelectionKey("u1", 7)
	assert.Equal(t, "u1:7", key)

	_, ok := store.Get(ctx, key)
	assert.False(t, ok, "missing entry")

	ids := []int64{3, 1, 2}
	store.Put(ctx, key, quiz.Selection{QuestionIDs: ids, StartedAt: now})
	ids[0] = 99 // the store keeps its own copy

	sel, ok := store.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []int64{3, 1, 2}, sel.QuestionIDs)
	assert.Equal(t, now, sel.StartedAt)

	now = now.Add(2 * time.Minute)
	_, ok = store.Get(ctx, key)
	assert.False(t, ok, "expired entry")

	store.Put(ctx, key, quiz.Selection{QuestionIDs: []int64{1}})
	store.Delete(ctx, key)
	_, ok = store.Get(ctx, key)
	assert.False(t, ok, "deleted entry")
}

func TestSelectionStore_GetKeepsRefreshedEntry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2021, 3, 1, 10, 0, 0, 0, time.UTC)
	store := NewSelectionStore(time.Minute)
	var beforeCheck func()
	store.now = func() time.Time {
		if f := beforeCheck; f != nil {
			beforeCheck = nil
			f()
		}
		return now
	}

	key := quiz.SelectionKey("u1", 7)
	store.Put(ctx, key, quiz.Selection{QuestionIDs: []int64{1}})
	now = now.Add(2 * time.Minute)

	// the entry is refreshed between the read and the expiry check
	beforeCheck = func() { store.Put(ctx, key, quiz.Selection{QuestionIDs: []int64{2, 3}}) }
	sel, ok := store.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, []int64{2, 3}, sel.QuestionIDs)

	sel, ok = store.Get(ctx, key)
	require.True(t, ok, "the refreshed entry is not deleted")
	assert.Equal(t, []int64{2, 3}, sel.QuestionIDs)
}

func TestSelectionStore_Purge(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewSelectionStore(time.Minute)
	store.now = func() time.Time { return now }

	store.Put(ctx, "a", quiz.Selection{})
	now = now.Add(30 * time.Second)
	store.Put(ctx, "b", quiz.Selection{})
	now = now.Add(45 * time.Second)

	assert.Equal(t, 2, store.Len())
	assert.Equal(t, 1, store.Purge())
	assert.Equal(t, 1, store.Len())
	_, ok := store.Get(ctx, "b")
	assert.True(t, ok)
}
