package history

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "history.db")
	store, err := New(path, zerolog.New(os.Stdout).Level(zerolog.ErrorLevel))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestNew(t *testing.T) {
	t.Run("should create database and parent directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "history.db")
		store, err := New(path, zerolog.Nop())
		require.NoError(t, err)
		defer store.Close()

		_, err = os.Stat(path)
		assert.NoError(t, err)
	})

	t.Run("should require a path", func(t *testing.T) {
		_, err := New("", zerolog.Nop())
		assert.Error(t, err)
	})
}

func TestRecordAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Record(ctx, Run{
		SessionID:   "sess-1",
		Instruction: "click the only button",
		Success:     true,
		Summary:     "Clicked the button",
		Turns:       2,
		DurationMs:  1042,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	run, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", run.SessionID)
	assert.Equal(t, "click the only button", run.Instruction)
	assert.True(t, run.Success)
	assert.Equal(t, "Clicked the button", run.Summary)
	assert.Equal(t, 2, run.Turns)
	assert.Equal(t, int64(1042), run.DurationMs)
	assert.False(t, run.StartedAt.IsZero())
}

func TestGetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "no-such-run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		session := "sess-a"
		if i%2 == 1 {
			session = "sess-b"
		}
		_, err := store.Record(ctx, Run{
			SessionID:   session,
			Instruction: "task",
			Success:     true,
			Summary:     "ok",
			Turns:       1,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	t.Run("should return newest first", func(t *testing.T) {
		runs, err := store.List(ctx, "", 0)
		require.NoError(t, err)
		require.Len(t, runs, 5)
		for i := 1; i < len(runs); i++ {
			assert.True(t, !runs[i-1].StartedAt.Before(runs[i].StartedAt))
		}
	})

	t.Run("should filter by session", func(t *testing.T) {
		runs, err := store.List(ctx, "sess-b", 0)
		require.NoError(t, err)
		assert.Len(t, runs, 2)
		for _, run := range runs {
			assert.Equal(t, "sess-b", run.SessionID)
		}
	})

	t.Run("should honor the limit", func(t *testing.T) {
		runs, err := store.List(ctx, "", 2)
		require.NoError(t, err)
		assert.Len(t, runs, 2)
	})
}

func TestCount(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, err = store.Record(ctx, Run{SessionID: "s", Instruction: "i", Summary: "ok"})
	require.NoError(t, err)

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
