package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/princekumarofficial/winsome/internal/storage"
	"github.com/princekumarofficial/winsome/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	f := New(filepath.Join(t.TempDir(), "nested", "winsome.json"))

	_, err := f.Load(ctx)
	assert.ErrorIs(t, err, storage.ErrNoSnapshot)

	snap := &storage.Snapshot{
		Users:         json.RawMessage(`[]`),
		Posts:         json.RawMessage(`[]`),
		NextPostID:    7,
		NextCommentID: 3,
		TakenAt:       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, f.Save(ctx, snap))

	got, err := f.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.NextPostID)
	assert.Equal(t, int64(3), got.NextCommentID)
	assert.True(t, snap.TakenAt.Equal(got.TakenAt))

	entries, err := os.ReadDir(filepath.Dir(f.path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestCorruptSnapshotStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "winsome.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	f := New(path)
	_, err := f.Load(context.Background())
	assert.Error(t, err)

	s := memory.Open(context.Background(), f, nil)
	users, posts := s.Stats()
	assert.Zero(t, users)
	assert.Zero(t, posts)
}

func TestPersisterRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := New(filepath.Join(t.TempDir(), "winsome.json"))

	s := memory.New()
	require.NoError(t, s.Register("alice", "h", []string{"tech"}))
	require.NoError(t, s.Register("bob", "h", []string{"tech"}))
	require.NoError(t, s.Follow("bob", "alice"))
	id, err := s.CreatePost("alice", "Hi", "World")
	require.NoError(t, err)
	require.NoError(t, s.Rate("bob", id, memory.Upvote))

	p := storage.NewPersister(s, f, time.Hour, nil)
	require.NoError(t, p.Flush(ctx))
	assert.False(t, s.TakeDirty())

	restored := memory.Open(ctx, f, nil)
	view, err := restored.ShowPost(id)
	require.NoError(t, err)
	assert.Equal(t, "Hi", view.Title)
	assert.Equal(t, 1, view.Upvotes)

	next, err := restored.CreatePost("alice", "Again", "Post")
	require.NoError(t, err)
	assert.Equal(t, id+1, next)
}

func TestPersisterSavesOnShutdown(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "winsome.json"))
	s := memory.New()
	require.NoError(t, s.Register("alice", "h", []string{"tech"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- storage.NewPersister(s, f, time.Hour, nil).Run(ctx) }()
	cancel()
	require.NoError(t, <-done)

	restored := memory.Open(context.Background(), f, nil)
	_, err := restored.User("alice")
	assert.NoError(t, err)
}
