package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/storage"
)

// setupTestStore требует живой MongoDB (MONGO_URI), иначе тест пропускается.
func setupTestStore(t *testing.T) *Store {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	dbName := "promptkaart_test_" + uuid.NewString()[:8]
	s, err := Connect(ctx, uri, dbName, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.client.Database(dbName).Drop(context.Background())
		_ = s.Close()
	})

	_, err = s.UpsertProfile(ctx, domain.Profile{ID: "user-1", Name: "Alice"})
	require.NoError(t, err)
	return s
}

func TestStore_PostLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	post, err := s.CreatePost(ctx, domain.NewPost{AuthorID: "user-1", Prompt: "neon city", Tags: []string{"city"}})
	require.NoError(t, err)
	require.NotNil(t, post.Author)
	assert.Equal(t, "Alice", post.Author.Name)

	receipt, err := s.InsertLike(ctx, "user-2", post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), receipt.Version)

	_, err = s.InsertLike(ctx, "user-2", post.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := s.GetPost(ctx, post.ID, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Likes)
	assert.True(t, got.IsLiked)

	receipt, err = s.DeleteLike(ctx, "user-2", post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), receipt.Version)

	got, err = s.GetPost(ctx, post.ID, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Likes)

	assert.ErrorIs(t, s.DeletePost(ctx, post.ID, "user-2"), domain.ErrForbidden)
	require.NoError(t, s.DeletePost(ctx, post.ID, "user-1"))
	_, err = s.GetPost(ctx, post.ID, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_CommentsAndStats(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	post, err := s.CreatePost(ctx, domain.NewPost{AuthorID: "user-1", Prompt: "forest"})
	require.NoError(t, err)

	root, _, err := s.CreateComment(ctx, domain.NewComment{PostID: post.ID, AuthorID: "user-2", Content: "root"})
	require.NoError(t, err)
	_, receipt, err := s.CreateComment(ctx, domain.NewComment{PostID: post.ID, ParentID: &root.ID, AuthorID: "user-1", Content: "reply"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), receipt.Version)

	roots, err := s.GetCommentsByPostID(ctx, post.ID, storage.PaginationArgs{Limit: 10})
	require.NoError(t, err)
	require.Len(t, roots, 1)

	children, err := s.GetCommentsByParentIDs(ctx, []string{root.ID})
	require.NoError(t, err)
	assert.Len(t, children[root.ID], 1)

	_, err = s.InsertBookmark(ctx, "user-2", post.ID)
	require.NoError(t, err)

	stats, err := s.UserStats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserStats{Posts: 1, BookmarksRecvd: 1, CommentsGiven: 1}, stats)
}
