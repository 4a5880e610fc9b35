package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/UkralStul/promptkaart/internal/changefeed"
	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/storage"
)

// setupTestStore поднимает хранилище поверх sqlite в памяти.
func setupTestStore(t *testing.T) (*Store, *changefeed.Broker) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// Каждое соединение с :memory: видит свою базу
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	broker := changefeed.NewBroker(nil, 16)
	store, err := NewWithDB(db, broker, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	for _, id := range []string{"user-1", "user-2"} {
		_, err := store.UpsertProfile(ctx, domain.Profile{ID: id, Name: "Name " + id})
		require.NoError(t, err)
	}
	return store, broker
}

func createPost(t *testing.T, s *Store) *domain.PostRecord {
	post, err := s.CreatePost(context.Background(), domain.NewPost{
		AuthorID: "user-1",
		Title:    "Sunset",
		Prompt:   "A sunset over the mountains",
		Images:   []string{"https://example.com/1.png"},
		Category: "landscape",
		Tags:     []string{"sunset", "mountains"},
		AISource: "gemini",
	})
	require.NoError(t, err)
	return post
}

func TestStore_CreateAndGetPost(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	post := createPost(t, s)

	got, err := s.GetPost(ctx, post.ID, "user-2")
	require.NoError(t, err)
	assert.Equal(t, "Sunset", got.Title)
	assert.Equal(t, []string{"sunset", "mountains"}, got.Tags)
	assert.Equal(t, []string{"https://example.com/1.png"}, got.Images)
	require.NotNil(t, got.Author)
	assert.Equal(t, "Name user-1", got.Author.Name)
	assert.False(t, got.IsLiked)

	_, err = s.GetPost(ctx, "missing", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_LikePublishesVersionedEvents(t *testing.T) {
	s, broker := setupTestStore(t)
	ctx := context.Background()
	post := createPost(t, s)

	sub, err := broker.Subscribe(ctx, domain.RelationLikes)
	require.NoError(t, err)
	defer sub.Close()

	receipt, err := s.InsertLike(ctx, "user-2", post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), receipt.Version)

	ev := <-sub.Events()
	assert.Equal(t, domain.EventInsert, ev.Kind)
	assert.Equal(t, receipt.Version, ev.Version)

	_, err = s.InsertLike(ctx, "user-2", post.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := s.GetPost(ctx, post.ID, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Likes)
	assert.True(t, got.IsLiked)
	assert.Equal(t, int64(1), got.Version)

	receipt, err = s.DeleteLike(ctx, "user-2", post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), receipt.Version)

	again, err := s.DeleteLike(ctx, "user-2", post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Version)

	_, err = s.InsertLike(ctx, "user-2", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_Bookmarks(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	post := createPost(t, s)

	_, err := s.InsertBookmark(ctx, "user-2", post.ID)
	require.NoError(t, err)

	saved, err := s.ListBookmarkedPosts(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.True(t, saved[0].IsBookmarked)

	_, err = s.ListBookmarkedPosts(ctx, "")
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestStore_CommentsAndPagination(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	post := createPost(t, s)

	var roots []*domain.CommentRecord
	for i := 0; i < 4; i++ {
		c, _, err := s.CreateComment(ctx, domain.NewComment{PostID: post.ID, AuthorID: "user-2", Content: fmt.Sprintf("comment %d", i)})
		require.NoError(t, err)
		roots = append(roots, c)
	}
	reply, receipt, err := s.CreateComment(ctx, domain.NewComment{PostID: post.ID, ParentID: &roots[0].ID, AuthorID: "user-1", Content: "reply"})
	require.NoError(t, err)
	assert.Equal(t, int64(5), receipt.Version)

	got, err := s.GetPost(ctx, post.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Comments)

	firstPage, err := s.GetCommentsByPostID(ctx, post.ID, storage.PaginationArgs{Limit: 2})
	require.NoError(t, err)
	require.Len(t, firstPage, 2)

	cursor := firstPage[1].ID
	secondPage, err := s.GetCommentsByPostID(ctx, post.ID, storage.PaginationArgs{Limit: 10, Cursor: &cursor})
	require.NoError(t, err)
	require.Len(t, secondPage, 2)
	assert.NotContains(t, []string{firstPage[0].ID, firstPage[1].ID}, secondPage[0].ID)

	children, err := s.GetCommentsByParentIDs(ctx, []string{roots[0].ID, roots[1].ID})
	require.NoError(t, err)
	require.Len(t, children[roots[0].ID], 1)
	assert.Equal(t, reply.ID, children[roots[0].ID][0].ID)
	assert.Empty(t, children[roots[1].ID])

	_, _, err = s.CreateComment(ctx, domain.NewComment{PostID: post.ID, AuthorID: "user-2", Content: " "})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestStore_CommentLikes(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	post := createPost(t, s)

	c, _, err := s.CreateComment(ctx, domain.NewComment{PostID: post.ID, AuthorID: "user-2", Content: "wow"})
	require.NoError(t, err)

	require.NoError(t, s.InsertCommentLike(ctx, "user-1", c.ID))
	assert.ErrorIs(t, s.InsertCommentLike(ctx, "user-1", c.ID), domain.ErrConflict)

	liked, err := s.LikedCommentIDs(ctx, "user-1", []string{c.ID})
	require.NoError(t, err)
	assert.True(t, liked[c.ID])

	require.NoError(t, s.DeleteCommentLike(ctx, "user-1", c.ID))
	got, err := s.GetCommentByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Likes)
}

func TestStore_DeletePost(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	post := createPost(t, s)

	_, _, err := s.CreateComment(ctx, domain.NewComment{PostID: post.ID, AuthorID: "user-2", Content: "bye"})
	require.NoError(t, err)
	_, err = s.InsertLike(ctx, "user-2", post.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeletePost(ctx, post.ID, "user-2"), domain.ErrForbidden)
	require.NoError(t, s.DeletePost(ctx, post.ID, "user-1"))

	posts, err := s.ListPosts(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestStore_UserStats(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	post := createPost(t, s)

	_, err := s.InsertLike(ctx, "user-2", post.ID)
	require.NoError(t, err)
	_, err = s.InsertBookmark(ctx, "user-2", post.ID)
	require.NoError(t, err)

	stats, err := s.UserStats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserStats{Posts: 1, LikesReceived: 1, BookmarksRecvd: 1}, stats)

	stats, err = s.UserStats(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, domain.UserStats{LikesGiven: 1, BookmarksGiven: 1}, stats)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})))
	assert.True(t, isUniqueViolation(errors.New("UNIQUE constraint failed: likes.user_id")))
	assert.False(t, isUniqueViolation(errors.New("connection refused")))
	assert.False(t, isUniqueViolation(nil))
}
