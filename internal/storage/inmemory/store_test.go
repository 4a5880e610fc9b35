package inmemory

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/storage"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.ChangeEvent
}

func (r *recordingPublisher) Publish(_ context.Context, ev domain.ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) last() domain.ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

// newTestStore создает хранилище, автора и один пост для тестов
func newTestStore(t *testing.T) (*Store, *recordingPublisher, *domain.PostRecord) {
	pub := &recordingPublisher{}
	store := New(pub, nil)
	ctx := context.Background()

	_, err := store.UpsertProfile(ctx, domain.Profile{ID: "user-1", Name: "Alice", Avatar: "https://example.com/a.png"})
	require.NoError(t, err)

	post, err := store.CreatePost(ctx, domain.NewPost{
		AuthorID: "user-1",
		Title:    "Test Post",
		Prompt:   "Draw a cat in space",
		Category: "art",
		Tags:     []string{"cat", " cat ", "space"},
		AISource: "grok",
	})
	require.NoError(t, err)
	return store, pub, post
}

func TestStore_CreateAndGetPost(t *testing.T) {
	store, pub, post := newTestStore(t)
	ctx := context.Background()

	retrieved, err := store.GetPost(ctx, post.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "Test Post", retrieved.Title)
	assert.Equal(t, []string{"cat", "space"}, retrieved.Tags)
	require.NotNil(t, retrieved.Author)
	assert.Equal(t, "Alice", retrieved.Author.Name)

	ev := pub.last()
	assert.Equal(t, domain.RelationPosts, ev.Relation)
	assert.Equal(t, domain.EventInsert, ev.Kind)

	_, err = store.GetPost(ctx, "non-existent-id", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_CreatePost_RequiresViewer(t *testing.T) {
	store := New(nil, nil)
	_, err := store.CreatePost(context.Background(), domain.NewPost{Prompt: "x"})
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestStore_ListPosts_NewestFirst(t *testing.T) {
	store, _, first := newTestStore(t)
	ctx := context.Background()

	second, err := store.CreatePost(ctx, domain.NewPost{AuthorID: "user-1", Prompt: "second"})
	require.NoError(t, err)

	posts, err := store.ListPosts(ctx, "")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, second.ID, posts[0].ID)
	assert.Equal(t, first.ID, posts[1].ID)
}

func TestStore_LikeLifecycle(t *testing.T) {
	store, pub, post := newTestStore(t)
	ctx := context.Background()

	receipt, err := store.InsertLike(ctx, "user-2", post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.Version+1, receipt.Version)

	ev := pub.last()
	assert.Equal(t, domain.RelationLikes, ev.Relation)
	assert.Equal(t, receipt.Version, ev.Version)
	assert.Equal(t, "user-2", ev.New.UserID)

	// Повторный лайк - конфликт, счётчик не меняется
	_, err = store.InsertLike(ctx, "user-2", post.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := store.GetPost(ctx, post.ID, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Likes)
	assert.True(t, got.IsLiked)

	receipt, err = store.DeleteLike(ctx, "user-2", post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.Version+2, receipt.Version)
	assert.Equal(t, domain.EventDelete, pub.last().Kind)

	// Удаление отсутствующего лайка не меняет версию
	again, err := store.DeleteLike(ctx, "user-2", post.ID)
	require.NoError(t, err)
	assert.Equal(t, receipt.Version, again.Version)

	got, err = store.GetPost(ctx, post.ID, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Likes)
	assert.False(t, got.IsLiked)
}

func TestStore_LikeRequiresViewer(t *testing.T) {
	store, _, post := newTestStore(t)
	_, err := store.InsertLike(context.Background(), "", post.ID)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestStore_Bookmarks(t *testing.T) {
	store, _, post := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertBookmark(ctx, "user-2", post.ID)
	require.NoError(t, err)
	_, err = store.InsertBookmark(ctx, "user-2", post.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	saved, err := store.ListBookmarkedPosts(ctx, "user-2")
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.True(t, saved[0].IsBookmarked)

	others, err := store.ListBookmarkedPosts(ctx, "user-3")
	require.NoError(t, err)
	assert.Empty(t, others)

	_, err = store.DeleteBookmark(ctx, "user-2", post.ID)
	require.NoError(t, err)
	saved, err = store.ListBookmarkedPosts(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, saved)
}

func TestStore_DeletePost(t *testing.T) {
	store, pub, post := newTestStore(t)
	ctx := context.Background()

	err := store.DeletePost(ctx, post.ID, "user-2")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, store.DeletePost(ctx, post.ID, "user-1"))
	ev := pub.last()
	assert.Equal(t, domain.EventDelete, ev.Kind)
	assert.Equal(t, post.ID, ev.Subject().ID)

	_, err = store.GetPost(ctx, post.ID, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_CreateComment_Success(t *testing.T) {
	store, pub, post := newTestStore(t)
	ctx := context.Background()

	comment, receipt, err := store.CreateComment(ctx, domain.NewComment{PostID: post.ID, AuthorID: "user-2", Content: "First comment!"})
	require.NoError(t, err)
	assert.NotEmpty(t, comment.ID)
	assert.Equal(t, post.ID, receipt.PostID)
	assert.Equal(t, receipt.Version, pub.last().Version)

	comments, err := store.GetCommentsByPostID(ctx, post.ID, storage.PaginationArgs{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, comments, 1)
	assert.Equal(t, "First comment!", comments[0].Content)

	got, err := store.GetPost(ctx, post.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Comments)
}

func TestStore_CreateComment_TooLong(t *testing.T) {
	store, _, post := newTestStore(t)
	ctx := context.Background()

	longContent := strings.Repeat("a", 2001)
	_, _, err := store.CreateComment(ctx, domain.NewComment{PostID: post.ID, AuthorID: "user-2", Content: longContent})
	require.Error(t, err)
	assert.Equal(t, "comment content is too long", err.Error())
}

func TestStore_CreateComment_EmptyContent(t *testing.T) {
	store, _, post := newTestStore(t)
	ctx := context.Background()

	_, _, err := store.CreateComment(ctx, domain.NewComment{PostID: post.ID, AuthorID: "user-2", Content: "  "})
	require.Error(t, err)
	assert.Equal(t, "comment content cannot be empty", err.Error())
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestStore_CreateNestedComment(t *testing.T) {
	store, _, post := newTestStore(t)
	ctx := context.Background()

	parentComment, _, err := store.CreateComment(ctx, domain.NewComment{PostID: post.ID, AuthorID: "user-2", Content: "Parent"})
	require.NoError(t, err)

	childComment, _, err := store.CreateComment(ctx, domain.NewComment{PostID: post.ID, ParentID: &parentComment.ID, AuthorID: "user-3", Content: "Child"})
	require.NoError(t, err)

	// Проверяем, что дочерний коммент не в корне поста
	rootComments, err := store.GetCommentsByPostID(ctx, post.ID, storage.PaginationArgs{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, rootComments, 1)
	assert.Equal(t, parentComment.ID, rootComments[0].ID)

	// Проверяем, что дочерний коммент находится у родителя
	children, err := store.GetCommentsByParentID(ctx, parentComment.ID, storage.PaginationArgs{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, children, 1)
	assert.Equal(t, childComment.ID, children[0].ID)

	byParent, err := store.GetCommentsByParentIDs(ctx, []string{parentComment.ID, childComment.ID})
	require.NoError(t, err)
	assert.Len(t, byParent[parentComment.ID], 1)
	assert.Empty(t, byParent[childComment.ID])

	missing := "nope"
	_, _, err = store.CreateComment(ctx, domain.NewComment{PostID: post.ID, ParentID: &missing, AuthorID: "user-3", Content: "Orphan"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_Pagination(t *testing.T) {
	store, _, post := newTestStore(t)
	ctx := context.Background()

	// Создаем 5 комментариев
	for i := 0; i < 5; i++ {
		_, _, err := store.CreateComment(ctx, domain.NewComment{PostID: post.ID, AuthorID: "user-1", Content: "some comment"})
		require.NoError(t, err)
	}

	// Запрашиваем первую страницу из 2-х комментариев
	firstPage, err := store.GetCommentsByPostID(ctx, post.ID, storage.PaginationArgs{Limit: 2})
	require.NoError(t, err)
	require.Len(t, firstPage, 2)

	// Запрашиваем вторую страницу из 3-х, используя курсор
	cursor := firstPage[1].ID
	secondPage, err := store.GetCommentsByPostID(ctx, post.ID, storage.PaginationArgs{Limit: 3, Cursor: &cursor})
	require.NoError(t, err)
	require.Len(t, secondPage, 3)

	// Убеждаемся, что ID не пересекаются
	assert.NotEqual(t, firstPage[0].ID, secondPage[0].ID)
	assert.NotEqual(t, firstPage[1].ID, secondPage[0].ID)
}

func TestStore_CommentLikes(t *testing.T) {
	store, _, post := newTestStore(t)
	ctx := context.Background()

	c, _, err := store.CreateComment(ctx, domain.NewComment{PostID: post.ID, AuthorID: "user-2", Content: "nice"})
	require.NoError(t, err)

	require.NoError(t, store.InsertCommentLike(ctx, "user-3", c.ID))
	assert.ErrorIs(t, store.InsertCommentLike(ctx, "user-3", c.ID), domain.ErrConflict)

	liked, err := store.LikedCommentIDs(ctx, "user-3", []string{c.ID, "other"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{c.ID: true}, liked)

	got, err := store.GetCommentByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Likes)

	require.NoError(t, store.DeleteCommentLike(ctx, "user-3", c.ID))
	require.NoError(t, store.DeleteCommentLike(ctx, "user-3", c.ID))
	got, err = store.GetCommentByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Likes)
}

func TestStore_DeletedProfileLeavesNilAuthor(t *testing.T) {
	store, _, post := newTestStore(t)
	ctx := context.Background()

	store.DeleteProfile(ctx, "user-1")
	got, err := store.GetPost(ctx, post.ID, "")
	require.NoError(t, err)
	assert.Nil(t, got.Author)
}

func TestStore_UserStats(t *testing.T) {
	store, _, post := newTestStore(t)
	ctx := context.Background()

	_, err := store.InsertLike(ctx, "user-2", post.ID)
	require.NoError(t, err)
	_, err = store.InsertBookmark(ctx, "user-2", post.ID)
	require.NoError(t, err)
	_, _, err = store.CreateComment(ctx, domain.NewComment{PostID: post.ID, AuthorID: "user-2", Content: "hi"})
	require.NoError(t, err)

	author, err := store.UserStats(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserStats{Posts: 1, LikesReceived: 1, BookmarksRecvd: 1}, author)

	fan, err := store.UserStats(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, domain.UserStats{LikesGiven: 1, BookmarksGiven: 1, CommentsGiven: 1}, fan)
}
