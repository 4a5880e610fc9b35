package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/promptkaart/internal/auth"
	"github.com/UkralStul/promptkaart/internal/changefeed"
	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/feed"
	"github.com/UkralStul/promptkaart/internal/server"
	"github.com/UkralStul/promptkaart/internal/storage/inmemory"
)

type testEnv struct {
	srv    *httptest.Server
	store  *inmemory.Store
	broker *changefeed.Broker
}

func newTestEnv(t *testing.T) *testEnv {
	broker := changefeed.NewBroker(nil, 16)
	store := inmemory.New(broker, nil)
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)

	srv := httptest.NewServer(server.New(store, broker, tokens, nil, time.Second).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, broker: broker}
}

func (e *testEnv) client(t *testing.T, userID, name string) *Client {
	t.Helper()
	c, err := New(e.srv.URL, WithTimeout(2*time.Second))
	require.NoError(t, err)
	if userID != "" {
		profile, err := c.Login(context.Background(), userID, name, "")
		require.NoError(t, err)
		require.Equal(t, userID, profile.ID)
		require.NotEmpty(t, c.Token())
	}
	return c
}

func createPost(t *testing.T, c *Client) *domain.PostRecord {
	t.Helper()
	post, err := c.CreatePost(context.Background(), domain.NewPost{
		Title:    "Cat",
		Prompt:   "a cat in a hat",
		Tags:     []string{"cat"},
		AISource: "Midjourney",
	})
	require.NoError(t, err)
	return post
}

func TestNew(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)

	_, err = New("://bad")
	assert.Error(t, err)

	c, err := New("https://example.com/api/", WithToken("t"))
	require.NoError(t, err)
	assert.Equal(t, "t", c.Token())
	assert.Equal(t, "https://example.com/api/posts?limit=1", c.endpoint("/posts", map[string][]string{"limit": {"1"}}))
}

func TestClient_PostsLikesAndBookmarks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.client(t, "alice", "Alice")
	bob := env.client(t, "bob", "Bob")

	post := createPost(t, alice)
	require.NotNil(t, post.Author)
	assert.Equal(t, "alice", post.Author.ID)

	rec, err := bob.InsertLike(ctx, "ignored", post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.ID, rec.PostID)
	assert.Greater(t, rec.Version, post.Version)

	_, err = bob.InsertLike(ctx, "", post.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := bob.GetPost(ctx, post.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Likes)
	assert.True(t, got.IsLiked)
	assert.Equal(t, rec.Version, got.Version)

	// Флаги считаются относительно владельца токена
	list, err := alice.ListPosts(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.False(t, list[0].IsLiked)

	_, err = bob.InsertBookmark(ctx, "", post.ID)
	require.NoError(t, err)
	bookmarked, err := bob.ListBookmarkedPosts(ctx, "")
	require.NoError(t, err)
	require.Len(t, bookmarked, 1)
	assert.True(t, bookmarked[0].IsBookmarked)

	_, err = bob.DeleteBookmark(ctx, "", post.ID)
	require.NoError(t, err)
	bookmarked, err = bob.ListBookmarkedPosts(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, bookmarked)

	rec, err = bob.DeleteLike(ctx, "", post.ID)
	require.NoError(t, err)
	got, err = bob.GetPost(ctx, post.ID, "")
	require.NoError(t, err)
	assert.Zero(t, got.Likes)
	assert.Equal(t, rec.Version, got.Version)

	stats, err := alice.UserStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Posts)

	assert.ErrorIs(t, bob.DeletePost(ctx, post.ID), domain.ErrForbidden)
	require.NoError(t, alice.DeletePost(ctx, post.ID))
	_, err = alice.GetPost(ctx, post.ID, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_CommentsAcrossPages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.client(t, "alice", "Alice")
	bob := env.client(t, "bob", "Bob")
	post := createPost(t, alice)

	first, rec, err := bob.CreateComment(ctx, domain.NewComment{PostID: post.ID, Content: "first"})
	require.NoError(t, err)
	assert.Equal(t, "bob", first.Author.ID)
	assert.Equal(t, post.ID, rec.PostID)

	reply, _, err := alice.CreateComment(ctx, domain.NewComment{PostID: post.ID, ParentID: &first.ID, Content: "thanks"})
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)

	// Больше одной страницы корневых комментариев
	for i := range commentPageSize + 5 {
		_, _, err := env.store.CreateComment(ctx, domain.NewComment{PostID: post.ID, AuthorID: "bob", Content: fmt.Sprintf("c%d", i)})
		require.NoError(t, err)
	}

	require.NoError(t, alice.InsertCommentLike(ctx, "", first.ID))
	err = alice.InsertCommentLike(ctx, "", first.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	all, err := alice.ListComments(ctx, post.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, commentPageSize+7)

	seen := make(map[string]bool, len(all))
	for _, c := range all {
		assert.False(t, seen[c.ID], "duplicate comment %s", c.ID)
		seen[c.ID] = true
		if c.ID == first.ID {
			assert.True(t, c.IsLiked)
			assert.Equal(t, 1, c.Likes)
		}
	}
	assert.True(t, seen[reply.ID])

	require.NoError(t, alice.DeleteCommentLike(ctx, "", first.ID))

	_, _, err = bob.CreateComment(ctx, domain.NewComment{PostID: post.ID, Content: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalid)
	_, err = bob.ListComments(ctx, "missing", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.client(t, "alice", "Alice")
	post := createPost(t, alice)

	anon := env.client(t, "", "")
	_, err := anon.InsertLike(ctx, "", post.ID)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	_, err = alice.InsertLike(ctx, "", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	bad := env.client(t, "", "")
	bad.SetToken("not-a-token")
	_, err = bad.ListPosts(ctx, "")
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)

	srv := httptest.NewServer(http.NotFoundHandler())
	down, err := New(srv.URL)
	require.NoError(t, err)
	srv.Close()
	_, err = down.ListPosts(ctx, "")
	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.True(t, domain.IsTransient(err))
}

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   domain.Kind
	}{
		{http.StatusBadRequest, domain.KindInvalid},
		{http.StatusUnauthorized, domain.KindNotAuthenticated},
		{http.StatusForbidden, domain.KindForbidden},
		{http.StatusNotFound, domain.KindNotFound},
		{http.StatusRequestTimeout, domain.KindUnavailable},
		{http.StatusConflict, domain.KindConflict},
		{http.StatusRequestEntityTooLarge, domain.KindInvalid},
		{http.StatusUnprocessableEntity, domain.KindInvalid},
		{http.StatusTooManyRequests, domain.KindUnavailable},
		{http.StatusInternalServerError, domain.KindUnavailable},
		{http.StatusServiceUnavailable, domain.KindUnavailable},
		{http.StatusTeapot, domain.KindUnknown},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, KindForStatus(tt.status))
		})
	}
}

func TestClient_Subscribe(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.client(t, "alice", "Alice")
	bob := env.client(t, "bob", "Bob")
	post := createPost(t, alice)

	sub, err := alice.Subscribe(ctx, domain.RelationLikes)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return env.broker.Subscribers(domain.RelationLikes) == 1
	}, time.Second, 5*time.Millisecond)

	rec, err := bob.InsertLike(ctx, "", post.ID)
	require.NoError(t, err)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, domain.RelationLikes, ev.Relation)
		assert.Equal(t, domain.EventInsert, ev.Kind)
		assert.Equal(t, rec.Version, ev.Version)
		require.NotNil(t, ev.Subject())
		assert.Equal(t, "bob", ev.Subject().UserID)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
	_, open := <-sub.Events()
	assert.False(t, open)
	require.Eventually(t, func() bool {
		return env.broker.Subscribers(domain.RelationLikes) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestClient_SubscribeClosedByContext(t *testing.T) {
	env := newTestEnv(t)
	alice := env.client(t, "alice", "Alice")

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := alice.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, open := <-sub.Events():
			return !open
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	_, err = alice.Subscribe(context.Background(), domain.Relation("nope"))
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestClient_DrivesFeedEngine(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.client(t, "alice", "Alice")
	bob := env.client(t, "bob", "Bob")
	post := createPost(t, bob)

	e := feed.New(alice, feed.Session{ViewerID: "alice"}, feed.Home(), feed.Options{
		Realtime: true,
		Debounce: 10 * time.Millisecond,
	})
	require.NoError(t, e.Start(ctx))
	t.Cleanup(func() { _ = e.Close() })

	require.Len(t, e.Posts(), 1)
	assert.Equal(t, domain.DefaultAISource, e.Posts()[0].AISource)

	require.NoError(t, e.ToggleLike(ctx, post.ID))
	assert.True(t, e.Posts()[0].IsLiked)
	assert.Equal(t, 1, e.Posts()[0].Counters.Likes)

	require.Eventually(t, func() bool {
		return env.broker.Subscribers(domain.RelationLikes) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := bob.InsertLike(ctx, "", post.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return e.Posts()[0].Counters.Likes == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, e.Posts()[0].IsLiked)

	c, err := e.AddComment(ctx, post.ID, "  lovely  ", "")
	require.NoError(t, err)
	assert.Equal(t, "lovely", c.Content)
	assert.Equal(t, 1, e.Posts()[0].Counters.Comments)
}
