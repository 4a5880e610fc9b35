package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
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

func run(t *testing.T, srvURL string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--server", srvURL}, args...))
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func TestFeedctl_Session(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	broker := changefeed.NewBroker(nil, 16)
	store := inmemory.New(broker, nil)
	tokens, err := auth.NewTokens("test-secret", time.Hour)
	require.NoError(t, err)
	srv := httptest.NewServer(server.New(store, broker, tokens, nil, time.Second).Handler())
	defer srv.Close()

	ctx := context.Background()
	_, err = store.UpsertProfile(ctx, domain.Profile{ID: "bob", Name: "Bob"})
	require.NoError(t, err)
	post, err := store.CreatePost(ctx, domain.NewPost{AuthorID: "bob", Title: "Neon cat", Prompt: "a neon cat", Tags: []string{"cat"}})
	require.NoError(t, err)

	out := run(t, srv.URL, "login", "alice", "Alice")
	assert.Contains(t, out, "logged in as Alice (alice)")
	saved, err := os.ReadFile(filepath.Join(home, ".feedctl.yml"))
	require.NoError(t, err)
	assert.Contains(t, string(saved), "token")

	out = run(t, srv.URL, "feed")
	assert.Contains(t, out, "Neon cat")
	assert.Contains(t, out, "Bob")

	out = run(t, srv.URL, "like", post.ID)
	assert.Contains(t, out, "liked=true")
	assert.Contains(t, out, "likes=1")

	out = run(t, srv.URL, "bookmark", post.ID)
	assert.Contains(t, out, "bookmarked=true")
	out = run(t, srv.URL, "favorites")
	assert.Contains(t, out, post.ID)

	out = run(t, srv.URL, "comment", post.ID, "so", "bright")
	assert.Contains(t, out, "added")

	out = run(t, srv.URL, "show", post.ID)
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "so bright")

	out = run(t, srv.URL, "search", "dragon")
	assert.Contains(t, out, "no posts")

	out = run(t, srv.URL, "post", "--title", "Fox", "--tag", "fox", "a paper fox")
	assert.Contains(t, out, "published")

	out = run(t, srv.URL, "stats")
	assert.Contains(t, out, "posts")
	assert.Contains(t, out, "likes given")
}

func TestPrintTree(t *testing.T) {
	parent := "c1"
	nodes := []*feed.Node{{
		Comment:  domain.Comment{ID: "c1", Author: domain.Author{Name: "Bob"}, Content: "first", Likes: 2, IsLiked: true},
		CanReply: true,
		Replies: []*feed.Node{{
			Comment: domain.Comment{ID: "c2", ParentID: &parent, Author: domain.Author{Name: "Alice"}, Content: "reply"},
			Depth:   1,
		}},
	}}

	var out bytes.Buffer
	printTree(&out, nodes)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Bob (c1): first  [2 *]", lines[0])
	assert.Equal(t, "  Alice (c2): reply  [0]", lines[1])

	out.Reset()
	printTree(&out, nil)
	assert.Equal(t, "no comments\n", out.String())
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Cat", title(domain.Post{Title: "Cat", Body: "ignored"}))
	assert.Equal(t, "short body", title(domain.Post{Body: "short body"}))
	long := strings.Repeat("я", 50)
	assert.Equal(t, strings.Repeat("я", 40)+"...", title(domain.Post{Body: long}))
}
