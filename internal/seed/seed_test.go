package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/storage"
	"github.com/UkralStul/promptkaart/internal/storage/inmemory"
)

func TestFill(t *testing.T) {
	store := inmemory.New(nil, nil)
	ctx := context.Background()

	sum, err := Fill(ctx, store, Options{Users: 3, Posts: 4, CommentsPerPost: 4, Seed: 42}, nil)
	require.NoError(t, err)
	assert.Len(t, sum.Users, 3)
	assert.Len(t, sum.Posts, 4)
	assert.Equal(t, 16, sum.Comments)

	posts, err := store.ListPosts(ctx, "")
	require.NoError(t, err)
	require.Len(t, posts, 4)
	for _, p := range posts {
		require.NotNil(t, p.Author)
		assert.Equal(t, 4, p.Comments)
		assert.Contains(t, domain.KnownAISources, domain.AISource(p.AISource))
	}

	// Ответы присутствуют
	roots, err := store.GetCommentsByPostID(ctx, sum.Posts[0], storage.PaginationArgs{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, roots, 2)
}

func TestFill_RequiresUsers(t *testing.T) {
	_, err := Fill(context.Background(), inmemory.New(nil, nil), Options{}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalid)
}
