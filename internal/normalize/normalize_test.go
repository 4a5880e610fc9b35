package normalize

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/UkralStul/promptkaart/internal/domain"
)

func TestPost_MissingAuthor(t *testing.T) {
	p := Post(domain.PostRecord{ID: "p1", Prompt: "draw a cat", AISource: "grok"})

	assert.Equal(t, domain.Author{
		ID:     domain.UnknownAuthorID,
		Name:   domain.UnknownAuthorName,
		Avatar: domain.PlaceholderAvatar,
	}, p.Author)
	assert.Equal(t, domain.SourceGrok, p.AISource)
}

func TestPost_PartialAuthorDefaultsPerField(t *testing.T) {
	p := Post(domain.PostRecord{ID: "p1", Author: &domain.AuthorRecord{ID: "u1", Name: ""}})

	assert.Equal(t, "u1", p.Author.ID)
	assert.Equal(t, domain.UnknownAuthorName, p.Author.Name)
	assert.Equal(t, domain.PlaceholderAvatar, p.Author.Avatar)
}

func TestPost_UnknownModelFallsBackToDefault(t *testing.T) {
	assert.Equal(t, domain.DefaultAISource, Post(domain.PostRecord{AISource: "unknown-model"}).AISource)
	assert.Equal(t, domain.DefaultAISource, Post(domain.PostRecord{}).AISource)
	assert.Equal(t, domain.SourceGemini, Post(domain.PostRecord{AISource: " Gemini "}).AISource)
}

func TestPost_ClampsCounters(t *testing.T) {
	p := Post(domain.PostRecord{Likes: -3, Comments: 2, Shares: -1})
	assert.Equal(t, domain.Counters{Likes: 0, Comments: 2, Shares: 0}, p.Counters)
}

func TestPost_Idempotent(t *testing.T) {
	records := []domain.PostRecord{
		{ID: "p1"},
		{
			ID:        "p2",
			Author:    &domain.AuthorRecord{ID: "u1", Name: "Ann", Avatar: "https://a/1.png"},
			Prompt:    "write a haiku",
			Images:    []string{"https://img/1.png"},
			Category:  "Poetry",
			Tags:      []string{"haiku"},
			AISource:  "CHATGPT",
			Likes:     4,
			IsLiked:   true,
			Version:   7,
			CreatedAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}

	for _, r := range records {
		once := Post(r)
		twice := Post(Record(once))
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Errorf("normalize is not idempotent for %s (-once +twice):\n%s", r.ID, diff)
		}
	}
}

func TestComment_DefaultsAndParent(t *testing.T) {
	empty := ""
	c := Comment(domain.CommentRecord{ID: "c1", PostID: "p1", ParentID: &empty, Likes: -1})

	assert.Nil(t, c.ParentID)
	assert.Equal(t, 0, c.Likes)
	assert.Equal(t, domain.UnknownAuthorID, c.Author.ID)

	parent := "c0"
	c = Comment(domain.CommentRecord{ID: "c2", ParentID: &parent})
	if assert.NotNil(t, c.ParentID) {
		assert.Equal(t, "c0", *c.ParentID)
	}
}
