package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/UkralStul/promptkaart/internal/domain"
)

func TestSearch(t *testing.T) {
	cat := testPost("cat", 0)
	cat.Title = "Neon Cat"
	cat.Body = "glowing whiskers"
	cat.Category = "art"
	cat.Tags = []string{"animals"}

	city := testPost("city", 0)
	city.Title = "Night city"
	city.Body = "rain on asphalt, cinematic"
	city.Category = "Photography"
	city.Tags = []string{"urban", "CyberPunk"}

	posts := []domain.Post{cat, city}

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"empty query", "", nil},
		{"whitespace query", "   ", nil},
		{"title case-insensitive", "neon", []string{"cat"}},
		{"description", "ASPHALT", []string{"city"}},
		{"category", "photo", []string{"city"}},
		{"tag", "cyberpunk", []string{"city"}},
		{"several matches keep order", "n", []string{"cat", "city"}},
		{"no match", "dragon", nil},
		{"leading space kept", " cat", []string{"cat"}},
		{"trailing space kept", "cat ", nil},
		{"inner space", "neon cat", []string{"cat"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Search(posts, tt.query)
			assert.NotNil(t, got)
			var ids []string
			for _, p := range got {
				ids = append(ids, p.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}
