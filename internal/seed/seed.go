// Package seed заполняет хранилище фейковыми данными для разработки.
package seed

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v6"
	"go.uber.org/zap"

	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/storage"
)

var categories = []string{"art", "photography", "writing", "code", "marketing", "fantasy"}

// Options задаёт объём данных. Seed != 0 делает набор воспроизводимым.
type Options struct {
	Users           int
	Posts           int
	CommentsPerPost int
	Seed            int64
}

// DefaultOptions - небольшой набор для локального запуска.
var DefaultOptions = Options{Users: 5, Posts: 12, CommentsPerPost: 3}

// Summary - что было создано.
type Summary struct {
	Users    []string
	Posts    []string
	Comments int
}

// Fill создаёт профили, посты, комментарии с ответами, лайки и закладки.
func Fill(ctx context.Context, s storage.Storage, opts Options, log *zap.Logger) (Summary, error) {
	if log == nil {
		log = zap.NewNop()
	}
	var sum Summary
	if opts.Users <= 0 {
		return sum, domain.NewValidationError("seed needs at least one user")
	}
	f := gofakeit.New(opts.Seed)

	// 1. Профили
	for i := 0; i < opts.Users; i++ {
		p, err := s.UpsertProfile(ctx, domain.Profile{
			ID:     fmt.Sprintf("user-%d", i+1),
			Name:   f.Name(),
			Avatar: fmt.Sprintf("https://i.pravatar.cc/150?u=%s", f.UUID()),
		})
		if err != nil {
			return sum, fmt.Errorf("seed: failed to create profile: %w", err)
		}
		sum.Users = append(sum.Users, p.ID)
	}

	// 2. Посты
	for i := 0; i < opts.Posts; i++ {
		author := sum.Users[f.Number(0, len(sum.Users)-1)]
		post, err := s.CreatePost(ctx, domain.NewPost{
			AuthorID: author,
			Title:    f.Sentence(4),
			Prompt:   f.Paragraph(1, 3, 12, " "),
			Images:   []string{fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.UUID())},
			Category: f.RandomString(categories),
			Tags:     []string{f.Word(), f.Word()},
			AISource: string(domain.KnownAISources[f.Number(0, len(domain.KnownAISources)-1)]),
		})
		if err != nil {
			return sum, fmt.Errorf("seed: failed to create post: %w", err)
		}
		sum.Posts = append(sum.Posts, post.ID)

		// 3. Комментарии: каждый второй - ответ на предыдущий
		var prev *domain.CommentRecord
		for j := 0; j < opts.CommentsPerPost; j++ {
			in := domain.NewComment{
				PostID:   post.ID,
				AuthorID: sum.Users[f.Number(0, len(sum.Users)-1)],
				Content:  f.Sentence(8),
			}
			if prev != nil && j%2 == 1 {
				in.ParentID = &prev.ID
			}
			c, _, err := s.CreateComment(ctx, in)
			if err != nil {
				return sum, fmt.Errorf("seed: failed to create comment: %w", err)
			}
			prev = c
			sum.Comments++
		}

		// 4. Лайки и закладки от случайных пользователей
		for _, u := range sum.Users {
			if f.Bool() {
				if _, err := s.InsertLike(ctx, u, post.ID); err != nil {
					return sum, fmt.Errorf("seed: failed to like post: %w", err)
				}
			}
			if f.Number(0, 3) == 0 {
				if _, err := s.InsertBookmark(ctx, u, post.ID); err != nil {
					return sum, fmt.Errorf("seed: failed to bookmark post: %w", err)
				}
			}
		}
	}

	log.Info("mock data filled",
		zap.Int("users", len(sum.Users)),
		zap.Int("posts", len(sum.Posts)),
		zap.Int("comments", sum.Comments))
	return sum, nil
}
