package storage

import (
	"context"
	"strings"

	"github.com/UkralStul/promptkaart/internal/domain"
)

const (
	maxPromptLength = 50000
	maxTitleLength  = 300
	maxTags         = 20
)

// RequireViewer проверяет, что операция выполняется от имени пользователя.
func RequireViewer(viewerID string) error {
	if strings.TrimSpace(viewerID) == "" {
		return domain.ErrNotAuthenticated
	}
	return nil
}

// ValidateNewPost проверяет входные данные поста.
func ValidateNewPost(in domain.NewPost) error {
	if err := RequireViewer(in.AuthorID); err != nil {
		return err
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return domain.NewValidationError("prompt cannot be empty")
	}
	if len(in.Prompt) > maxPromptLength {
		return domain.NewValidationError("prompt is too long")
	}
	if len(in.Title) > maxTitleLength {
		return domain.NewValidationError("title is too long")
	}
	if len(in.Tags) > maxTags {
		return domain.NewValidationError("too many tags")
	}
	return nil
}

// ValidateNewComment проверяет входные данные комментария.
func ValidateNewComment(in domain.NewComment) error {
	if err := RequireViewer(in.AuthorID); err != nil {
		return err
	}
	if len(in.Content) > domain.MaxCommentLength {
		return domain.NewValidationError("comment content is too long")
	}
	if strings.TrimSpace(in.Content) == "" {
		return domain.NewValidationError("comment content cannot be empty")
	}
	return nil
}

// CleanTags убирает пустые и повторяющиеся теги.
func CleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return out
}

// NopPublisher отбрасывает события. Используется, когда лента изменений не нужна.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.ChangeEvent) error { return nil }
