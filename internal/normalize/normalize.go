// Package normalize приводит сырые записи бэкенда к каноническому виду.
// Все функции чистые и идемпотентные.
package normalize

import (
	"strings"

	"github.com/UkralStul/promptkaart/internal/domain"
)

// Author заполняет пустые поля автора значениями по умолчанию.
func Author(a *domain.AuthorRecord) domain.Author {
	out := domain.Author{
		ID:     domain.UnknownAuthorID,
		Name:   domain.UnknownAuthorName,
		Avatar: domain.PlaceholderAvatar,
	}
	if a == nil {
		return out
	}
	if a.ID != "" {
		out.ID = a.ID
	}
	if a.Name != "" {
		out.Name = a.Name
	}
	if a.Avatar != "" {
		out.Avatar = a.Avatar
	}
	return out
}

// AISource приводит строку к одной из известных моделей.
func AISource(raw string) domain.AISource {
	v := domain.AISource(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range domain.KnownAISources {
		if v == known {
			return known
		}
	}
	return domain.DefaultAISource
}

// Post превращает запись в канонический пост.
func Post(r domain.PostRecord) domain.Post {
	return domain.Post{
		ID:       r.ID,
		Author:   Author(r.Author),
		Title:    r.Title,
		Body:     r.Prompt,
		Images:   nonNil(r.Images),
		Category: r.Category,
		Tags:     nonNil(r.Tags),
		AISource: AISource(r.AISource),
		Counters: domain.Counters{
			Likes:    clamp(r.Likes),
			Comments: clamp(r.Comments),
			Shares:   clamp(r.Shares),
		},
		IsLiked:      r.IsLiked,
		IsBookmarked: r.IsBookmarked,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
	}
}

// Posts нормализует список, сохраняя порядок.
func Posts(records []domain.PostRecord) []domain.Post {
	out := make([]domain.Post, len(records))
	for i, r := range records {
		out[i] = Post(r)
	}
	return out
}

// Record - обратное преобразование. Normalize(Record(Normalize(r))) == Normalize(r).
func Record(p domain.Post) domain.PostRecord {
	return domain.PostRecord{
		ID: p.ID,
		Author: &domain.AuthorRecord{
			ID:     p.Author.ID,
			Name:   p.Author.Name,
			Avatar: p.Author.Avatar,
		},
		Title:        p.Title,
		Prompt:       p.Body,
		Images:       p.Images,
		Category:     p.Category,
		Tags:         p.Tags,
		AISource:     string(p.AISource),
		Likes:        p.Counters.Likes,
		Comments:     p.Counters.Comments,
		Shares:       p.Counters.Shares,
		IsLiked:      p.IsLiked,
		IsBookmarked: p.IsBookmarked,
		Version:      p.Version,
		CreatedAt:    p.CreatedAt,
	}
}

// Comment превращает запись в канонический комментарий.
func Comment(r domain.CommentRecord) domain.Comment {
	var parent *string
	if r.ParentID != nil && *r.ParentID != "" {
		p := *r.ParentID
		parent = &p
	}
	return domain.Comment{
		ID:        r.ID,
		PostID:    r.PostID,
		ParentID:  parent,
		Author:    Author(r.Author),
		Content:   r.Content,
		Likes:     clamp(r.Likes),
		IsLiked:   r.IsLiked,
		CreatedAt: r.CreatedAt,
	}
}

// Comments нормализует список комментариев.
func Comments(records []domain.CommentRecord) []domain.Comment {
	out := make([]domain.Comment, len(records))
	for i, r := range records {
		out[i] = Comment(r)
	}
	return out
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
