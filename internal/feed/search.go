package feed

import (
	"strings"

	"github.com/UkralStul/promptkaart/internal/domain"
)

// Search возвращает посты, у которых заголовок, текст, категория или один из тегов
// содержат запрос без учёта регистра. Запрос из одних пробелов ничего не находит,
// в остальных пробелы по краям значимы.
func Search(posts []domain.Post, query string) []domain.Post {
	if strings.TrimSpace(query) == "" {
		return []domain.Post{}
	}
	q := strings.ToLower(query)
	out := make([]domain.Post, 0)
	for _, p := range posts {
		if matches(p, q) {
			out = append(out, p)
		}
	}
	return out
}

func matches(p domain.Post, q string) bool {
	if contains(p.Title, q) || contains(p.Body, q) || contains(p.Category, q) {
		return true
	}
	for _, tag := range p.Tags {
		if contains(tag, q) {
			return true
		}
	}
	return false
}

func contains(s, lowerQuery string) bool {
	return strings.Contains(strings.ToLower(s), lowerQuery)
}

// Search ищет по текущему списку движка.
func (e *Engine) Search(query string) []domain.Post {
	return Search(e.Posts(), query)
}
