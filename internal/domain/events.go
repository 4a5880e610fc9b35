package domain

import (
	"fmt"
	"time"
)

// Relation - таблица, изменения которой транслируются в ленту изменений.
type Relation string

const (
	RelationPosts     Relation = "posts"
	RelationLikes     Relation = "likes"
	RelationBookmarks Relation = "bookmarks"
	RelationComments  Relation = "comments"
)

// AllRelations - все отношения, на которые можно подписаться.
var AllRelations = []Relation{RelationPosts, RelationLikes, RelationBookmarks, RelationComments}

// ParseRelation проверяет имя отношения.
func ParseRelation(s string) (Relation, error) {
	for _, r := range AllRelations {
		if string(r) == s {
			return r, nil
		}
	}
	return "", NewValidationError(fmt.Sprintf("unknown relation %q", s))
}

// EventKind - вид изменения строки.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
)

// Row - строка одного из отношений. Для posts ID совпадает с PostID, а UserID - автор.
type Row struct {
	ID       string  `json:"id"`
	PostID   string  `json:"post_id"`
	UserID   string  `json:"user_id"`
	ParentID *string `json:"parent_id,omitempty"`
}

// ChangeEvent - уведомление об изменении строки.
// Version - версия поста после изменения (0, если пост удалён).
type ChangeEvent struct {
	Relation    Relation  `json:"relation"`
	Kind        EventKind `json:"kind"`
	New         *Row      `json:"new,omitempty"`
	Old         *Row      `json:"old,omitempty"`
	Version     int64     `json:"version"`
	CommittedAt time.Time `json:"committed_at"`
}

// Subject возвращает строку события: новую для insert/update, старую для delete.
func (e ChangeEvent) Subject() *Row {
	if e.Kind == EventDelete || e.New == nil {
		return e.Old
	}
	return e.New
}

// Subscription - подписка на ленту изменений. Close идемпотентен и
// после него канал Events закрывается.
type Subscription interface {
	Events() <-chan ChangeEvent
	Close() error
}
