// Package feed держит локальный список постов согласованным с удалённым
// источником: первичная загрузка, оптимистичные изменения и события ленты изменений.
package feed

import (
	"slices"

	"github.com/UkralStul/promptkaart/internal/domain"
)

// ScopeKind - экран, который обслуживает движок.
type ScopeKind int

const (
	ScopeHome ScopeKind = iota
	ScopeFavorites
	ScopeDetail
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeHome:
		return "home"
	case ScopeFavorites:
		return "favorites"
	case ScopeDetail:
		return "detail"
	}
	return "unknown"
}

// Scope - набор постов движка. PostID задан только для ScopeDetail.
type Scope struct {
	Kind   ScopeKind
	PostID string
}

func Home() Scope                { return Scope{Kind: ScopeHome} }
func Favorites() Scope           { return Scope{Kind: ScopeFavorites} }
func Detail(postID string) Scope { return Scope{Kind: ScopeDetail, PostID: postID} }

// Status - состояние загрузки списка.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// MutationKind - что меняет оптимистичная мутация.
type MutationKind string

const (
	MutationLike     MutationKind = "like"
	MutationBookmark MutationKind = "bookmark"
)

// Phase - фаза мутации: Idle -> Pending -> Committed | RolledBack.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseCommitted
	PhaseRolledBack
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	case PhaseCommitted:
		return "committed"
	case PhaseRolledBack:
		return "rolled_back"
	}
	return "unknown"
}

// Mutation - запись журнала мутаций.
type Mutation struct {
	ID     uint64
	Kind   MutationKind
	PostID string
	// Target - значение флага, которое устанавливает мутация.
	Target bool
	Phase  Phase
	Err    error
	// Snapshot - пост до применения мутации.
	Snapshot domain.Post
}

// maxFinished - сколько завершённых мутаций хранится в журнале.
const maxFinished = 32

// State - неизменяемый снимок ленты. Reduce никогда не меняет переданный State.
type State struct {
	Scope    Scope
	ViewerID string
	Status   Status
	Err      error
	Posts    []domain.Post
	// Applied - версии выше базовой версии поста, уже учтённые в его счётчиках.
	Applied   map[string][]int64
	Mutations []Mutation
}

// NewState - пустое состояние для зрителя и экрана.
func NewState(scope Scope, viewerID string) State {
	return State{Scope: scope, ViewerID: viewerID}
}

func (s State) index(postID string) int {
	return slices.IndexFunc(s.Posts, func(p domain.Post) bool { return p.ID == postID })
}

// Post возвращает загруженный пост.
func (s State) Post(postID string) (domain.Post, bool) {
	if i := s.index(postID); i >= 0 {
		return s.Posts[i], true
	}
	return domain.Post{}, false
}

// Pending - мутации, ожидающие ответа бэкенда.
func (s State) Pending() []Mutation {
	var out []Mutation
	for _, m := range s.Mutations {
		if m.Phase == PhasePending {
			out = append(out, m)
		}
	}
	return out
}

// PhaseOf - фаза последней мутации данного вида над постом; PhaseIdle, если мутаций не было.
func (s State) PhaseOf(postID string, kind MutationKind) Phase {
	for i := len(s.Mutations) - 1; i >= 0; i-- {
		m := s.Mutations[i]
		if m.PostID == postID && m.Kind == kind {
			return m.Phase
		}
	}
	return PhaseIdle
}

func (s State) mutation(id uint64) int {
	return slices.IndexFunc(s.Mutations, func(m Mutation) bool { return m.ID == id })
}

// seen сообщает, отражено ли изменение с версией v в посте.
// Нулевая версия означает, что источник версий не ведёт.
func (s State) seen(p domain.Post, v int64) bool {
	if v == 0 {
		return false
	}
	return v <= p.Version || slices.Contains(s.Applied[p.ID], v)
}

func (s State) maxApplied(postID string) int64 {
	var hi int64
	for _, v := range s.Applied[postID] {
		hi = max(hi, v)
	}
	return hi
}
