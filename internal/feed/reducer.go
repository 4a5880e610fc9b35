package feed

import (
	"maps"
	"slices"

	"github.com/UkralStul/promptkaart/internal/domain"
)

// Action - вход редьюсера.
type Action interface{ action() }

type (
	// FetchStarted - началась загрузка списка.
	FetchStarted struct{}
	// FetchSucceeded - список загружен и нормализован.
	FetchSucceeded struct{ Posts []domain.Post }
	// FetchFailed - загрузка не удалась, прежний список остаётся.
	FetchFailed struct{ Err error }

	// MutationApplied - пользователь переключил лайк или закладку.
	MutationApplied struct {
		ID     uint64
		Kind   MutationKind
		PostID string
	}
	// MutationCommitted - бэкенд подтвердил мутацию.
	MutationCommitted struct {
		ID      uint64
		Receipt domain.Receipt
	}
	// MutationFailed - бэкенд отклонил мутацию.
	MutationFailed struct {
		ID  uint64
		Err error
	}

	// CommentAdded - комментарий зрителя сохранён.
	CommentAdded struct {
		PostID  string
		Receipt domain.Receipt
	}

	// RemoteEvent - событие из ленты изменений.
	RemoteEvent struct{ Event domain.ChangeEvent }
)

func (FetchStarted) action()      {}
func (FetchSucceeded) action()    {}
func (FetchFailed) action()       {}
func (MutationApplied) action()   {}
func (MutationCommitted) action() {}
func (MutationFailed) action()    {}
func (CommentAdded) action()      {}
func (RemoteEvent) action()       {}

// Effect - что движок должен сделать после перехода.
type Effect struct {
	// Changed - видимое состояние изменилось, нужно уведомить подписчиков.
	Changed bool
	// Refetch - запланировать полную перезагрузку списка.
	Refetch bool
	// CommentsOf - пост, у которого изменились комментарии.
	CommentsOf string
	// Mutation - запись журнала, затронутая переходом.
	Mutation *Mutation
}

// Reduce - чистая функция перехода состояния ленты.
func Reduce(s State, a Action) (State, Effect) {
	switch a := a.(type) {
	case FetchStarted:
		if s.Status == StatusLoading {
			return s, Effect{}
		}
		s.Status = StatusLoading
		return s, Effect{Changed: true}
	case FetchSucceeded:
		return fetchSucceeded(s, a.Posts)
	case FetchFailed:
		s.Status = StatusFailed
		s.Err = a.Err
		return s, Effect{Changed: true}
	case MutationApplied:
		return mutationApplied(s, a)
	case MutationCommitted:
		return mutationCommitted(s, a.ID, a.Receipt)
	case MutationFailed:
		return mutationFailed(s, a)
	case CommentAdded:
		return commentAdded(s, a)
	case RemoteEvent:
		return remoteEvent(s, a.Event)
	}
	return s, Effect{}
}

func fetchSucceeded(s State, posts []domain.Post) (State, Effect) {
	next := make([]domain.Post, 0, len(posts))
	applied := make(map[string][]int64)
	for _, p := range posts {
		if old, ok := s.Post(p.ID); ok && max(old.Version, s.maxApplied(p.ID)) > p.Version {
			// Локальная копия уже новее ответа
			next = append(next, old)
			if v := s.Applied[p.ID]; len(v) > 0 {
				applied[p.ID] = v
			}
			continue
		}
		for _, m := range s.Mutations {
			if m.Phase == PhasePending && m.PostID == p.ID {
				p = overlay(p, m)
			}
		}
		next = append(next, p)
	}
	s.Posts = next
	s.Applied = applied
	s.Status = StatusReady
	s.Err = nil
	return s, Effect{Changed: true}
}

// overlay накладывает ещё не подтверждённую мутацию на свежие данные.
func overlay(p domain.Post, m Mutation) domain.Post {
	switch m.Kind {
	case MutationLike:
		return setLiked(p, m.Target)
	case MutationBookmark:
		p.IsBookmarked = m.Target
	}
	return p
}

func mutationApplied(s State, a MutationApplied) (State, Effect) {
	i := s.index(a.PostID)
	if i < 0 {
		return s, Effect{}
	}
	p := s.Posts[i]
	m := Mutation{ID: a.ID, Kind: a.Kind, PostID: a.PostID, Phase: PhasePending, Snapshot: p}
	switch a.Kind {
	case MutationLike:
		m.Target = !p.IsLiked
		p = setLiked(p, m.Target)
	case MutationBookmark:
		m.Target = !p.IsBookmarked
		p.IsBookmarked = m.Target
	default:
		return s, Effect{}
	}
	s = s.withPost(i, p)
	s.Mutations = append(slices.Clone(s.Mutations), m)
	return s, Effect{Changed: true, Mutation: &m}
}

func mutationCommitted(s State, id uint64, rec domain.Receipt) (State, Effect) {
	j := s.mutation(id)
	if j < 0 || s.Mutations[j].Phase != PhasePending {
		return s, Effect{}
	}
	m := s.Mutations[j]
	m.Phase = PhaseCommitted
	s = s.withMutation(j, m)

	if i := s.index(m.PostID); i >= 0 {
		switch {
		case m.Kind == MutationBookmark && !m.Target && s.Scope.Kind == ScopeFavorites:
			s = s.withoutPost(i)
		case !s.seen(s.Posts[i], rec.Version):
			s = s.markApplied(m.PostID, rec.Version)
		}
	}
	return s.trimLedger(), Effect{Changed: true, Mutation: &m}
}

func mutationFailed(s State, a MutationFailed) (State, Effect) {
	j := s.mutation(a.ID)
	if j < 0 || s.Mutations[j].Phase != PhasePending {
		return s, Effect{}
	}
	m := s.Mutations[j]
	if m.Kind == MutationBookmark && m.Target && domain.KindOf(a.Err) == domain.KindConflict {
		// Закладка уже есть на бэкенде
		return mutationCommitted(s, a.ID, domain.Receipt{})
	}
	m.Phase = PhaseRolledBack
	m.Err = a.Err
	s = s.withMutation(j, m)

	// Возвращаем поля, которые меняла мутация, к снимку
	if i := s.index(m.PostID); i >= 0 {
		p := s.Posts[i]
		switch m.Kind {
		case MutationLike:
			p.IsLiked = m.Snapshot.IsLiked
			p.Counters.Likes = m.Snapshot.Counters.Likes
		case MutationBookmark:
			p.IsBookmarked = m.Snapshot.IsBookmarked
		}
		s = s.withPost(i, p)
	}
	return s.trimLedger(), Effect{Changed: true, Mutation: &m}
}

func commentAdded(s State, a CommentAdded) (State, Effect) {
	eff := Effect{CommentsOf: a.PostID}
	i := s.index(a.PostID)
	if i < 0 {
		return s, eff
	}
	p := s.Posts[i]
	if s.seen(p, a.Receipt.Version) {
		// Лента изменений успела раньше
		return s, eff
	}
	p.Counters.Comments++
	eff.Changed = true
	return s.withPost(i, p).markApplied(p.ID, a.Receipt.Version), eff
}

func remoteEvent(s State, ev domain.ChangeEvent) (State, Effect) {
	row := ev.Subject()
	if row == nil {
		return s, Effect{}
	}
	if ev.Relation == domain.RelationPosts {
		if s.Scope.Kind == ScopeDetail && row.PostID != s.Scope.PostID && row.ID != s.Scope.PostID {
			return s, Effect{}
		}
		return s, Effect{Refetch: true}
	}

	var eff Effect
	if ev.Relation == domain.RelationComments {
		eff.CommentsOf = row.PostID
	}
	if ev.Kind == domain.EventUpdate {
		// Обновление строки связи не меняет счётчики
		return s, eff
	}
	insert := ev.Kind == domain.EventInsert
	viewer := s.ViewerID != "" && row.UserID == s.ViewerID
	favorites := s.Scope.Kind == ScopeFavorites

	i := s.index(row.PostID)
	if i < 0 {
		if ev.Relation == domain.RelationBookmarks && favorites && viewer && insert {
			eff.Refetch = true
		}
		return s, eff
	}
	p := s.Posts[i]
	if s.seen(p, ev.Version) {
		return s, eff
	}

	switch ev.Relation {
	case domain.RelationLikes:
		switch {
		case viewer && p.IsLiked == insert:
			// Эхо собственной оптимистичной записи
		case viewer:
			p = setLiked(p, insert)
		default:
			p.Counters.Likes = adjust(p.Counters.Likes, insert)
		}
	case domain.RelationBookmarks:
		if !viewer {
			return s, eff
		}
		if favorites && !insert {
			eff.Changed = true
			return s.withoutPost(i), eff
		}
		p.IsBookmarked = insert
	case domain.RelationComments:
		p.Counters.Comments = adjust(p.Counters.Comments, insert)
	default:
		return s, eff
	}

	eff.Changed = !equalPost(p, s.Posts[i])
	return s.withPost(i, p).markApplied(p.ID, ev.Version), eff
}

func setLiked(p domain.Post, liked bool) domain.Post {
	if p.IsLiked == liked {
		return p
	}
	p.IsLiked = liked
	p.Counters.Likes = adjust(p.Counters.Likes, liked)
	return p
}

// adjust прибавляет или отнимает единицу, не опускаясь ниже нуля.
func adjust(n int, up bool) int {
	if up {
		return n + 1
	}
	return max(n-1, 0)
}

func equalPost(a, b domain.Post) bool {
	return a.IsLiked == b.IsLiked && a.IsBookmarked == b.IsBookmarked && a.Counters == b.Counters
}

func (s State) withPost(i int, p domain.Post) State {
	s.Posts = slices.Clone(s.Posts)
	s.Posts[i] = p
	return s
}

func (s State) withoutPost(i int) State {
	s.Posts = slices.Delete(slices.Clone(s.Posts), i, i+1)
	return s
}

func (s State) withMutation(j int, m Mutation) State {
	s.Mutations = slices.Clone(s.Mutations)
	s.Mutations[j] = m
	return s
}

func (s State) markApplied(postID string, v int64) State {
	if v == 0 {
		return s
	}
	applied := make(map[string][]int64, len(s.Applied)+1)
	maps.Copy(applied, s.Applied)
	applied[postID] = append(slices.Clone(s.Applied[postID]), v)
	s.Applied = applied
	return s
}

// trimLedger оставляет все ожидающие мутации и последние maxFinished завершённых.
func (s State) trimLedger() State {
	finished := 0
	for _, m := range s.Mutations {
		if m.Phase != PhasePending {
			finished++
		}
	}
	if finished <= maxFinished {
		return s
	}
	drop := finished - maxFinished
	out := make([]Mutation, 0, len(s.Mutations)-drop)
	for _, m := range s.Mutations {
		if drop > 0 && m.Phase != PhasePending {
			drop--
			continue
		}
		out = append(out, m)
	}
	s.Mutations = out
	return s
}
