package feed

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/metrics"
	"github.com/UkralStul/promptkaart/internal/normalize"
)

var (
	// ErrEmptyComment - текст комментария пуст после обрезки пробелов.
	ErrEmptyComment = &domain.Error{Kind: domain.KindInvalid, Message: "comment is empty"}
	// ErrCommentInFlight - комментарий к этому посту уже отправляется.
	ErrCommentInFlight = &domain.Error{Kind: domain.KindConflict, Message: "comment submission already in progress"}
)

// ToggleLike переключает лайк зрителя. Состояние меняется сразу,
// при ошибке бэкенда лайк и счётчик возвращаются к снимку.
func (e *Engine) ToggleLike(ctx context.Context, postID string) error {
	return e.toggle(ctx, MutationLike, postID)
}

// ToggleBookmark переключает закладку зрителя. Конфликт при вставке считается успехом.
func (e *Engine) ToggleBookmark(ctx context.Context, postID string) error {
	return e.toggle(ctx, MutationBookmark, postID)
}

func (e *Engine) toggle(ctx context.Context, kind MutationKind, postID string) error {
	if e.session.Anonymous() {
		return domain.ErrNotAuthenticated
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.nextID++
	id := e.nextID
	e.mu.Unlock()

	eff := e.dispatch(MutationApplied{ID: id, Kind: kind, PostID: postID})
	if eff.Mutation == nil {
		if e.isClosed() {
			return ErrClosed
		}
		return domain.NewNotFoundError("post", postID)
	}
	target := eff.Mutation.Target

	ctx, cancel := e.call(ctx)
	defer cancel()
	rec, err := e.write(ctx, kind, target, postID)
	if err != nil {
		err = remoteErr(err)
		eff = e.dispatch(MutationFailed{ID: id, Err: err})
		if eff.Mutation == nil {
			return err
		}
		e.finished(*eff.Mutation)
		if eff.Mutation.Phase == PhaseCommitted {
			return nil
		}
		e.log.Info("mutation rolled back",
			zap.String("kind", string(kind)),
			zap.String("post_id", postID),
			zap.Error(err))
		return err
	}

	if eff = e.dispatch(MutationCommitted{ID: id, Receipt: rec}); eff.Mutation != nil {
		e.finished(*eff.Mutation)
	}
	return nil
}

func (e *Engine) write(ctx context.Context, kind MutationKind, target bool, postID string) (domain.Receipt, error) {
	viewer := e.session.ViewerID
	switch {
	case kind == MutationLike && target:
		return e.src.InsertLike(ctx, viewer, postID)
	case kind == MutationLike:
		return e.src.DeleteLike(ctx, viewer, postID)
	case target:
		return e.src.InsertBookmark(ctx, viewer, postID)
	default:
		return e.src.DeleteBookmark(ctx, viewer, postID)
	}
}

func (e *Engine) finished(m Mutation) {
	metrics.FeedMutations.WithLabelValues(string(m.Kind), m.Phase.String()).Inc()
}

// AddComment отправляет комментарий или ответ (parentID != "").
// Счётчик комментариев растёт только после подтверждения бэкенда.
func (e *Engine) AddComment(ctx context.Context, postID, body, parentID string) (domain.Comment, error) {
	if e.session.Anonymous() {
		return domain.Comment{}, domain.ErrNotAuthenticated
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return domain.Comment{}, ErrEmptyComment
	}
	if utf8.RuneCountInString(body) > domain.MaxCommentLength {
		return domain.Comment{}, domain.NewValidationError("comment is too long")
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return domain.Comment{}, ErrClosed
	}
	if e.commenting[postID] {
		e.mu.Unlock()
		return domain.Comment{}, ErrCommentInFlight
	}
	e.commenting[postID] = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.commenting, postID)
		e.mu.Unlock()
	}()

	in := domain.NewComment{PostID: postID, AuthorID: e.session.ViewerID, Content: body}
	if parentID != "" {
		in.ParentID = &parentID
	}

	ctx, cancel := e.call(ctx)
	defer cancel()
	rec, receipt, err := e.src.CreateComment(ctx, in)
	if err != nil {
		return domain.Comment{}, remoteErr(err)
	}
	comment := normalize.Comment(*rec)

	e.dispatch(CommentAdded{PostID: postID, Receipt: receipt})

	e.mu.Lock()
	var threads []*Thread
	for t := range e.threads {
		if t.postID == postID {
			threads = append(threads, t)
		}
	}
	e.mu.Unlock()
	for _, t := range threads {
		t.insert(comment)
	}
	return comment, nil
}
