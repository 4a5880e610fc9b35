package feed

import (
	"context"
	"errors"

	"github.com/UkralStul/promptkaart/internal/changefeed"
	"github.com/UkralStul/promptkaart/internal/dataloader"
	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/storage"
)

// Source - удалённый бэкенд, с которым синхронизируется лента.
// Ошибки должны быть классифицированы через domain.Error, повторная вставка
// лайка или закладки возвращает domain.ErrConflict.
type Source interface {
	ListPosts(ctx context.Context, viewerID string) ([]*domain.PostRecord, error)
	GetPost(ctx context.Context, postID, viewerID string) (*domain.PostRecord, error)
	ListBookmarkedPosts(ctx context.Context, viewerID string) ([]*domain.PostRecord, error)

	InsertLike(ctx context.Context, viewerID, postID string) (domain.Receipt, error)
	DeleteLike(ctx context.Context, viewerID, postID string) (domain.Receipt, error)
	InsertBookmark(ctx context.Context, viewerID, postID string) (domain.Receipt, error)
	DeleteBookmark(ctx context.Context, viewerID, postID string) (domain.Receipt, error)

	CreateComment(ctx context.Context, in domain.NewComment) (*domain.CommentRecord, domain.Receipt, error)
	// ListComments возвращает все комментарии поста, включая ответы любой глубины.
	ListComments(ctx context.Context, postID, viewerID string) ([]*domain.CommentRecord, error)
	InsertCommentLike(ctx context.Context, viewerID, commentID string) error
	DeleteCommentLike(ctx context.Context, viewerID, commentID string) error

	Subscribe(ctx context.Context, relations ...domain.Relation) (domain.Subscription, error)
}

// Session - текущий зритель. Пустой ViewerID - анонимный пользователь.
type Session struct {
	ViewerID string
}

func (s Session) Anonymous() bool { return s.ViewerID == "" }

// LocalSource работает напрямую с хранилищем и брокером в том же процессе.
type LocalSource struct {
	store  storage.Storage
	broker *changefeed.Broker
}

var _ Source = (*LocalSource)(nil)

// NewLocalSource - конструктор. broker может быть nil, тогда Subscribe недоступен.
func NewLocalSource(store storage.Storage, broker *changefeed.Broker) *LocalSource {
	return &LocalSource{store: store, broker: broker}
}

func (s *LocalSource) ListPosts(ctx context.Context, viewerID string) ([]*domain.PostRecord, error) {
	return s.store.ListPosts(ctx, viewerID)
}

func (s *LocalSource) GetPost(ctx context.Context, postID, viewerID string) (*domain.PostRecord, error) {
	return s.store.GetPost(ctx, postID, viewerID)
}

func (s *LocalSource) ListBookmarkedPosts(ctx context.Context, viewerID string) ([]*domain.PostRecord, error) {
	return s.store.ListBookmarkedPosts(ctx, viewerID)
}

func (s *LocalSource) InsertLike(ctx context.Context, viewerID, postID string) (domain.Receipt, error) {
	return s.store.InsertLike(ctx, viewerID, postID)
}

func (s *LocalSource) DeleteLike(ctx context.Context, viewerID, postID string) (domain.Receipt, error) {
	return s.store.DeleteLike(ctx, viewerID, postID)
}

func (s *LocalSource) InsertBookmark(ctx context.Context, viewerID, postID string) (domain.Receipt, error) {
	return s.store.InsertBookmark(ctx, viewerID, postID)
}

func (s *LocalSource) DeleteBookmark(ctx context.Context, viewerID, postID string) (domain.Receipt, error) {
	return s.store.DeleteBookmark(ctx, viewerID, postID)
}

func (s *LocalSource) CreateComment(ctx context.Context, in domain.NewComment) (*domain.CommentRecord, domain.Receipt, error) {
	return s.store.CreateComment(ctx, in)
}

func (s *LocalSource) InsertCommentLike(ctx context.Context, viewerID, commentID string) error {
	return s.store.InsertCommentLike(ctx, viewerID, commentID)
}

func (s *LocalSource) DeleteCommentLike(ctx context.Context, viewerID, commentID string) error {
	return s.store.DeleteCommentLike(ctx, viewerID, commentID)
}

// localPageSize - размер страницы корневых комментариев при полной выгрузке.
const localPageSize = 100

// ListComments выгружает корни постранично, а ответы - батчами по уровням.
func (s *LocalSource) ListComments(ctx context.Context, postID, viewerID string) ([]*domain.CommentRecord, error) {
	if _, err := s.store.GetPost(ctx, postID, ""); err != nil {
		return nil, err
	}

	var roots []*domain.CommentRecord
	args := storage.PaginationArgs{Limit: localPageSize}
	for {
		page, err := s.store.GetCommentsByPostID(ctx, postID, args)
		if err != nil {
			return nil, err
		}
		roots = append(roots, page...)
		if len(page) < localPageSize {
			break
		}
		args.Cursor = &page[len(page)-1].ID
	}

	descendants, err := dataloader.NewLoaders(s.store).Descendants(ctx, roots)
	if err != nil {
		return nil, err
	}
	all := append(roots, descendants...)

	if viewerID != "" && len(all) > 0 {
		ids := make([]string, len(all))
		for i, c := range all {
			ids[i] = c.ID
		}
		liked, err := s.store.LikedCommentIDs(ctx, viewerID, ids)
		if err != nil {
			return nil, err
		}
		for _, c := range all {
			c.IsLiked = liked[c.ID]
		}
	}
	return all, nil
}

func (s *LocalSource) Subscribe(ctx context.Context, relations ...domain.Relation) (domain.Subscription, error) {
	if s.broker == nil {
		return nil, errors.New("feed: local source has no change feed")
	}
	sub, err := s.broker.Subscribe(ctx, relations...)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
