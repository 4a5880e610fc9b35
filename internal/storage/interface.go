package storage

import (
	"context"

	"github.com/UkralStul/promptkaart/internal/domain"
)

// PaginationArgs - аргументы для пагинации.
type PaginationArgs struct {
	Limit  int
	Cursor *string
}

// Storage определяет контракт для хранилищ.
// Каждая запись, касающаяся поста, увеличивает его версию и публикует ChangeEvent.
// Повторная вставка лайка или закладки возвращает domain.ErrConflict,
// удаление отсутствующей строки - не ошибка.
type Storage interface {
	// Посты. viewerID может быть пустым (анонимный зритель).
	ListPosts(ctx context.Context, viewerID string) ([]*domain.PostRecord, error)
	GetPost(ctx context.Context, postID, viewerID string) (*domain.PostRecord, error)
	ListBookmarkedPosts(ctx context.Context, viewerID string) ([]*domain.PostRecord, error)
	CreatePost(ctx context.Context, in domain.NewPost) (*domain.PostRecord, error)
	DeletePost(ctx context.Context, postID, viewerID string) error

	// Лайки и закладки
	InsertLike(ctx context.Context, viewerID, postID string) (domain.Receipt, error)
	DeleteLike(ctx context.Context, viewerID, postID string) (domain.Receipt, error)
	InsertBookmark(ctx context.Context, viewerID, postID string) (domain.Receipt, error)
	DeleteBookmark(ctx context.Context, viewerID, postID string) (domain.Receipt, error)

	// Комментарии
	CreateComment(ctx context.Context, in domain.NewComment) (*domain.CommentRecord, domain.Receipt, error)
	GetCommentByID(ctx context.Context, id string) (*domain.CommentRecord, error)
	InsertCommentLike(ctx context.Context, viewerID, commentID string) error
	DeleteCommentLike(ctx context.Context, viewerID, commentID string) error
	LikedCommentIDs(ctx context.Context, viewerID string, commentIDs []string) (map[string]bool, error)

	// Методы для пагинации
	GetCommentsByPostID(ctx context.Context, postID string, args PaginationArgs) ([]*domain.CommentRecord, error)
	GetCommentsByParentID(ctx context.Context, parentID string, args PaginationArgs) ([]*domain.CommentRecord, error)

	// Методы для Dataloader'ов
	GetCommentsByParentIDs(ctx context.Context, parentIDs []string) (map[string][]*domain.CommentRecord, error)

	// Профили
	UpsertProfile(ctx context.Context, p domain.Profile) (*domain.Profile, error)
	GetProfile(ctx context.Context, id string) (*domain.Profile, error)
	UserStats(ctx context.Context, userID string) (domain.UserStats, error)

	Close() error
}
