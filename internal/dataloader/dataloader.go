package dataloader

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/graph-gophers/dataloader"

	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/storage"
)

type contextKey string

const key = contextKey("dataloaders")

// Loaders содержит все дата-лоадеры приложения.
type Loaders struct {
	ChildrenByCommentID *dataloader.Loader
}

// NewLoaders создает лоадеры поверх хранилища. Лоадеры живут один запрос.
func NewLoaders(store storage.Storage) *Loaders {
	// Создаем батч-функцию для лоадера
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		parentIDs := keys.Keys()

		// Вызываем метод хранилища, который делает ОДИН запрос к БД
		commentsMap, err := store.GetCommentsByParentIDs(ctx, parentIDs)
		results := make([]*dataloader.Result, len(keys))
		if err != nil {
			// В случае ошибки, возвращаем ее для всех ключей
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// Формируем результат в том же порядке, что и ключи
		for i, parentID := range parentIDs {
			results[i] = &dataloader.Result{Data: commentsMap[parentID]}
		}
		return results
	}

	return &Loaders{
		ChildrenByCommentID: dataloader.NewBatchedLoader(batchFn,
			dataloader.WithWait(time.Millisecond),
			dataloader.WithClearCacheOnBatch(),
		),
	}
}

// Middleware для внедрения лоадеров в контекст запроса.
func Middleware(store storage.Storage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), key, NewLoaders(store))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// For извлекает лоадеры из контекста. Возвращает nil, если middleware не подключен.
func For(ctx context.Context) *Loaders {
	l, _ := ctx.Value(key).(*Loaders)
	return l
}

// Children загружает ответы на комментарии батчем: все parentIDs уходят в один запрос.
// Результат выровнен по parentIDs.
func (l *Loaders) Children(ctx context.Context, parentIDs []string) ([][]*domain.CommentRecord, error) {
	thunk := l.ChildrenByCommentID.LoadMany(ctx, dataloader.NewKeysFromStrings(parentIDs))
	data, errs := thunk()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	out := make([][]*domain.CommentRecord, len(data))
	for i, d := range data {
		if d == nil {
			continue
		}
		children, ok := d.([]*domain.CommentRecord)
		if !ok {
			return nil, fmt.Errorf("unexpected loader result %T", d)
		}
		out[i] = children
	}
	return out, nil
}

// Descendants обходит дерево ответов уровнями, по одному батчу на уровень.
func (l *Loaders) Descendants(ctx context.Context, roots []*domain.CommentRecord) ([]*domain.CommentRecord, error) {
	var out []*domain.CommentRecord
	level := roots
	for len(level) > 0 {
		ids := make([]string, len(level))
		for i, c := range level {
			ids[i] = c.ID
		}
		children, err := l.Children(ctx, ids)
		if err != nil {
			return nil, err
		}
		var next []*domain.CommentRecord
		for _, group := range children {
			next = append(next, group...)
		}
		out = append(out, next...)
		level = next
	}
	return out, nil
}
