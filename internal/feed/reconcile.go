package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/metrics"
)

// subscribe открывает подписку. Она живёт столько же, сколько движок.
func (e *Engine) subscribe() error {
	sub, err := e.src.Subscribe(e.ctx, domain.AllRelations...)
	if err != nil {
		return fmt.Errorf("feed: failed to subscribe: %w", remoteErr(err))
	}

	e.mu.Lock()
	e.sub = sub
	e.mu.Unlock()

	e.wg.Add(1)
	go e.eventLoop(sub)
	return nil
}

// eventLoop применяет события ленты изменений до Close или разрыва подписки.
func (e *Engine) eventLoop(sub domain.Subscription) {
	defer e.wg.Done()
	for {
		select {
		case <-e.ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				if e.ctx.Err() == nil {
					e.log.Warn("change feed closed by remote")
				}
				return
			}
			e.log.Debug("change event",
				zap.String("relation", string(ev.Relation)),
				zap.String("kind", string(ev.Kind)),
				zap.Int64("version", ev.Version))
			e.dispatch(RemoteEvent{Event: ev})
		}
	}
}

func (e *Engine) scheduleRefetch() {
	select {
	case e.kick <- struct{}{}:
	default:
		// Перезагрузка уже запланирована
	}
}

// refetchLoop откладывает перезагрузку, пока события идут чаще Debounce.
func (e *Engine) refetchLoop() {
	defer e.wg.Done()

	timer := time.NewTimer(e.opts.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.kick:
			timer.Reset(e.opts.Debounce)
		case <-timer.C:
			e.refetch(e.ctx)
		}
	}
}

// refetch перезагружает список с экспоненциальным повтором временных ошибок.
func (e *Engine) refetch(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.opts.RetryInterval
	b.MaxInterval = 8 * e.opts.RetryInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := e.fetch(ctx)
		if err != nil && !domain.IsTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(e.opts.MaxRetries))

	if err != nil && ctx.Err() == nil {
		e.log.Warn("refetch failed", zap.Error(err))
	}
}

// Refresh немедленно перезагружает список. Параллельные вызовы объединяются.
func (e *Engine) Refresh(ctx context.Context) error {
	if e.isClosed() {
		return ErrClosed
	}
	return e.fetch(ctx)
}

func (e *Engine) fetch(ctx context.Context) error {
	_, err, _ := e.group.Do("posts", func() (any, error) {
		e.dispatch(FetchStarted{})

		ctx, cancel := e.call(ctx)
		defer cancel()

		posts, err := e.load(ctx)
		metrics.FeedRefetches.WithLabelValues(metrics.Outcome(err)).Inc()
		if err != nil {
			err = remoteErr(err)
			e.dispatch(FetchFailed{Err: err})
			return nil, err
		}
		e.dispatch(FetchSucceeded{Posts: posts})
		return nil, nil
	})
	return err
}

func (e *Engine) load(ctx context.Context) ([]domain.Post, error) {
	viewer := e.session.ViewerID
	scope := e.State().Scope
	switch scope.Kind {
	case ScopeHome:
		recs, err := e.src.ListPosts(ctx, viewer)
		if err != nil {
			return nil, err
		}
		return records(recs), nil
	case ScopeFavorites:
		if e.session.Anonymous() {
			return nil, domain.ErrNotAuthenticated
		}
		recs, err := e.src.ListBookmarkedPosts(ctx, viewer)
		if err != nil {
			return nil, err
		}
		return records(recs), nil
	case ScopeDetail:
		rec, err := e.src.GetPost(ctx, scope.PostID, viewer)
		if err != nil {
			return nil, err
		}
		return records([]*domain.PostRecord{rec}), nil
	}
	return nil, fmt.Errorf("feed: unknown scope %v", scope.Kind)
}
