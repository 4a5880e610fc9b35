// Package changefeed раздаёт события изменения строк подписчикам.
package changefeed

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/UkralStul/promptkaart/internal/domain"
	"github.com/UkralStul/promptkaart/internal/metrics"
)

// DefaultBuffer - размер буфера канала подписчика.
const DefaultBuffer = 64

// Publisher принимает события от хранилища.
type Publisher interface {
	Publish(ctx context.Context, ev domain.ChangeEvent) error
}

// Broker хранит каналы подписчиков на изменения.
type Broker struct {
	mu sync.RWMutex
	//          map[relation] map[subscriberID] subscription
	subs   map[domain.Relation]map[string]*Subscription
	buffer int
	log    *zap.Logger
}

// NewBroker - конструктор брокера. buffer <= 0 означает DefaultBuffer.
func NewBroker(log *zap.Logger, buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Broker{
		subs:   make(map[domain.Relation]map[string]*Subscription),
		buffer: buffer,
		log:    log.Named("changefeed"),
	}
}

// Subscribe регистрирует подписчика на указанные отношения (все, если список пуст).
// Подписка закрывается при отмене ctx или вызове Close.
func (b *Broker) Subscribe(ctx context.Context, relations ...domain.Relation) (*Subscription, error) {
	if len(relations) == 0 {
		relations = domain.AllRelations
	}
	for _, r := range relations {
		if _, err := domain.ParseRelation(string(r)); err != nil {
			return nil, err
		}
	}

	sub := &Subscription{
		id:        uuid.NewString(),
		ch:        make(chan domain.ChangeEvent, b.buffer),
		done:      make(chan struct{}),
		relations: relations,
		broker:    b,
	}

	b.mu.Lock()
	for _, r := range relations {
		if b.subs[r] == nil {
			b.subs[r] = make(map[string]*Subscription)
		}
		b.subs[r][sub.id] = sub
	}
	b.mu.Unlock()
	metrics.ChangefeedSubscribers.Inc()

	// Очистка при отключении клиента
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Publish отправляет событие всем подписчикам отношения без блокировки.
// Медленный подписчик теряет событие.
func (b *Broker) Publish(_ context.Context, ev domain.ChangeEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs[ev.Relation] {
		select {
		case sub.ch <- ev:
			metrics.ChangefeedDelivered.WithLabelValues(string(ev.Relation)).Inc()
		default:
			metrics.ChangefeedDropped.WithLabelValues(string(ev.Relation)).Inc()
			b.log.Warn("subscriber is too slow, event dropped",
				zap.String("subscription", sub.id),
				zap.String("relation", string(ev.Relation)),
				zap.String("kind", string(ev.Kind)))
		}
	}
	return nil
}

// Subscribers возвращает число подписок на отношение.
func (b *Broker) Subscribers(r domain.Relation) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[r])
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	for _, r := range sub.relations {
		if relSubs, ok := b.subs[r]; ok {
			delete(relSubs, sub.id)
			if len(relSubs) == 0 {
				delete(b.subs, r)
			}
		}
	}
	b.mu.Unlock()
}

// Subscription - подписка на брокер.
type Subscription struct {
	id        string
	ch        chan domain.ChangeEvent
	done      chan struct{}
	once      sync.Once
	relations []domain.Relation
	broker    *Broker
}

// ID возвращает идентификатор подписки.
func (s *Subscription) ID() string { return s.id }

// Events возвращает канал событий. Канал закрывается после Close.
func (s *Subscription) Events() <-chan domain.ChangeEvent { return s.ch }

// Close отписывается от брокера. Повторные вызовы ничего не делают.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		// Сначала убираем из карты: после этого Publish не может писать в канал.
		s.broker.remove(s)
		close(s.done)
		close(s.ch)
		metrics.ChangefeedSubscribers.Dec()
	})
	return nil
}
