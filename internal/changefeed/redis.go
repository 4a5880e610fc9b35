package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/UkralStul/promptkaart/internal/domain"
)

// DefaultChannelPrefix - префикс каналов Redis для событий.
const DefaultChannelPrefix = "feed:changes:"

// RedisBridge публикует события в Redis и пересылает полученные из Redis
// события в локальный брокер. Так несколько экземпляров сервиса видят
// записи друг друга.
type RedisBridge struct {
	rdb    *redis.Client
	local  *Broker
	prefix string
	log    *zap.Logger
}

// NewRedisBridge создаёт мост. rdb == nil превращает Publish в прямую
// публикацию в локальный брокер.
func NewRedisBridge(rdb *redis.Client, local *Broker, log *zap.Logger) *RedisBridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisBridge{rdb: rdb, local: local, prefix: DefaultChannelPrefix, log: log.Named("redis-bridge")}
}

// Channel возвращает канал Redis для отношения.
func (b *RedisBridge) Channel(r domain.Relation) string {
	return b.prefix + string(r)
}

// Publish отправляет событие в Redis. Локальные подписчики получат его
// обратно через Start.
func (b *RedisBridge) Publish(ctx context.Context, ev domain.ChangeEvent) error {
	if b.rdb == nil {
		return b.local.Publish(ctx, ev)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.Channel(ev.Relation), payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Start подписывается на каналы всех отношений и пересылает события в
// локальный брокер до отмены ctx. Возвращает управление сразу после подписки.
func (b *RedisBridge) Start(ctx context.Context) error {
	if b.rdb == nil {
		return nil
	}
	sub := b.rdb.PSubscribe(ctx, b.prefix+"*")
	// Дожидаемся подтверждения, чтобы события не терялись сразу после старта.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe to %s*: %w", b.prefix, err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.forward(ctx, msg)
			}
		}
	}()

	return nil
}

func (b *RedisBridge) forward(ctx context.Context, msg *redis.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic while forwarding change event",
				zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()

	var ev domain.ChangeEvent
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		b.log.Warn("malformed change event", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	if string(ev.Relation) != strings.TrimPrefix(msg.Channel, b.prefix) {
		b.log.Warn("change event relation does not match channel",
			zap.String("channel", msg.Channel), zap.String("relation", string(ev.Relation)))
		return
	}
	_ = b.local.Publish(ctx, ev)
}
