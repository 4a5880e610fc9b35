package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UkralStul/promptkaart/internal/domain"
)

func TestRedisBridge_RoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := NewBroker(nil, 4)
	sub, err := local.Subscribe(ctx, domain.RelationLikes)
	require.NoError(t, err)
	defer sub.Close()

	bridge := NewRedisBridge(rdb, local, nil)
	require.NoError(t, bridge.Start(ctx))

	require.NoError(t, bridge.Publish(ctx, likeEvent("p1", "u2")))

	select {
	case ev := <-sub.Events():
		assert.Equal(t, domain.RelationLikes, ev.Relation)
		assert.Equal(t, "u2", ev.New.UserID)
		assert.Equal(t, int64(1), ev.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("event did not come back through redis")
	}
}

func TestRedisBridge_IgnoresMalformedPayload(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = rdb.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := NewBroker(nil, 4)
	sub, err := local.Subscribe(ctx, domain.RelationLikes)
	require.NoError(t, err)
	defer sub.Close()

	bridge := NewRedisBridge(rdb, local, nil)
	require.NoError(t, bridge.Start(ctx))

	require.NoError(t, rdb.Publish(ctx, bridge.Channel(domain.RelationLikes), "not json").Err())

	assert.Never(t, func() bool {
		return len(sub.Events()) > 0
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestRedisBridge_NilClientPublishesLocally(t *testing.T) {
	local := NewBroker(nil, 4)
	sub, err := local.Subscribe(context.Background(), domain.RelationLikes)
	require.NoError(t, err)
	defer sub.Close()

	bridge := NewRedisBridge(nil, local, nil)
	require.NoError(t, bridge.Start(context.Background()))
	require.NoError(t, bridge.Publish(context.Background(), likeEvent("p1", "u1")))

	assert.Len(t, sub.Events(), 1)
}
