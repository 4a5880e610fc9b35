package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/UkralStul/promptkaart/internal/domain"
)

func likeEvent(postID, userID string) domain.ChangeEvent {
	return domain.ChangeEvent{
		Relation: domain.RelationLikes,
		Kind:     domain.EventInsert,
		New:      &domain.Row{ID: postID + ":" + userID, PostID: postID, UserID: userID},
		Version:  1,
	}
}

func TestBroker_DeliversOnlySubscribedRelations(t *testing.T) {
	b := NewBroker(nil, 4)
	ctx := context.Background()

	likes, err := b.Subscribe(ctx, domain.RelationLikes)
	require.NoError(t, err)
	defer likes.Close()
	posts, err := b.Subscribe(ctx, domain.RelationPosts)
	require.NoError(t, err)
	defer posts.Close()

	require.NoError(t, b.Publish(ctx, likeEvent("p1", "u1")))

	select {
	case ev := <-likes.Events():
		assert.Equal(t, "p1", ev.New.PostID)
	case <-time.After(time.Second):
		t.Fatal("like event was not delivered")
	}

	select {
	case ev := <-posts.Events():
		t.Fatalf("posts subscriber received unexpected event %+v", ev)
	default:
	}
}

func TestBroker_SubscribeAllByDefault(t *testing.T) {
	b := NewBroker(nil, 4)
	sub, err := b.Subscribe(context.Background())
	require.NoError(t, err)
	defer sub.Close()

	for _, r := range domain.AllRelations {
		assert.Equal(t, 1, b.Subscribers(r))
	}
}

func TestBroker_RejectsUnknownRelation(t *testing.T) {
	b := NewBroker(nil, 4)
	_, err := b.Subscribe(context.Background(), domain.Relation("profiles"))
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestBroker_SlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := NewBroker(nil, 1)
	sub, err := b.Subscribe(context.Background(), domain.RelationLikes)
	require.NoError(t, err)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = b.Publish(context.Background(), likeEvent("p1", "u1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, sub.Events(), 1)
}

func TestBroker_ContextCancelUnsubscribes(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker(nil, 4)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := b.Subscribe(ctx, domain.RelationComments)
	require.NoError(t, err)
	require.Equal(t, 1, b.Subscribers(domain.RelationComments))

	cancel()

	assert.Eventually(t, func() bool {
		return b.Subscribers(domain.RelationComments) == 0
	}, time.Second, 5*time.Millisecond)

	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBroker(nil, 4)
	sub, err := b.Subscribe(context.Background(), domain.RelationLikes)
	require.NoError(t, err)

	assert.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
	assert.Equal(t, 0, b.Subscribers(domain.RelationLikes))

	// Публикация после отписки не паникует.
	assert.NoError(t, b.Publish(context.Background(), likeEvent("p1", "u1")))
}
