package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/retry"
)

func newTestHub(repo *memMessageRepo) *Hub {
	return NewHub(repo, NewEventSink(nil))
}

func TestHub_ConnectReplaysHistoryToNewSubscriberOnly(t *testing.T) {
	ctx := context.Background()
	repo := &memMessageRepo{}
	hub := newTestHub(repo)

	old := newFakeSubscriber("old")
	require.NoError(t, hub.Connect(ctx, old, 7))

	for i := range 3 {
		_, err := hub.Broadcast(ctx, fmt.Sprintf("msg-%d", i), 7, 1)
		require.NoError(t, err)
	}
	_, err := hub.Broadcast(ctx, "other project", 8, 2)
	require.NoError(t, err)

	fresh := newFakeSubscriber("fresh")
	require.NoError(t, hub.Connect(ctx, fresh, 7))

	require.Equal(t, []string{"msg-0", "msg-1", "msg-2"}, fresh.received())
	// replay is not a broadcast
	require.Equal(t, []string{"msg-0", "msg-1", "msg-2"}, old.received())

	_, err = hub.Broadcast(ctx, "live", 7, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"msg-0", "msg-1", "msg-2", "live"}, fresh.received())
}

func TestHub_BroadcastReachesExactlyProjectSubscribers(t *testing.T) {
	ctx := context.Background()
	hub := newTestHub(&memMessageRepo{})

	var inP []*fakeSubscriber
	for i := range 3 {
		s := newFakeSubscriber("p7-" + strconv.Itoa(i))
		require.NoError(t, hub.Connect(ctx, s, 7))
		inP = append(inP, s)
	}
	outsider := newFakeSubscriber("p8")
	require.NoError(t, hub.Connect(ctx, outsider, 8))

	_, err := hub.Broadcast(ctx, "hello", 7, 1)
	require.NoError(t, err)

	for _, s := range inP {
		require.Equal(t, []string{"hello"}, s.received())
	}
	require.Empty(t, outsider.received())
	require.Equal(t, 3, hub.Count(7))
}

func TestHub_BroadcastPersistsBeforeDelivery(t *testing.T) {
	ctx := context.Background()
	repo := &memMessageRepo{}
	hub := newTestHub(repo)

	sub := newFakeSubscriber("s")
	require.NoError(t, hub.Connect(ctx, sub, 7))

	repo.createErr = errors.New("db down")
	_, err := hub.Broadcast(ctx, "lost", 7, 1)
	require.Error(t, err)
	require.Empty(t, sub.received())

	repo.createErr = nil
	msg, err := hub.Broadcast(ctx, "kept", 7, 1)
	require.NoError(t, err)
	require.NotZero(t, msg.ID)
	require.Equal(t, 1, repo.count())
}

func TestHub_FailingSubscriberIsIsolated(t *testing.T) {
	ctx := context.Background()
	repo := &memMessageRepo{}
	hub := newTestHub(repo)

	first := newFakeSubscriber("first")
	require.NoError(t, hub.Connect(ctx, first, 7))
	broken := newFakeSubscriber("broken")
	require.NoError(t, hub.Connect(ctx, broken, 7))
	broken.fail = true
	last := newFakeSubscriber("last")
	require.NoError(t, hub.Connect(ctx, last, 7))

	_, err := hub.Broadcast(ctx, "hello", 7, 1)
	require.NoError(t, err)

	require.Equal(t, []string{"hello"}, first.received())
	require.Equal(t, []string{"hello"}, last.received())
	require.Equal(t, 1, repo.count())
}

func TestHub_DisconnectClearsEmptyProject(t *testing.T) {
	ctx := context.Background()
	hub := newTestHub(&memMessageRepo{})

	a, b := newFakeSubscriber("a"), newFakeSubscriber("b")
	require.NoError(t, hub.Connect(ctx, a, 7))
	require.NoError(t, hub.Connect(ctx, b, 7))

	hub.Disconnect(a, 7)
	require.Equal(t, 1, hub.Count(7))

	_, err := hub.Broadcast(ctx, "only b", 7, 1)
	require.NoError(t, err)
	require.Empty(t, a.received())
	require.Equal(t, []string{"only b"}, b.received())

	hub.Disconnect(b, 7)
	hub.Disconnect(b, 7) // second time is a no-op
	require.Equal(t, 0, hub.Count(7))

	hub.mu.Lock()
	_, ok := hub.rooms[7]
	hub.mu.Unlock()
	require.False(t, ok)
}

func TestHub_BroadcastWithoutSubscribersLeavesNoRoom(t *testing.T) {
	repo := &memMessageRepo{}
	hub := newTestHub(repo)

	_, err := hub.Broadcast(context.Background(), "nobody listens", 9, 1)
	require.NoError(t, err)
	require.Equal(t, 1, repo.count())

	hub.mu.Lock()
	require.Empty(t, hub.rooms)
	hub.mu.Unlock()
}

func TestHub_ConnectFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("history unavailable", func(t *testing.T) {
		hub := newTestHub(&memMessageRepo{listErr: errors.New("db down")})
		require.Error(t, hub.Connect(ctx, newFakeSubscriber("s"), 7))
		require.Equal(t, 0, hub.Count(7))
	})

	t.Run("replay delivery fails", func(t *testing.T) {
		repo := &memMessageRepo{}
		hub := newTestHub(repo)
		_, err := hub.Broadcast(ctx, "m", 7, 1)
		require.NoError(t, err)

		s := newFakeSubscriber("s")
		s.fail = true
		require.Error(t, hub.Connect(ctx, s, 7))
		require.Equal(t, 0, hub.Count(7))
	})
}

func TestHub_SendDirectIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	repo := &memMessageRepo{}
	hub := newTestHub(repo)

	a, b := newFakeSubscriber("a"), newFakeSubscriber("b")
	require.NoError(t, hub.Connect(ctx, a, 7))
	require.NoError(t, hub.Connect(ctx, b, 7))

	require.NoError(t, hub.SendDirect(ctx, "just for a", a))
	require.Equal(t, []string{"just for a"}, a.received())
	require.Empty(t, b.received())
	require.Equal(t, 0, repo.count())
}

func TestHub_TimestampsNeverGoBackwards(t *testing.T) {
	repo := &memMessageRepo{}
	hub := newTestHub(repo)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(-time.Second), base, base.Add(time.Second)}
	i := 0
	hub.now = func() time.Time {
		ts := clock[i]
		i++
		return ts
	}

	var prev time.Time
	for range clock {
		msg, err := hub.Broadcast(context.Background(), "tick", 7, 1)
		require.NoError(t, err)
		require.True(t, msg.Timestamp.After(prev), "timestamp %v is not after %v", msg.Timestamp, prev)
		prev = msg.Timestamp
	}
}

func TestHub_PublishesLifecycleEvents(t *testing.T) {
	var gotKey []byte
	var got model.Message
	pub := &mockPublisher{
		sendFn: func(ctx context.Context, s retry.Strategy, key []byte, v []byte) error {
			gotKey = key
			require.NoError(t, json.Unmarshal(v, &got))
			return errors.New("broker down")
		},
	}

	repo := &memMessageRepo{}
	hub := NewHub(repo, NewEventSink(pub))

	msg, err := hub.Broadcast(context.Background(), "done", 7, 3)
	require.NoError(t, err) // publish failure does not fail the broadcast
	require.Equal(t, "7", string(gotKey))
	require.Equal(t, msg.ID, got.ID)
	require.Equal(t, "done", got.Text)
	require.Equal(t, int64(3), got.ImageID)
}

// Every subscriber must see a gap-free, duplicate-free, ordered log no matter
// how connects race with broadcasts.
func TestHub_ConcurrentConnectAndBroadcast(t *testing.T) {
	ctx := context.Background()
	repo := &memMessageRepo{}
	hub := newTestHub(repo)

	const broadcasters, perBroadcaster, subscribers = 4, 25, 8

	var wg sync.WaitGroup
	for b := range broadcasters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perBroadcaster {
				_, err := hub.Broadcast(ctx, fmt.Sprintf("%d-%d", b, i), 7, int64(b))
				require.NoError(t, err)
			}
		}()
	}

	subs := make([]*fakeSubscriber, subscribers)
	for s := range subscribers {
		subs[s] = newFakeSubscriber("s" + strconv.Itoa(s))
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, hub.Connect(ctx, subs[s], 7))
		}()
	}
	wg.Wait()

	history, err := repo.ListByProject(ctx, 7)
	require.NoError(t, err)
	require.Len(t, history, broadcasters*perBroadcaster)

	want := make([]string, 0, len(history))
	for _, m := range history {
		want = append(want, m.Text)
	}
	for _, s := range subs {
		require.Equal(t, want, s.received(), "subscriber %s", s.id)
	}
}
