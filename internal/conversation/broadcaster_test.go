// ABOUTME: Tests for the bounded per-subscriber broadcaster
// ABOUTME: Covers fan-out, isolation, overflow resync markers, pings and unsubscribe

package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textEvent(resource, content string) Event {
	return Event{
		Type:     EventMessage,
		Resource: resource,
		Data:     ChannelMessage{Channel: resource, Message: Message{Content: content}},
	}
}

func initialEvent(resource string) Event {
	return Event{Type: EventHistory, Resource: resource, Data: ChannelHistory{Channel: resource}}
}

func nextWithin(t *testing.T, sub *Subscription, d time.Duration) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), d)
	defer cancel()
	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	return ev
}

func contentOf(t *testing.T, ev Event) string {
	t.Helper()
	cm, ok := ev.Data.(ChannelMessage)
	require.True(t, ok, "expected ChannelMessage, got %T", ev.Data)
	return cm.Message.Content
}

func TestBroadcaster_InitialEventComesFirst(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{})
	defer b.Close()

	sub := b.Subscribe(t.Context(), "channel:a", "c1", initialEvent("channel:a"))
	b.Publish("channel:a", textEvent("channel:a", "one"))

	assert.Equal(t, EventHistory, nextWithin(t, sub, time.Second).Type)
	assert.Equal(t, "one", contentOf(t, nextWithin(t, sub, time.Second)))
}

func TestBroadcaster_FanOutToAllSubscribers(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{})
	defer b.Close()

	subs := []*Subscription{
		b.Subscribe(t.Context(), "channel:a", "c1", initialEvent("channel:a")),
		b.Subscribe(t.Context(), "channel:a", "c2", initialEvent("channel:a")),
		b.Subscribe(t.Context(), "channel:a", "c3", initialEvent("channel:a")),
	}
	b.Publish("channel:a", textEvent("channel:a", "hi"))

	for i, sub := range subs {
		nextWithin(t, sub, time.Second)
		assert.Equal(t, "hi", contentOf(t, nextWithin(t, sub, time.Second)), "subscriber %d", i)
	}
}

func TestBroadcaster_ResourcesAreIsolated(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{})
	defer b.Close()

	subA := b.Subscribe(t.Context(), "channel:a", "c1", initialEvent("channel:a"))
	subB := b.Subscribe(t.Context(), "channel:b", "c2", initialEvent("channel:b"))

	b.Publish("channel:a", textEvent("channel:a", "for a"))

	nextWithin(t, subA, time.Second)
	nextWithin(t, subB, time.Second)
	assert.Equal(t, "for a", contentOf(t, nextWithin(t, subA, time.Second)))
	assert.Equal(t, 0, subB.Len())
}

func TestBroadcaster_PublishWithoutSubscribersIsNoop(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{})
	defer b.Close()

	b.Publish("channel:nobody", textEvent("channel:nobody", "x"))
	assert.Equal(t, 0, b.SubscriberCount("channel:nobody"))
}

func TestBroadcaster_OverflowDropsOldestAndQueuesResync(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{QueueSize: 4, PingInterval: -1})
	defer b.Close()

	sub := b.Subscribe(t.Context(), "channel:a", "slow", initialEvent("channel:a"))
	for i := range 6 {
		b.Publish("channel:a", textEvent("channel:a", fmt.Sprintf("m%d", i)))
	}

	require.LessOrEqual(t, sub.Len(), 4)

	var events []Event
	for sub.Len() > 0 {
		events = append(events, nextWithin(t, sub, time.Second))
	}

	markers := 0
	var contents []string
	for _, ev := range events {
		if ev.Type == EventResync {
			markers++
			r, ok := ev.Data.(Resync)
			require.True(t, ok)
			assert.Positive(t, r.Dropped)
			continue
		}
		if ev.Type == EventMessage {
			contents = append(contents, contentOf(t, ev))
		}
	}
	assert.Equal(t, 1, markers, "exactly one resync marker should be queued")
	require.NotEmpty(t, contents)
	assert.Equal(t, "m5", contents[len(contents)-1], "newest event is always kept")
	assert.Equal(t, EventResync, events[len(events)-2].Type, "marker precedes the newest event")
}

func TestBroadcaster_ResyncCountsAccumulate(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{QueueSize: 3, PingInterval: -1})
	defer b.Close()

	sub := b.Subscribe(t.Context(), "channel:a", "slow", initialEvent("channel:a"))
	for i := range 10 {
		b.Publish("channel:a", textEvent("channel:a", fmt.Sprintf("m%d", i)))
	}

	total := 0
	for sub.Len() > 0 {
		ev := nextWithin(t, sub, time.Second)
		if r, ok := ev.Data.(Resync); ok {
			total += r.Dropped
		}
	}
	// 11 events entered; the queue ends holding m8, the marker and m9.
	assert.Equal(t, 9, total)
}

func TestBroadcaster_OverflowDoesNotAffectOtherSubscribers(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{QueueSize: 4, PingInterval: -1})
	defer b.Close()

	slow := b.Subscribe(t.Context(), "channel:a", "slow", initialEvent("channel:a"))
	fast := b.Subscribe(t.Context(), "channel:a", "fast", initialEvent("channel:a"))
	nextWithin(t, fast, time.Second)

	for i := range 8 {
		b.Publish("channel:a", textEvent("channel:a", fmt.Sprintf("m%d", i)))
		assert.Equal(t, fmt.Sprintf("m%d", i), contentOf(t, nextWithin(t, fast, time.Second)))
	}
	assert.LessOrEqual(t, slow.Len(), 4)
}

func TestBroadcaster_PingAfterSilence(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{PingInterval: 20 * time.Millisecond})
	defer b.Close()

	sub := b.Subscribe(t.Context(), "channel:a", "c1", initialEvent("channel:a"))
	nextWithin(t, sub, time.Second)

	ev := nextWithin(t, sub, time.Second)
	assert.Equal(t, EventPing, ev.Type)
	assert.Equal(t, "channel:a", ev.Resource)
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{})
	defer b.Close()

	ctx, cancel := context.WithCancel(t.Context())
	sub := b.Subscribe(ctx, "channel:a", "c1", initialEvent("channel:a"))
	require.Equal(t, 1, b.SubscriberCount("channel:a"))

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after context cancel")
	}
	assert.Equal(t, 0, b.SubscriberCount("channel:a"))
}

func TestBroadcaster_CloseEndsNext(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{PingInterval: -1})
	sub := b.Subscribe(t.Context(), "channel:a", "c1", initialEvent("channel:a"))
	nextWithin(t, sub, time.Second)

	errCh := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		errCh <- err
	}()

	sub.Close()
	sub.Close()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, ErrSubscriptionClosed))
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}
	b.Close()
}

func TestBroadcaster_ConcurrentPublishAndSubscribe(t *testing.T) {
	b := NewBroadcaster(BroadcasterConfig{PingInterval: -1})
	defer b.Close()

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub := b.Subscribe(t.Context(), "channel:a", fmt.Sprintf("c%d", i), initialEvent("channel:a"))
			sub.Close()
		}()
		go func() {
			defer wg.Done()
			b.Publish("channel:a", textEvent("channel:a", "x"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.SubscriberCount("channel:a"))
}
