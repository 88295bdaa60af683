// ABOUTME: In-memory fan-out of conversation events to stream subscribers
// ABOUTME: Bounded per-subscriber queues drop oldest on overflow and queue a resync marker

package conversation

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/cool-squad/internal/metrics"
)

const (
	// DefaultQueueSize is the per-subscriber event queue bound.
	DefaultQueueSize = 64

	// DefaultPingInterval is how long a stream may stay silent before a ping is emitted.
	DefaultPingInterval = 30 * time.Second

	// minQueueSize leaves room for a resync marker plus the event that overflowed.
	minQueueSize = 2
)

// ErrSubscriptionClosed is returned by Next once the subscription has been closed.
var ErrSubscriptionClosed = errors.New("subscription closed")

// BroadcasterConfig configures a Broadcaster. Zero values take defaults.
type BroadcasterConfig struct {
	QueueSize    int
	PingInterval time.Duration
	Logger       *slog.Logger
}

// Broadcaster delivers events to every live subscription of a resource.
// Publish never blocks on slow consumers.
type Broadcaster struct {
	mu           sync.RWMutex
	subscribers  map[string]map[string]*Subscription // resource -> subID -> sub
	queueSize    int
	pingInterval time.Duration
	logger       *slog.Logger
}

// NewBroadcaster creates a broadcaster.
func NewBroadcaster(cfg BroadcasterConfig) *Broadcaster {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if queueSize < minQueueSize {
		queueSize = minQueueSize
	}
	pingInterval := cfg.PingInterval
	if pingInterval == 0 {
		pingInterval = DefaultPingInterval
	}
	return &Broadcaster{
		subscribers:  make(map[string]map[string]*Subscription),
		queueSize:    queueSize,
		pingInterval: pingInterval,
		logger:       logger.With("component", "broadcaster"),
	}
}

// PingInterval reports the keepalive interval used by subscriptions.
func (b *Broadcaster) PingInterval() time.Duration {
	return b.pingInterval
}

// Subscribe registers a subscription for resource whose first event is
// initial. Callers that need history-then-live ordering must hold the
// resource's write serialization while calling Subscribe; the store does.
// The subscription is removed when ctx is cancelled or Close is called.
func (b *Broadcaster) Subscribe(ctx context.Context, resource, clientID string, initial Event) *Subscription {
	sub := &Subscription{
		ID:           uuid.New().String(),
		ClientID:     clientID,
		Resource:     resource,
		broadcaster:  b,
		queue:        make([]Event, 0, b.queueSize),
		capacity:     b.queueSize,
		notify:       make(chan struct{}, 1),
		done:         make(chan struct{}),
		pingInterval: b.pingInterval,
	}
	sub.queue = append(sub.queue, initial)

	b.mu.Lock()
	if _, ok := b.subscribers[resource]; !ok {
		b.subscribers[resource] = make(map[string]*Subscription)
	}
	b.subscribers[resource][sub.ID] = sub
	b.mu.Unlock()

	metrics.ActiveSubscribers.Inc()
	b.logger.Debug("subscriber added",
		"resource", resource,
		"client_id", clientID,
		"sub_id", sub.ID)

	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(resource, sub.ID)
		case <-sub.done:
		}
	}()

	return sub
}

// Publish enqueues event for every subscription of resource.
func (b *Broadcaster) Publish(resource string, event Event) {
	b.mu.RLock()
	subs, ok := b.subscribers[resource]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	// Copy targets under read lock to avoid holding it during enqueue
	targets := make([]*Subscription, 0, len(subs))
	for _, sub := range subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()

	for _, sub := range targets {
		if dropped := sub.enqueue(event); dropped > 0 {
			metrics.SubscriberOverruns.Add(float64(dropped))
			b.logger.Debug("subscriber overrun, resync queued",
				"resource", resource,
				"client_id", sub.ClientID,
				"dropped", dropped)
		}
	}
}

// Unsubscribe removes a subscription and releases its queue.
func (b *Broadcaster) Unsubscribe(resource, subID string) {
	b.mu.Lock()
	subs, ok := b.subscribers[resource]
	if !ok {
		b.mu.Unlock()
		return
	}
	sub, exists := subs[subID]
	if !exists {
		b.mu.Unlock()
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(b.subscribers, resource)
	}
	b.mu.Unlock()

	sub.shutdown()
	metrics.ActiveSubscribers.Dec()

	b.logger.Debug("subscriber removed",
		"resource", resource,
		"client_id", sub.ClientID,
		"sub_id", subID)
}

// SubscriberCount returns the number of live subscriptions for resource.
func (b *Broadcaster) SubscriberCount(resource string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[resource])
}

// Close shuts down every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	var all []*Subscription
	for resource, subs := range b.subscribers {
		for _, sub := range subs {
			all = append(all, sub)
		}
		delete(b.subscribers, resource)
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.shutdown()
		metrics.ActiveSubscribers.Dec()
	}
	b.logger.Debug("broadcaster closed", "subscriptions", len(all))
}

// Subscription is one client's view of a resource stream.
type Subscription struct {
	ID       string
	ClientID string
	Resource string

	broadcaster  *Broadcaster
	mu           sync.Mutex
	queue        []Event
	capacity     int
	closed       bool
	notify       chan struct{}
	done         chan struct{}
	closeOnce    sync.Once
	pingInterval time.Duration
}

// Next blocks until an event is available. If nothing arrives within the
// ping interval it returns a ping event.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	var pingC <-chan time.Time
	if s.pingInterval > 0 {
		timer := time.NewTimer(s.pingInterval)
		defer timer.Stop()
		pingC = timer.C
	}

	for {
		if ev, ok := s.pop(); ok {
			return ev, nil
		}
		select {
		case <-s.notify:
		case <-s.done:
			return Event{}, ErrSubscriptionClosed
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case now := <-pingC:
			return Event{
				Type:     EventPing,
				Resource: s.Resource,
				Data:     map[string]int64{"ts": now.Unix()},
			}, nil
		}
	}
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.broadcaster.Unsubscribe(s.Resource, s.ID)
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Len reports the number of queued events.
func (s *Subscription) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// enqueue appends ev, dropping the oldest events when the queue is full.
// On overflow a single resync marker sits immediately before ev. Returns
// the number of events dropped by this call.
func (s *Subscription) enqueue(ev Event) int {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}

	dropped := 0
	if len(s.queue) >= s.capacity {
		carried := 0
		if i := s.markerIndex(); i >= 0 {
			if r, ok := s.queue[i].Data.(Resync); ok {
				carried = r.Dropped
			}
			s.queue = slices.Delete(s.queue, i, i+1)
		}
		for len(s.queue) > s.capacity-2 {
			s.queue = slices.Delete(s.queue, 0, 1)
			dropped++
		}
		s.queue = append(s.queue, Event{
			Type:     EventResync,
			Resource: s.Resource,
			Data:     Resync{Dropped: carried + dropped},
		})
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return dropped
}

func (s *Subscription) markerIndex() int {
	for i, ev := range s.queue {
		if ev.Type == EventResync {
			return i
		}
	}
	return -1
}

func (s *Subscription) pop() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return Event{}, false
	}
	ev := s.queue[0]
	s.queue = slices.Delete(s.queue, 0, 1)
	return ev, true
}

func (s *Subscription) shutdown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
}
