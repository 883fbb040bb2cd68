package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriptionBuffer is the per-subscriber channel depth. A subscriber
// that falls further behind than this starts losing events; delivery is
// explicitly best-effort.
const subscriptionBuffer = 64

// Subscription is one subscriber's handle on an instance's event stream.
type Subscription struct {
	instanceID uuid.UUID
	ch         chan Event
}

// Events returns the channel events are delivered on. The channel is
// closed when the subscription is cancelled.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// InstanceID returns the instance this subscription is scoped to.
func (s *Subscription) InstanceID() uuid.UUID {
	return s.instanceID
}

// Broadcaster fans lifecycle events out to per-instance subscriber
// groups. One tenant never observes another tenant's events; subscribing
// and unsubscribing never disturbs other subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[*Subscription]struct{}
	logger      *slog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[uuid.UUID]map[*Subscription]struct{}),
		logger:      logger.With("component", "event_broadcaster"),
	}
}

// Subscribe registers a new subscriber for the instance's events.
func (b *Broadcaster) Subscribe(instanceID uuid.UUID) *Subscription {
	sub := &Subscription{
		instanceID: instanceID,
		ch:         make(chan Event, subscriptionBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	group, ok := b.subscribers[instanceID]
	if !ok {
		group = make(map[*Subscription]struct{})
		b.subscribers[instanceID] = group
	}
	group[sub] = struct{}{}

	b.logger.Debug("subscriber added",
		"instance_id", instanceID,
		"group_size", len(group))
	return sub
}

// Unsubscribe removes the subscription and closes its channel. Safe to
// call more than once.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	group, ok := b.subscribers[sub.instanceID]
	if !ok {
		return
	}
	if _, member := group[sub]; !member {
		return
	}

	delete(group, sub)
	close(sub.ch)
	if len(group) == 0 {
		delete(b.subscribers, sub.instanceID)
	}

	b.logger.Debug("subscriber removed",
		"instance_id", sub.instanceID,
		"group_size", len(group))
}

// Publish delivers the event to every subscriber of its instance. Sends
// never block: a subscriber whose buffer is full loses the event and the
// drop is logged.
func (b *Broadcaster) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	group, ok := b.subscribers[event.InstanceID]
	if !ok {
		return
	}

	for sub := range group {
		select {
		case sub.ch <- event:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				"instance_id", event.InstanceID,
				"task_id", event.TaskID,
				"event_type", string(event.Type))
		}
	}
}

// SubscriberCount returns the number of subscribers for the instance.
func (b *Broadcaster) SubscriberCount(instanceID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[instanceID])
}
