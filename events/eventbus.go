package events

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mezonai/peerchain/logx"
)

const subscriberBuffer = 50

type SubscriberID string

type subscriber struct {
	ch      chan ChainEvent
	types   map[EventType]struct{} // nil means every type
	dropped atomic.Uint64
}

func (s *subscriber) wants(t EventType) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// EventBus fans chain events out to subscribers without ever blocking the
// publisher. A subscriber that falls behind loses events and the loss is
// counted.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[SubscriberID]*subscriber
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[SubscriberID]*subscriber)}
}

// Subscribe receives every event.
func (eb *EventBus) Subscribe() (SubscriberID, <-chan ChainEvent) {
	return eb.SubscribeTypes()
}

// SubscribeTypes receives only the listed event types; with none listed it
// behaves like Subscribe.
func (eb *EventBus) SubscribeTypes(types ...EventType) (SubscriberID, <-chan ChainEvent) {
	sub := &subscriber{ch: make(chan ChainEvent, subscriberBuffer)}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	id := SubscriberID(uuid.Must(uuid.NewV7()).String())

	eb.mu.Lock()
	eb.subscribers[id] = sub
	total := len(eb.subscribers)
	eb.mu.Unlock()

	logx.Info("EVENTBUS", fmt.Sprintf("Subscribed | subscriber_id=%s | types=%v | total_subscribers=%d", id, types, total))
	return id, sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (eb *EventBus) Unsubscribe(id SubscriberID) bool {
	eb.mu.Lock()
	sub, ok := eb.subscribers[id]
	if ok {
		delete(eb.subscribers, id)
		close(sub.ch)
	}
	remaining := len(eb.subscribers)
	eb.mu.Unlock()

	if !ok {
		logx.Warn("EVENTBUS", fmt.Sprintf("Attempted to unsubscribe non-existent subscriber | subscriber_id=%s", id))
		return false
	}
	logx.Info("EVENTBUS", fmt.Sprintf("Unsubscribed | subscriber_id=%s | dropped=%d | remaining_subscribers=%d", id, sub.dropped.Load(), remaining))
	return true
}

// Publish is safe on a nil bus.
func (eb *EventBus) Publish(event ChainEvent) {
	if eb == nil || event == nil {
		return
	}
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for id, sub := range eb.subscribers {
		if !sub.wants(event.Type()) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			if sub.dropped.Add(1) == 1 {
				logx.Warn("EVENTBUS", fmt.Sprintf("Subscriber channel full, dropping events | subscriber_id=%s | event_type=%s", id, event.Type()))
			}
		}
	}
}

// Dropped reports how many events the subscriber missed because its channel
// was full.
func (eb *EventBus) Dropped(id SubscriberID) uint64 {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if sub, ok := eb.subscribers[id]; ok {
		return sub.dropped.Load()
	}
	return 0
}

func (eb *EventBus) GetTotalSubscriptions() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

func (eb *EventBus) HasSubscriber(id SubscriberID) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	_, ok := eb.subscribers[id]
	return ok
}
