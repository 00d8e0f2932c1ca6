package events

import (
	"sync"
	"time"
)

// EventType represents the engine events forwarded to external consumers.
type EventType string

const (
	EventBarProcessed     EventType = "BAR_PROCESSED"
	EventFractalConfirmed EventType = "FRACTAL_CONFIRMED"
	EventSwingChanged     EventType = "SWING_CHANGED"
	EventPatternDetected  EventType = "PATTERN_DETECTED"
	EventZoneFormed       EventType = "ZONE_FORMED"
	EventSignalGenerated  EventType = "SIGNAL_GENERATED"
	EventOutcomeResolved  EventType = "OUTCOME_RESOLVED"
	EventSessionReset     EventType = "SESSION_RESET"
	EventError            EventType = "ERROR"
)

// Event is a system event with a free-form payload, serialized only at the
// external-interface edge.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events.
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
	}
}

// Subscribe registers a subscriber for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events.
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers. Delivery is asynchronous so the
// engine's synchronous per-bar loop never blocks on a slow consumer.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, sub := range eb.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}
