// Package events carries controller events to the websocket feed and any
// other subscriber. Publishing never blocks the admission pipeline.
package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventAdmission      EventType = "ADMISSION"
	EventRejection      EventType = "REJECTION"
	EventCircuitUpdate  EventType = "CIRCUIT_UPDATE"
	EventTrimExecuted   EventType = "TRIM_EXECUTED"
	EventSlotSync       EventType = "SLOT_SYNC"
	EventTickCompleted  EventType = "TICK_COMPLETED"
	EventExecutionError EventType = "EXECUTION_ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}
	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishAdmission publishes a successful admission
func (eb *EventBus) PublishAdmission(traceID, instrument string, quantity, riskDollars, fillPrice float64) {
	eb.Publish(Event{
		Type: EventAdmission,
		Data: map[string]interface{}{
			"trace_id":     traceID,
			"instrument":   instrument,
			"quantity":     quantity,
			"risk_dollars": riskDollars,
			"fill_price":   fillPrice,
		},
	})
}

// PublishRejection publishes a rejected candidate with its reason
func (eb *EventBus) PublishRejection(traceID, instrument, outcome, reason string) {
	eb.Publish(Event{
		Type: EventRejection,
		Data: map[string]interface{}{
			"trace_id":   traceID,
			"instrument": instrument,
			"outcome":    outcome,
			"reason":     reason,
		},
	})
}

// PublishCircuitUpdate publishes a circuit breaker level change
func (eb *EventBus) PublishCircuitUpdate(level, reason string, cooldownUntil time.Time) {
	eb.Publish(Event{
		Type: EventCircuitUpdate,
		Data: map[string]interface{}{
			"level":          level,
			"reason":         reason,
			"cooldown_until": cooldownUntil,
		},
	})
}

// PublishTrim publishes a trim-and-switch action
func (eb *EventBus) PublishTrim(traceID, trimmedInstrument, forInstrument string, trimQuantity, freedCapital float64) {
	eb.Publish(Event{
		Type: EventTrimExecuted,
		Data: map[string]interface{}{
			"trace_id":      traceID,
			"trimmed":       trimmedInstrument,
			"for":           forInstrument,
			"trim_quantity": trimQuantity,
			"freed_capital": freedCapital,
		},
	})
}

// PublishSlotSync publishes a slot reconciliation
func (eb *EventBus) PublishSlotSync(trueCount int64) {
	eb.Publish(Event{
		Type: EventSlotSync,
		Data: map[string]interface{}{
			"true_count": trueCount,
		},
	})
}
