package services

import (
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventLampStatus    EventType = "lamp_status"
	EventSensorReading EventType = "sensor_reading"
	EventNotification  EventType = "notification"
	EventConnectivity  EventType = "connectivity"
	EventCommandAck    EventType = "command_ack"
	EventDeviceError   EventType = "device_error"
)

// AllEventTypes lists every event the session publishes.
var AllEventTypes = []EventType{
	EventLampStatus,
	EventSensorReading,
	EventNotification,
	EventConnectivity,
	EventCommandAck,
	EventDeviceError,
}

// Event represents a system event
type Event struct {
	Type EventType      `json:"type"`
	Time time.Time      `json:"time"`
	Data map[string]any `json:"data"`
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers map[EventType][]chan Event
	closed      bool
	mu          sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
	}
}

// Subscribe creates a subscription to events of a specific type
func (eb *EventBus) Subscribe(eventType EventType, bufferSize int) <-chan Event {
	ch := make(chan Event, bufferSize)

	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		close(ch)
		return ch
	}

	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all event types
func (eb *EventBus) SubscribeAll(bufferSize int) <-chan Event {
	ch := make(chan Event, bufferSize)

	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		close(ch)
		return ch
	}

	for _, eventType := range AllEventTypes {
		eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	}

	return ch
}

// Publish publishes an event to all subscribers (non-blocking). A zero
// Time is stamped with the current time.
func (eb *EventBus) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
			// Channel full, skip this subscriber
		}
	}
}

// Unsubscribe removes a subscription from every type it was registered for
// and closes it.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	var found chan Event
	for eventType, subscribers := range eb.subscribers {
		for i, subscriber := range subscribers {
			if subscriber == ch {
				found = subscriber
				eb.subscribers[eventType] = append(subscribers[:i:i], subscribers[i+1:]...)
				break
			}
		}
	}

	if found != nil {
		close(found)
	}
}

// Close closes all subscriber channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	seen := make(map[chan Event]bool)
	for eventType, subscribers := range eb.subscribers {
		for _, ch := range subscribers {
			if !seen[ch] {
				seen[ch] = true
				close(ch)
			}
		}
		delete(eb.subscribers, eventType)
	}
}
