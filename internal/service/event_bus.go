// internal/service/event_bus.go
package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StateEvent is one observation of the instrument while a long operation
// polls, or the final status of the operation.
type StateEvent struct {
	OperationID uuid.UUID       `json:"operation_id"`
	Status      OperationStatus `json:"status"`
	DeviceState string          `json:"device_state"`
	Timestamp   time.Time       `json:"timestamp"`
}

// EventBus fans state events out to subscribers, one buffered channel each.
// Slow subscribers drop events rather than stall the poller.
type EventBus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[uuid.UUID]chan StateEvent
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		logger:      logger.With(zap.String("component", "event-bus")),
		subscribers: make(map[uuid.UUID]chan StateEvent),
	}
}

// Subscribe registers a subscriber. The returned cancel function must be
// called to release it.
func (eb *EventBus) Subscribe() (<-chan StateEvent, func()) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	id := uuid.New()
	ch := make(chan StateEvent, 100)
	eb.subscribers[id] = ch

	cancel := func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		if sub, ok := eb.subscribers[id]; ok {
			delete(eb.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking.
func (eb *EventBus) Publish(event StateEvent) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, sub := range eb.subscribers {
		select {
		case sub <- event:
		default:
			eb.logger.Warn("subscriber is slow, dropping state event",
				zap.String("operation_id", event.OperationID.String()))
		}
	}
}
