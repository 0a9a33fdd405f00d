package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	EventBookingCreated       = "booking.created"
	EventBookingStatusChanged = "booking.status_changed"
	EventBookingDeleted       = "booking.deleted"
	EventUserStatusChanged    = "user.status_changed"
	EventUserRoleChanged      = "user.role_changed"
	EventUserDeleted          = "user.deleted"
)

// AllEvents subscribes a handler to every event type.
const AllEvents = "*"

// BookingEventPayload describes the booking snapshot sent to consumers.
type BookingEventPayload struct {
	BookingID      string    `json:"booking_id"`
	UserID         *int64    `json:"user_id"`
	UserName       string    `json:"user_name"`
	UserEmail      string    `json:"user_email"`
	ItemID         string    `json:"item_id"`
	ItemType       string    `json:"item_type"`
	ItemTitle      string    `json:"item_title,omitempty"`
	Quantity       int       `json:"quantity"`
	TotalPrice     string    `json:"total_price"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	BookingDate    time.Time `json:"booking_date"`
	ChangedByID    int64     `json:"changed_by_id,omitempty"`
}

// UserEventPayload describes an admin action on an account.
type UserEventPayload struct {
	UserID      int64  `json:"user_id"`
	Username    string `json:"username"`
	Status      string `json:"status,omitempty"`
	Role        string `json:"role,omitempty"`
	ChangedByID int64  `json:"changed_by_id"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

// NewEventBus constructs an empty bus. Handler errors are logged when logger is set.
func NewEventBus(logger *zerolog.Logger) *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

// Subscribe registers a handler for a given event type, or AllEvents.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type, then wildcard subscribers.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	// Handlers run synchronously; caller decides concurrency model.
	for _, handler := range handlers {
		if err := handler(event); err != nil && b.logger != nil {
			b.logger.Warn().Err(err).Str("event", event.Type).Msg("Event handler failed")
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
