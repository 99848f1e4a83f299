package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated   = "ORDER_CREATED"
	EventTypeOrderCompleted = "ORDER_COMPLETED"
	EventTypeOrderCancelled = "ORDER_CANCELLED"
	EventTypeEventApproved  = "EVENT_APPROVED"
	EventTypeEventRevoked   = "EVENT_REVOKED"
	EventTypeMessageSent    = "MESSAGE_SENT"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event envelope
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

// Announcement is an event that can be queued for publication
type Announcement interface {
	Envelope() BaseEvent
	// PartitionKey groups events that must stay in order
	PartitionKey() string
}

// Envelope returns the common event fields
func (e BaseEvent) Envelope() BaseEvent {
	return e
}

// OrderEvent is published on every order status change
type OrderEvent struct {
	BaseEvent
	OrderID   uuid.UUID       `json:"order_id"`
	SessionID string          `json:"session_id"`
	BuyerID   uuid.UUID       `json:"buyer_id"`
	SellerID  uuid.UUID       `json:"seller_id"`
	ItemType  ItemType        `json:"item_type"`
	ItemID    uuid.UUID       `json:"item_id"`
	Price     decimal.Decimal `json:"price"`
	Status    OrderStatus     `json:"status"`
}

// EventApprovalEvent published when an admin approves or revokes an event
type EventApprovalEvent struct {
	BaseEvent
	CampusEventID uuid.UUID `json:"campus_event_id"`
	OrganizerID   uuid.UUID `json:"organizer_id"`
	ActorID       uuid.UUID `json:"actor_id"`
	Approved      bool      `json:"approved"`
}

// MessageSentEvent published when a direct message is stored
type MessageSentEvent struct {
	BaseEvent
	MessageID  uuid.UUID `json:"message_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	ReceiverID uuid.UUID `json:"receiver_id"`
	Content    string    `json:"content"`
}

// PartitionKey keeps every change of one order on one partition
func (e *OrderEvent) PartitionKey() string {
	return "order-" + e.SessionID
}

// PartitionKey keeps approvals of one event in order
func (e *EventApprovalEvent) PartitionKey() string {
	return "event-" + e.CampusEventID.String()
}

// PartitionKey keeps a receiver's messages in order
func (e *MessageSentEvent) PartitionKey() string {
	return "user-" + e.ReceiverID.String()
}
