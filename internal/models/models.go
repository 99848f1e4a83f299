package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User is a member of the campus community
type User struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	FullName     string    `db:"full_name" json:"full_name"`
	ProfileImage string    `db:"profile_image" json:"profile_image,omitempty"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsAdmin      bool      `db:"is_admin" json:"is_admin"`
	JoinedAt     time.Time `db:"joined_at" json:"joined_at"`
}

// Listing is a product or a service offered by a member.
// Inactive listings are soft-deleted and hidden everywhere.
type Listing struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Title       string          `db:"title" json:"title"`
	Description string          `db:"description" json:"description"`
	Price       decimal.Decimal `db:"price" json:"price"`
	ImageURL    string          `db:"image_url" json:"image_url"`
	OwnerID     uuid.UUID       `db:"owner_id" json:"owner_id"`
	IsActive    bool            `db:"is_active" json:"is_active"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Order tracks a single checkout session
type Order struct {
	ID              uuid.UUID       `db:"id" json:"id"`
	BuyerID         uuid.UUID       `db:"buyer_id" json:"buyer_id"`
	SellerID        uuid.UUID       `db:"seller_id" json:"seller_id"`
	ItemType        ItemType        `db:"item_type" json:"item_type"`
	ItemID          uuid.UUID       `db:"item_id" json:"item_id"`
	Price           decimal.Decimal `db:"price" json:"price"`
	Status          OrderStatus     `db:"status" json:"status"`
	StripeSessionID string          `db:"stripe_session_id" json:"stripe_session_id"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// Event is a campus event waiting for, or holding, admin approval
type Event struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Title         string    `db:"title" json:"title"`
	Description   string    `db:"description" json:"description"`
	EventDatetime time.Time `db:"event_datetime" json:"event_datetime"`
	Location      string    `db:"location" json:"location"`
	OrganizerID   uuid.UUID `db:"organizer_id" json:"organizer_id"`
	IsApproved    bool      `db:"is_approved" json:"is_approved"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Message is a direct message between two users
type Message struct {
	ID         uuid.UUID `db:"id" json:"id"`
	SenderID   uuid.UUID `db:"sender_id" json:"sender_id"`
	ReceiverID uuid.UUID `db:"receiver_id" json:"receiver_id"`
	Content    string    `db:"content" json:"content"`
	SentAt     time.Time `db:"sent_at" json:"sent_at"`
}

// Notification tells a receiver about something addressed to them
type Notification struct {
	ID             uuid.UUID     `db:"id" json:"id"`
	ReceiverID     uuid.UUID     `db:"receiver_id" json:"receiver_id"`
	SenderID       uuid.UUID     `db:"sender_id" json:"sender_id"`
	MessageID      uuid.NullUUID `db:"message_id" json:"message_id"`
	MessagePreview string        `db:"message_preview" json:"message_preview"`
	IsRead         bool          `db:"is_read" json:"is_read"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	SenderName     string        `db:"sender_name" json:"sender_name,omitempty"`
}

// ItemType is what an order was placed for
type ItemType string

const (
	ItemTypeProduct ItemType = "product"
	ItemTypeService ItemType = "service"
)

// ParseItemType coerces raw input to a known item type
func ParseItemType(s string) (ItemType, bool) {
	switch ItemType(s) {
	case ItemTypeProduct, ItemTypeService:
		return ItemType(s), true
	}
	return "", false
}

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// ParseOrderStatus coerces a stored status. Unknown values are rejected
// rather than passed through.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case OrderStatusProcessing, OrderStatusCompleted, OrderStatusCancelled:
		return OrderStatus(s), true
	}
	return "", false
}

// CanTransition reports whether an order may move from one status to another.
// Transitions only go forward out of processing.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	return s == OrderStatusProcessing && (to == OrderStatusCompleted || to == OrderStatusCancelled)
}
