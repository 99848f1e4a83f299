package service

import (
	"context"
	"time"

	"tiger-life/internal/models"
	"tiger-life/internal/payment"
	"tiger-life/internal/realtime"
	"tiger-life/internal/store"

	"github.com/google/uuid"
)

// OrderStore persists orders
type OrderStore interface {
	// CreateOrder inserts order and queues announce in the same transaction
	CreateOrder(ctx context.Context, order *models.Order, announce *models.OutboxMessage) error
	GetOrderBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	// TransitionOrderStatus queues announce only when the row moved
	TransitionOrderStatus(ctx context.Context, sessionID string, from, to models.OrderStatus, announce *models.OutboxMessage) (bool, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	ListStaleOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// EventStore persists campus events
type EventStore interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ListEvents(ctx context.Context, filter store.EventFilter) ([]models.Event, error)
	SetEventApproval(ctx context.Context, id uuid.UUID, approved bool, announce *models.OutboxMessage) (*models.Event, error)
	UpdateEventDetails(ctx context.Context, event *models.Event) error
	DeleteEvent(ctx context.Context, id uuid.UUID) error
}

// NotificationStore persists notifications and the processed-event log
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, receiverID uuid.UUID) ([]models.Notification, error)
	MarkNotificationsRead(ctx context.Context, receiverID uuid.UUID, ids []uuid.UUID) (int64, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// ListingStore persists products and services
type ListingStore interface {
	CreateListing(ctx context.Context, kind models.ItemType, listing *models.Listing) error
	GetListing(ctx context.Context, kind models.ItemType, id uuid.UUID) (*models.Listing, error)
	ListActiveListings(ctx context.Context, kind models.ItemType) ([]models.Listing, error)
	ListListingsByOwner(ctx context.Context, kind models.ItemType, ownerID uuid.UUID) ([]models.Listing, error)
	UpdateListing(ctx context.Context, kind models.ItemType, listing *models.Listing) error
	DeactivateListing(ctx context.Context, kind models.ItemType, id uuid.UUID) error
}

// MessageStore persists direct messages
type MessageStore interface {
	CreateMessage(ctx context.Context, msg *models.Message, announce *models.OutboxMessage) error
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	ListConversation(ctx context.Context, userID, otherID uuid.UUID) ([]models.Message, error)
	ListConversationPartners(ctx context.Context, userID uuid.UUID) ([]models.User, error)
}

// UserStore persists members
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetAdmin(ctx context.Context, email string, isAdmin bool) (*models.User, error)
	UpdateUserProfile(ctx context.Context, id uuid.UUID, fullName, profileImage string) (*models.User, error)
}

// CheckoutProvider is the hosted payment page collaborator
type CheckoutProvider interface {
	CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error)
}

// ChangeFeed hands out realtime row-change subscriptions
type ChangeFeed interface {
	Subscribe(ctx context.Context, filter realtime.Filter) *realtime.Subscription
}

// Cache is a derived read cache. It is never a source of truth, so failures
// are logged and the backend is read instead.
type Cache interface {
	GetJSON(ctx context.Context, namespace, key string, dst interface{}) (version int64, hit bool, err error)
	SetJSON(ctx context.Context, namespace, key string, version int64, value interface{}) error
	Invalidate(ctx context.Context, namespace string) error
}
