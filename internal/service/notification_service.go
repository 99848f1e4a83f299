package service

import (
	"context"
	"fmt"
	"strings"

	"tiger-life/internal/models"
	"tiger-life/internal/realtime"
	"tiger-life/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// previewLength is how many characters of a message a notification shows
const previewLength = 50

// NotificationEvent is pushed to a receiver when a notification addressed to
// them is inserted. An event with Missed set stands for that many inserts
// that were dropped while the reader lagged; it carries no ids.
type NotificationEvent struct {
	NotificationID uuid.UUID `json:"notification_id,omitempty"`
	ReceiverID     uuid.UUID `json:"receiver_id"`
	SenderID       uuid.UUID `json:"sender_id,omitempty"`
	Missed         int64     `json:"missed,omitempty"`
}

// NotificationService reads, acknowledges and creates notifications
type NotificationService struct {
	store  NotificationStore
	feed   ChangeFeed
	logger *zap.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(store NotificationStore, feed ChangeFeed) *NotificationService {
	return &NotificationService{
		store:  store,
		feed:   feed,
		logger: util.ComponentLogger("notifications"),
	}
}

// List returns the caller's notifications, newest first
func (s *NotificationService) List(ctx context.Context, sess Session) ([]models.Notification, error) {
	if err := requireAuth(sess); err != nil {
		return nil, err
	}
	notifications, err := s.store.ListNotifications(ctx, sess.UserID)
	if err != nil {
		return nil, backendError("Failed to load notifications", err)
	}
	return notifications, nil
}

// MarkRead flags the given notifications as read. Only the caller's own
// notifications are touched. An empty set never reaches the store.
func (s *NotificationService) MarkRead(ctx context.Context, sess Session, ids []uuid.UUID) (int64, error) {
	if err := requireAuth(sess); err != nil {
		return 0, err
	}

	unique := dedupeIDs(ids)
	if len(unique) == 0 {
		return 0, nil
	}

	updated, err := s.store.MarkNotificationsRead(ctx, sess.UserID, unique)
	if err != nil {
		return 0, backendError("Failed to mark notifications as read", err)
	}
	return updated, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	unique := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}

// Subscribe streams notification inserts addressed to the caller. The channel
// is closed when ctx ends.
func (s *NotificationService) Subscribe(ctx context.Context, sess Session) (<-chan NotificationEvent, error) {
	if err := requireAuth(sess); err != nil {
		return nil, err
	}

	sub := s.feed.Subscribe(ctx, realtime.Filter{
		Table: "notifications",
		Ops:   []realtime.Op{realtime.OpInsert},
		Field: "receiver_id",
		Value: sess.UserID.String(),
	})

	out := make(chan NotificationEvent)
	go func() {
		defer close(out)
		defer sub.Close()

		for change := range sub.Changes() {
			event := NotificationEvent{ReceiverID: sess.UserID}
			event.NotificationID, _ = uuid.Parse(change.Field("id"))
			event.SenderID, _ = uuid.Parse(change.Field("sender_id"))

			select {
			case out <- event:
			case <-ctx.Done():
				return
			}

			if missed := sub.TakeMissed(); missed > 0 {
				select {
				case out <- NotificationEvent{ReceiverID: sess.UserID, Missed: missed}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// HandleMessageSent creates the receiver's notification for a new message.
// Redelivered events are skipped.
func (s *NotificationService) HandleMessageSent(ctx context.Context, event *models.MessageSentEvent) error {
	return s.once(ctx, event.EventID, event.EventType, func() error {
		n := &models.Notification{
			ReceiverID:     event.ReceiverID,
			SenderID:       event.SenderID,
			MessageID:      uuid.NullUUID{UUID: event.MessageID, Valid: true},
			MessagePreview: Preview(event.Content),
		}
		if err := s.store.CreateNotification(ctx, n); err != nil {
			return err
		}
		util.NotificationsCreatedTotal.WithLabelValues("message").Inc()
		return nil
	})
}

// HandleOrderCompleted tells the seller that one of their listings was paid for
func (s *NotificationService) HandleOrderCompleted(ctx context.Context, event *models.OrderEvent) error {
	return s.once(ctx, event.EventID, event.EventType, func() error {
		n := &models.Notification{
			ReceiverID:     event.SellerID,
			SenderID:       event.BuyerID,
			MessagePreview: fmt.Sprintf("Your %s was purchased for $%s", event.ItemType, event.Price.StringFixed(2)),
		}
		if err := s.store.CreateNotification(ctx, n); err != nil {
			return err
		}
		util.NotificationsCreatedTotal.WithLabelValues("order").Inc()
		return nil
	})
}

func (s *NotificationService) once(ctx context.Context, eventID, eventType string, apply func() error) error {
	processed, err := s.store.IsEventProcessed(ctx, eventID)
	if err != nil {
		return fmt.Errorf("check processed event: %w", err)
	}
	if processed {
		s.logger.Info("Event already processed", zap.String("event_id", eventID))
		return nil
	}

	if err := apply(); err != nil {
		s.logger.Error("Failed to create notification",
			zap.String("event_id", eventID),
			zap.String("event_type", eventType),
			zap.Error(err))
		return err
	}

	if err := s.store.MarkEventProcessed(ctx, eventID, eventType); err != nil {
		s.logger.Warn("Failed to mark event processed", zap.String("event_id", eventID), zap.Error(err))
	}
	return nil
}

// Preview shortens message content for display in a notification
func Preview(content string) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength]) + "..."
}
