package service

import (
	"context"
	"sync"

	"tiger-life/internal/models"
	"tiger-life/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ToastNewMessage is shown once for every pushed notification
const ToastNewMessage = "New message received!"

// InboxUpdate is emitted after the inbox refetches
type InboxUpdate struct {
	Toast         string                `json:"toast,omitempty"`
	Notifications []models.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

// Inbox is one signed-in user's view of their notifications. It holds the
// last fetched list and nothing else; every push or acknowledgement replaces
// the list with a fresh read.
type Inbox struct {
	svc  *NotificationService
	sess Session

	mu            sync.RWMutex
	notifications []models.Notification
}

// NewInbox creates an empty inbox for sess
func NewInbox(svc *NotificationService, sess Session) *Inbox {
	return &Inbox{svc: svc, sess: sess}
}

// Refetch replaces the held list with the store's current contents
func (in *Inbox) Refetch(ctx context.Context) error {
	notifications, err := in.svc.List(ctx, in.sess)
	if err != nil {
		return err
	}

	in.mu.Lock()
	in.notifications = notifications
	in.mu.Unlock()
	return nil
}

// Notifications returns a copy of the last fetched list
func (in *Inbox) Notifications() []models.Notification {
	in.mu.RLock()
	defer in.mu.RUnlock()

	out := make([]models.Notification, len(in.notifications))
	copy(out, in.notifications)
	return out
}

// UnreadCount counts unread entries in the last fetched list
func (in *Inbox) UnreadCount() int {
	in.mu.RLock()
	defer in.mu.RUnlock()

	count := 0
	for i := range in.notifications {
		if !in.notifications[i].IsRead {
			count++
		}
	}
	return count
}

// MarkRead acknowledges ids and refetches on success. The held list is not
// changed ahead of the store.
func (in *Inbox) MarkRead(ctx context.Context, ids []uuid.UUID) error {
	if len(dedupeIDs(ids)) == 0 {
		return nil
	}
	if _, err := in.svc.MarkRead(ctx, in.sess, ids); err != nil {
		return err
	}
	return in.Refetch(ctx)
}

// Start fetches the inbox and follows pushes until ctx ends. The subscription
// is in place before Start returns. Every push refetches the whole list and
// emits one update carrying a toast. Pushes dropped while the reader lagged
// arrive as one event and produce one refetch and one toast.
func (in *Inbox) Start(ctx context.Context) (<-chan InboxUpdate, error) {
	events, err := in.svc.Subscribe(ctx, in.sess)
	if err != nil {
		return nil, err
	}
	if err := in.Refetch(ctx); err != nil {
		in.svc.logger.Warn("Initial inbox fetch failed", zap.Error(err))
	}

	updates := make(chan InboxUpdate, 1)
	updates <- in.snapshot("")

	go func() {
		defer close(updates)
		for event := range events {
			if event.Missed > 0 {
				util.NotificationsPushedTotal.Add(float64(event.Missed))
			} else {
				util.NotificationsPushedTotal.Inc()
			}
			if err := in.Refetch(ctx); err != nil {
				in.svc.logger.Warn("Inbox refetch failed",
					zap.String("user_id", in.sess.UserID.String()),
					zap.Error(err))
			}

			select {
			case updates <- in.snapshot(ToastNewMessage):
			case <-ctx.Done():
				return
			}
		}
	}()

	return updates, nil
}

func (in *Inbox) snapshot(toast string) InboxUpdate {
	return InboxUpdate{
		Toast:         toast,
		Notifications: in.Notifications(),
		Unread:        in.UnreadCount(),
	}
}
