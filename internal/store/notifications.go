package store

import (
	"context"

	"tiger-life/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreateNotification inserts an unread notification
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (receiver_id, sender_id, message_id, message_preview, is_read)
		VALUES ($1, $2, $3, $4, FALSE)
		RETURNING id, is_read, created_at`

	return s.db.QueryRowxContext(ctx, query,
		n.ReceiverID, n.SenderID, n.MessageID, n.MessagePreview,
	).Scan(&n.ID, &n.IsRead, &n.CreatedAt)
}

// ListNotifications returns a receiver's notifications, newest first
func (s *Store) ListNotifications(ctx context.Context, receiverID uuid.UUID) ([]models.Notification, error) {
	notifications := []models.Notification{}
	err := s.db.SelectContext(ctx, &notifications, `
		SELECT n.*, u.full_name AS sender_name
		FROM notifications n
		JOIN users u ON u.id = n.sender_id
		WHERE n.receiver_id = $1
		ORDER BY n.created_at DESC`, receiverID)
	return notifications, err
}

// MarkNotificationsRead flags the receiver's notifications in ids as read
func (s *Store) MarkNotificationsRead(ctx context.Context, receiverID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(
		"UPDATE notifications SET is_read = TRUE WHERE receiver_id = ? AND id IN (?)",
		receiverID, ids)
	if err != nil {
		return 0, err
	}
	query = s.db.Rebind(query)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
