package store

import (
	"context"
	"database/sql"
	"errors"

	"tiger-life/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// CreateMessage stores a direct message and queues announce with it. The
// caller assigns the message ID.
func (s *Store) CreateMessage(ctx context.Context, msg *models.Message, announce *models.OutboxMessage) error {
	query := `
		INSERT INTO messages (id, sender_id, receiver_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING sent_at`

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, query, msg.ID, msg.SenderID, msg.ReceiverID, msg.Content).Scan(&msg.SentAt); err != nil {
			return err
		}
		return insertOutbox(ctx, tx, announce)
	})
}

// GetMessage retrieves a message by ID
func (s *Store) GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var msg models.Message
	err := s.db.GetContext(ctx, &msg, "SELECT * FROM messages WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListConversation returns the messages exchanged between two users, oldest first
func (s *Store) ListConversation(ctx context.Context, userID, otherID uuid.UUID) ([]models.Message, error) {
	messages := []models.Message{}
	err := s.db.SelectContext(ctx, &messages, `
		SELECT * FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY sent_at ASC`, userID, otherID)
	return messages, err
}

// ListConversationPartners returns everyone the user has messaged or heard from
func (s *Store) ListConversationPartners(ctx context.Context, userID uuid.UUID) ([]models.User, error) {
	users := []models.User{}
	err := s.db.SelectContext(ctx, &users, `
		SELECT u.* FROM users u
		WHERE u.id IN (
			SELECT receiver_id FROM messages WHERE sender_id = $1
			UNION
			SELECT sender_id FROM messages WHERE receiver_id = $1
		)
		ORDER BY u.full_name`, userID)
	return users, err
}
