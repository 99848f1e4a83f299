package store

import (
	"context"
	"fmt"
	"time"

	"tiger-life/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// relayLockID serialises relays across instances so the outbox is published
// in sequence order
const relayLockID = 7_469_676_572

// inTx runs fn in a transaction and commits if it returns nil
func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// insertOutbox queues msg inside tx. A nil message is skipped.
func insertOutbox(ctx context.Context, tx *sqlx.Tx, msg *models.OutboxMessage) error {
	if msg == nil {
		return nil
	}
	err := tx.QueryRowxContext(ctx, `
		INSERT INTO outbox_messages (id, event_type, partition_key, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING seq, created_at`,
		msg.ID, msg.EventType, msg.PartitionKey, string(msg.Payload),
	).Scan(&msg.Seq, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to queue %s: %w", msg.EventType, err)
	}
	return nil
}

// RelayOutbox hands up to limit unpublished messages to publish in sequence
// order and marks the ones it accepted. It stops at the first failure so a
// later message never overtakes an earlier one. It returns zero when another
// relay holds the lock.
func (s *Store) RelayOutbox(ctx context.Context, limit int, publish func(context.Context, models.OutboxMessage) error) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked bool
	if err := tx.GetContext(ctx, &locked, "SELECT pg_try_advisory_xact_lock($1)", relayLockID); err != nil {
		return 0, err
	}
	if !locked {
		return 0, nil
	}

	pending := []models.OutboxMessage{}
	err = tx.SelectContext(ctx, &pending, `
		SELECT * FROM outbox_messages
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1
		FOR UPDATE`, limit)
	if err != nil {
		return 0, err
	}

	published := make([]uuid.UUID, 0, len(pending))
	var publishErr error
	for _, msg := range pending {
		if publishErr = publish(ctx, msg); publishErr != nil {
			break
		}
		published = append(published, msg.ID)
	}

	if len(published) > 0 {
		query, args, err := sqlx.In("UPDATE outbox_messages SET published_at = NOW() WHERE id IN (?)", published)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(published), publishErr
}

// PurgeOutbox deletes messages published before the cutoff
func (s *Store) PurgeOutbox(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM outbox_messages WHERE published_at IS NOT NULL AND published_at < $1", before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
