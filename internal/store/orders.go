package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tiger-life/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// CreateOrder inserts a new order row and queues announce with it. The
// caller assigns the order ID.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, announce *models.OutboxMessage) error {
	query := `
		INSERT INTO orders (id, buyer_id, seller_id, item_type, item_id, price, status, stripe_session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.QueryRowxContext(ctx, query,
			order.ID, order.BuyerID, order.SellerID, order.ItemType, order.ItemID,
			order.Price, order.Status, order.StripeSessionID,
		).Scan(&order.CreatedAt)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		if err != nil {
			return err
		}
		return insertOutbox(ctx, tx, announce)
	})
}

// GetOrderBySessionID retrieves the order created for a checkout session
func (s *Store) GetOrderBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE stripe_session_id = $1", sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// TransitionOrderStatus moves an order from one status to another and queues
// announce in the same transaction. It reports false, and queues nothing,
// when the order was not in the expected status.
func (s *Store) TransitionOrderStatus(ctx context.Context, sessionID string, from, to models.OrderStatus, announce *models.OutboxMessage) (bool, error) {
	moved := false
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx,
			"UPDATE orders SET status = $1 WHERE stripe_session_id = $2 AND status = $3",
			to, sessionID, from)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n != 1 {
			return nil
		}
		moved = true
		return insertOutbox(ctx, tx, announce)
	})
	if err != nil {
		return false, err
	}
	return moved, nil
}

// ListOrdersByUser retrieves orders where the user is buyer or seller
func (s *Store) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// ListStaleOrders returns processing orders created before the cutoff
func (s *Store) ListStaleOrders(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE status = $1 AND created_at < $2 ORDER BY created_at LIMIT $3",
		models.OrderStatusProcessing, cutoff, limit)
	return orders, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
