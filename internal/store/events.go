package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tiger-life/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Approval states an event list can be narrowed to
const (
	EventStatusAll      = ""
	EventStatusPending  = "pending"
	EventStatusApproved = "approved"
)

// EventFilter selects which events a viewer may see. Status narrows the
// result to one approval state.
type EventFilter struct {
	ViewerID uuid.NullUUID
	IsAdmin  bool
	Status   string
}

// CreateEvent inserts a submitted event. Submissions are always unapproved.
func (s *Store) CreateEvent(ctx context.Context, event *models.Event) error {
	query := `
		INSERT INTO events (title, description, event_datetime, location, organizer_id, is_approved)
		VALUES ($1, $2, $3, $4, $5, FALSE)
		RETURNING id, is_approved, created_at`

	return s.db.QueryRowxContext(ctx, query,
		event.Title, event.Description, event.EventDatetime, event.Location, event.OrganizerID,
	).Scan(&event.ID, &event.IsApproved, &event.CreatedAt)
}

// GetEvent retrieves an event by ID
func (s *Store) GetEvent(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	var event models.Event
	err := s.db.GetContext(ctx, &event, "SELECT * FROM events WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// ListEvents returns the events visible under filter, soonest first
func (s *Store) ListEvents(ctx context.Context, filter EventFilter) ([]models.Event, error) {
	var (
		where []string
		args  []interface{}
	)

	switch {
	case filter.IsAdmin:
	case filter.ViewerID.Valid:
		args = append(args, filter.ViewerID.UUID)
		where = append(where, fmt.Sprintf("(is_approved = TRUE OR organizer_id = $%d)", len(args)))
	default:
		where = append(where, "is_approved = TRUE")
	}

	switch filter.Status {
	case EventStatusAll:
	case EventStatusPending:
		where = append(where, "is_approved = FALSE")
	case EventStatusApproved:
		where = append(where, "is_approved = TRUE")
	default:
		return nil, fmt.Errorf("unknown event status %q", filter.Status)
	}

	query := "SELECT * FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY event_datetime ASC"

	events := []models.Event{}
	err := s.db.SelectContext(ctx, &events, query, args...)
	return events, err
}

// SetEventApproval sets the approval flag, queues announce with it and
// returns the updated row
func (s *Store) SetEventApproval(ctx context.Context, id uuid.UUID, approved bool, announce *models.OutboxMessage) (*models.Event, error) {
	var event models.Event
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &event,
			"UPDATE events SET is_approved = $1 WHERE id = $2 RETURNING *", approved, id)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return insertOutbox(ctx, tx, announce)
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateEventDetails updates the organizer-editable fields of an event
func (s *Store) UpdateEventDetails(ctx context.Context, event *models.Event) error {
	err := s.db.QueryRowxContext(ctx, `
		UPDATE events
		SET title = $1, description = $2, event_datetime = $3, location = $4
		WHERE id = $5
		RETURNING is_approved, organizer_id, created_at`,
		event.Title, event.Description, event.EventDatetime, event.Location, event.ID,
	).Scan(&event.IsApproved, &event.OrganizerID, &event.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// DeleteEvent removes an event
func (s *Store) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = $1", id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
