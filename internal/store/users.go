package store

import (
	"context"
	"database/sql"
	"errors"

	"tiger-life/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ErrDuplicate is returned when a unique constraint rejects an insert
var ErrDuplicate = errors.New("already exists")

// CreateUser inserts a new member
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, full_name, profile_image, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_admin, joined_at`

	err := s.db.QueryRowxContext(ctx, query,
		user.Email, user.FullName, user.ProfileImage, user.PasswordHash,
	).Scan(&user.ID, &user.IsAdmin, &user.JoinedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

// GetUserByID retrieves a member by ID
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a member by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE lower(email) = lower($1)", email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetAdmin grants or revokes the admin capability
func (s *Store) SetAdmin(ctx context.Context, email string, isAdmin bool) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		"UPDATE users SET is_admin = $1 WHERE lower(email) = lower($2) RETURNING *", isAdmin, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUserProfile sets a member's display name and picture
func (s *Store) UpdateUserProfile(ctx context.Context, id uuid.UUID, fullName, profileImage string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user,
		"UPDATE users SET full_name = $1, profile_image = $2 WHERE id = $3 RETURNING *", fullName, profileImage, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
