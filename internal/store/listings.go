package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"tiger-life/internal/models"

	"github.com/google/uuid"
)

// listingTable maps an item type to its table. The result is interpolated
// into SQL, so only known types are accepted.
func listingTable(kind models.ItemType) (string, error) {
	switch kind {
	case models.ItemTypeProduct:
		return "products", nil
	case models.ItemTypeService:
		return "services", nil
	}
	return "", fmt.Errorf("unknown listing kind %q", kind)
}

// CreateListing inserts an active product or service
func (s *Store) CreateListing(ctx context.Context, kind models.ItemType, listing *models.Listing) error {
	table, err := listingTable(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (title, description, price, image_url, owner_id, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, is_active, created_at`, table)

	return s.db.QueryRowxContext(ctx, query,
		listing.Title, listing.Description, listing.Price, listing.ImageURL, listing.OwnerID,
	).Scan(&listing.ID, &listing.IsActive, &listing.CreatedAt)
}

// GetListing retrieves an active listing by ID
func (s *Store) GetListing(ctx context.Context, kind models.ItemType, id uuid.UUID) (*models.Listing, error) {
	table, err := listingTable(kind)
	if err != nil {
		return nil, err
	}

	var listing models.Listing
	err = s.db.GetContext(ctx, &listing,
		fmt.Sprintf("SELECT * FROM %s WHERE id = $1 AND is_active = TRUE", table), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// ListActiveListings returns all active listings, newest first
func (s *Store) ListActiveListings(ctx context.Context, kind models.ItemType) ([]models.Listing, error) {
	table, err := listingTable(kind)
	if err != nil {
		return nil, err
	}

	listings := []models.Listing{}
	err = s.db.SelectContext(ctx, &listings,
		fmt.Sprintf("SELECT * FROM %s WHERE is_active = TRUE ORDER BY created_at DESC", table))
	return listings, err
}

// ListListingsByOwner returns a member's active listings
func (s *Store) ListListingsByOwner(ctx context.Context, kind models.ItemType, ownerID uuid.UUID) ([]models.Listing, error) {
	table, err := listingTable(kind)
	if err != nil {
		return nil, err
	}

	listings := []models.Listing{}
	err = s.db.SelectContext(ctx, &listings,
		fmt.Sprintf("SELECT * FROM %s WHERE owner_id = $1 AND is_active = TRUE ORDER BY created_at DESC", table),
		ownerID)
	return listings, err
}

// UpdateListing updates the editable fields of an active listing
func (s *Store) UpdateListing(ctx context.Context, kind models.ItemType, listing *models.Listing) error {
	table, err := listingTable(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		UPDATE %s SET title = $1, description = $2, price = $3, image_url = $4
		WHERE id = $5 AND is_active = TRUE
		RETURNING owner_id, is_active, created_at`, table)

	err = s.db.QueryRowxContext(ctx, query,
		listing.Title, listing.Description, listing.Price, listing.ImageURL, listing.ID,
	).Scan(&listing.OwnerID, &listing.IsActive, &listing.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// DeactivateListing soft-deletes a listing
func (s *Store) DeactivateListing(ctx context.Context, kind models.ItemType, id uuid.UUID) error {
	table, err := listingTable(kind)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET is_active = FALSE WHERE id = $1 AND is_active = TRUE", table), id)
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
