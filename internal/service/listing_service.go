package service

import (
	"context"
	"strings"

	"tiger-life/internal/models"
	"tiger-life/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ListingService manages products and services offered by members
type ListingService struct {
	store  ListingStore
	cache  Cache
	logger *zap.Logger
}

// NewListingService creates a new listing service. cache may be nil.
func NewListingService(store ListingStore, cache Cache) *ListingService {
	return &ListingService{
		store:  store,
		cache:  cacheOrNoop(cache),
		logger: util.ComponentLogger("listings"),
	}
}

// ListingRequest holds the owner-editable fields of a listing
type ListingRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url"`
}

func (r *ListingRequest) validate() error {
	r.Title = strings.TrimSpace(r.Title)
	if r.Title == "" {
		return validationError("Title is required")
	}
	if r.Price.IsNegative() {
		return validationError("Price cannot be negative")
	}
	return nil
}

func listingNamespace(kind models.ItemType) string {
	if kind == models.ItemTypeProduct {
		return NamespaceProducts
	}
	return NamespaceServices
}

func checkKind(kind models.ItemType) error {
	if _, ok := models.ParseItemType(string(kind)); !ok {
		return validationError("Unknown listing type")
	}
	return nil
}

// Create publishes a new listing owned by the caller
func (s *ListingService) Create(ctx context.Context, sess Session, kind models.ItemType, req *ListingRequest) (*models.Listing, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if err := requireAuth(sess); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	listing := &models.Listing{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price.Round(2),
		ImageURL:    req.ImageURL,
		OwnerID:     sess.UserID,
	}
	if err := s.store.CreateListing(ctx, kind, listing); err != nil {
		return nil, backendError("Failed to create listing", err)
	}

	invalidate(ctx, s.cache, s.logger, listingNamespace(kind))
	s.logger.Info("Listing created",
		zap.String("kind", string(kind)),
		zap.String("listing_id", listing.ID.String()))
	return listing, nil
}

// Get returns an active listing
func (s *ListingService) Get(ctx context.Context, kind models.ItemType, id uuid.UUID) (*models.Listing, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	listing, err := s.store.GetListing(ctx, kind, id)
	if err != nil {
		return nil, lookupError("Listing not found", "Failed to load listing", err)
	}
	return listing, nil
}

// ListActive returns every active listing of a kind, newest first
func (s *ListingService) ListActive(ctx context.Context, kind models.ItemType) ([]models.Listing, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	listings, err := readThrough(ctx, s.cache, s.logger, listingNamespace(kind), "active", func() ([]models.Listing, error) {
		return s.store.ListActiveListings(ctx, kind)
	})
	if err != nil {
		return nil, backendError("Failed to load listings", err)
	}
	return listings, nil
}

// ListMine returns the caller's active listings of a kind
func (s *ListingService) ListMine(ctx context.Context, sess Session, kind models.ItemType) ([]models.Listing, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if err := requireAuth(sess); err != nil {
		return nil, err
	}
	listings, err := s.store.ListListingsByOwner(ctx, kind, sess.UserID)
	if err != nil {
		return nil, backendError("Failed to load listings", err)
	}
	return listings, nil
}

// Update edits a listing. Only its owner may.
func (s *ListingService) Update(ctx context.Context, sess Session, kind models.ItemType, id uuid.UUID, req *ListingRequest) (*models.Listing, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := s.authorizeOwner(ctx, sess, kind, id); err != nil {
		return nil, err
	}

	listing := &models.Listing{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price.Round(2),
		ImageURL:    req.ImageURL,
	}
	if err := s.store.UpdateListing(ctx, kind, listing); err != nil {
		return nil, backendError("Failed to update listing", err)
	}

	invalidate(ctx, s.cache, s.logger, listingNamespace(kind))
	return listing, nil
}

// Delete hides a listing. Orders that reference it are kept.
func (s *ListingService) Delete(ctx context.Context, sess Session, kind models.ItemType, id uuid.UUID) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	if err := s.authorizeOwner(ctx, sess, kind, id); err != nil {
		return err
	}
	if err := s.store.DeactivateListing(ctx, kind, id); err != nil {
		return backendError("Failed to delete listing", err)
	}

	invalidate(ctx, s.cache, s.logger, listingNamespace(kind))
	s.logger.Info("Listing deactivated",
		zap.String("kind", string(kind)),
		zap.String("listing_id", id.String()))
	return nil
}

func (s *ListingService) authorizeOwner(ctx context.Context, sess Session, kind models.ItemType, id uuid.UUID) error {
	if err := requireAuth(sess); err != nil {
		return err
	}
	listing, err := s.store.GetListing(ctx, kind, id)
	if err != nil {
		return lookupError("Listing not found", "Failed to load listing", err)
	}
	if listing.OwnerID != sess.UserID {
		return permissionError("You can only change your own listings")
	}
	return nil
}

// InvalidateCache drops cached listings of a kind
func (s *ListingService) InvalidateCache(ctx context.Context, kind models.ItemType) {
	invalidate(ctx, s.cache, s.logger, listingNamespace(kind))
}
