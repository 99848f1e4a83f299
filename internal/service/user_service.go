package service

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"tiger-life/internal/auth"
	"tiger-life/internal/models"
	"tiger-life/internal/store"
	"tiger-life/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserService handles sign-up, sign-in and the admin capability
type UserService struct {
	store  UserStore
	logger *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(store UserStore) *UserService {
	return &UserService{
		store:  store,
		logger: util.ComponentLogger("users"),
	}
}

// SignUpRequest is a new member's registration
type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// SignUp registers a member. New members are never admins.
func (s *UserService) SignUp(ctx context.Context, req *SignUpRequest) (*models.User, error) {
	email := auth.NormalizeEmail(req.Email)
	fullName := strings.TrimSpace(req.FullName)
	if email == "" || !strings.Contains(email, "@") {
		return nil, validationError("A valid email is required")
	}
	if fullName == "" {
		return nil, validationError("Full name is required")
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		return nil, validationError("Password must be at least 8 characters")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, &Error{Kind: KindBackend, Message: "Failed to create account", Err: err}
	}

	user := &models.User{Email: email, FullName: fullName, PasswordHash: hash}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, validationError("An account with this email already exists")
		}
		return nil, backendError("Failed to create account", err)
	}

	s.logger.Info("User signed up", zap.String("user_id", user.ID.String()))
	return user, nil
}

// Authenticate checks credentials. Unknown emails and wrong passwords fail
// the same way.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, auth.NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, validationError("Invalid email or password")
	}
	if err != nil {
		return nil, backendError("Failed to sign in", err)
	}
	if err := auth.CheckPassword(password, user.PasswordHash); err != nil {
		return nil, validationError("Invalid email or password")
	}
	return user, nil
}

// SessionFor loads the session of a signed-in user. The admin flag is read
// from the users row on every call.
func (s *UserService) SessionFor(ctx context.Context, userID uuid.UUID) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Anonymous, lookupError("Session is no longer valid", "Failed to load session", err)
	}
	return Session{UserID: user.ID, IsAdmin: user.IsAdmin}, nil
}

// Get returns a member's profile
func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, lookupError("User not found", "Failed to load user", err)
	}
	return user, nil
}

// ProfileRequest holds the member-editable profile fields
type ProfileRequest struct {
	FullName     string `json:"full_name"`
	ProfileImage string `json:"profile_image"`
}

func (r *ProfileRequest) validate() error {
	r.FullName = strings.TrimSpace(r.FullName)
	r.ProfileImage = strings.TrimSpace(r.ProfileImage)
	if r.FullName == "" {
		return validationError("Full name is required")
	}
	if r.ProfileImage == "" {
		return nil
	}
	u, err := url.Parse(r.ProfileImage)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return validationError("Profile image must be an http or https URL")
	}
	return nil
}

// UpdateProfile changes the caller's name and picture. An empty picture
// clears it.
func (s *UserService) UpdateProfile(ctx context.Context, sess Session, req *ProfileRequest) (*models.User, error) {
	if err := requireAuth(sess); err != nil {
		return nil, err
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	user, err := s.store.UpdateUserProfile(ctx, sess.UserID, req.FullName, req.ProfileImage)
	if err != nil {
		return nil, lookupError("User not found", "Failed to update profile", err)
	}
	s.logger.Info("Profile updated", zap.String("user_id", user.ID.String()))
	return user, nil
}

// SetAdmin grants or revokes the admin capability. This is an operator
// action and is not reachable over HTTP.
func (s *UserService) SetAdmin(ctx context.Context, email string, isAdmin bool) (*models.User, error) {
	user, err := s.store.SetAdmin(ctx, auth.NormalizeEmail(email), isAdmin)
	if err != nil {
		return nil, lookupError("No user with that email", "Failed to update user", err)
	}
	s.logger.Info("Admin capability changed",
		zap.String("user_id", user.ID.String()),
		zap.Bool("is_admin", isAdmin))
	return user, nil
}
