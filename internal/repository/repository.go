package repository

import (
	"context"
	"time"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user and fills in its ID and timestamps.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetByVerificationToken retrieves the user a verification link was issued to.
	GetByVerificationToken(ctx context.Context, token string) (*domain.User, error)

	// GetByResetTokenHash retrieves the user holding a pending password reset.
	GetByResetTokenHash(ctx context.Context, hash string) (*domain.User, error)

	// MarkVerified sets is_verified and clears the verification token.
	MarkVerified(ctx context.Context, id int64) error

	// SetResetToken stores the hash and expiry of a password reset token.
	SetResetToken(ctx context.Context, id int64, hash string, expiresAt time.Time) error

	// UpdatePassword replaces the password hash and clears any reset token.
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error

	// UpdateAvatar stores the avatar URL and returns the updated user.
	UpdateAvatar(ctx context.Context, id int64, url string) (*domain.User, error)
}

// ContactRepository defines contact persistence. Every method is scoped to
// the owning user; contacts of other users behave as if absent.
type ContactRepository interface {
	// Create inserts a new contact and fills in its ID and timestamps.
	Create(ctx context.Context, contact *domain.Contact) error

	// GetByID retrieves a contact owned by userID.
	GetByID(ctx context.Context, userID, id int64) (*domain.Contact, error)

	// List returns all contacts of userID in creation order.
	List(ctx context.Context, userID int64) ([]domain.Contact, error)

	// Update applies the non-nil fields of patch and returns the merged contact.
	Update(ctx context.Context, userID, id int64, patch domain.ContactPatch) (*domain.Contact, error)

	// Delete removes a contact owned by userID.
	Delete(ctx context.Context, userID, id int64) error

	// Search returns contacts of userID whose name, surname or email
	// contains query, ignoring case.
	Search(ctx context.Context, userID int64, query string) ([]domain.Contact, error)
}

// RefreshTokenRepository defines the interface for refresh token persistence operations.
type RefreshTokenRepository interface {
	// Create stores a new refresh token hash.
	Create(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) error

	// Consume revokes an unexpired, unrevoked token in one statement and
	// returns its owner. A token can be consumed at most once.
	Consume(ctx context.Context, tokenHash string) (int64, error)

	// RevokeByUserID revokes all refresh tokens for the given user.
	RevokeByUserID(ctx context.Context, userID int64) error
}
