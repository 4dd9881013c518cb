package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/domain"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/database"
	apperrors "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/errors"
)

const userColumns = `id, email, password_hash, is_verified, verification_token,
		reset_token_hash, reset_token_expires_at, avatar_url, created_at, updated_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user into the database.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	query := `
		INSERT INTO users (email, password_hash, is_verified, verification_token)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	ctx, end := database.TraceQuery(ctx, "CreateUser", query)
	defer func() { end(err) }()

	err = r.db.QueryRow(ctx, query, u.Email, u.PasswordHash, u.IsVerified, u.VerificationToken).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.AlreadyExists("user", "email", u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, "GetUserByID", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail retrieves a user by their email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, "GetUserByEmail", `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// GetByVerificationToken retrieves the user a verification token was issued to.
func (r *UserRepository) GetByVerificationToken(ctx context.Context, token string) (*domain.User, error) {
	return r.getOne(ctx, "GetUserByVerificationToken",
		`SELECT `+userColumns+` FROM users WHERE verification_token = $1`, token)
}

// GetByResetTokenHash retrieves the user holding the given reset token hash.
func (r *UserRepository) GetByResetTokenHash(ctx context.Context, hash string) (*domain.User, error) {
	return r.getOne(ctx, "GetUserByResetToken",
		`SELECT `+userColumns+` FROM users WHERE reset_token_hash = $1`, hash)
}

// MarkVerified flags the user's email as verified.
func (r *UserRepository) MarkVerified(ctx context.Context, id int64) error {
	return r.execOne(ctx, "MarkUserVerified", id, `
		UPDATE users
		SET is_verified = TRUE, verification_token = NULL, updated_at = NOW()
		WHERE id = $1`, id)
}

// SetResetToken stores a password reset token hash with its expiry.
func (r *UserRepository) SetResetToken(ctx context.Context, id int64, hash string, expiresAt time.Time) error {
	return r.execOne(ctx, "SetUserResetToken", id, `
		UPDATE users
		SET reset_token_hash = $2, reset_token_expires_at = $3, updated_at = NOW()
		WHERE id = $1`, id, hash, expiresAt)
}

// UpdatePassword replaces the password hash and clears the reset token.
func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	return r.execOne(ctx, "UpdateUserPassword", id, `
		UPDATE users
		SET password_hash = $2, reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = NOW()
		WHERE id = $1`, id, passwordHash)
}

// UpdateAvatar stores the avatar URL and returns the updated user.
func (r *UserRepository) UpdateAvatar(ctx context.Context, id int64, url string) (*domain.User, error) {
	return r.getOne(ctx, "UpdateUserAvatar", `
		UPDATE users
		SET avatar_url = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, url)
}

// getOne runs a query expected to return a single user row.
func (r *UserRepository) getOne(ctx context.Context, op, query string, args ...any) (_ *domain.User, err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	var u domain.User
	err = r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.IsVerified,
		&u.VerificationToken,
		&u.ResetTokenHash,
		&u.ResetTokenExpiresAt,
		&u.AvatarURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &u, nil
}

// execOne runs a statement that must affect the user with the given id.
func (r *UserRepository) execOne(ctx context.Context, op string, id int64, query string, args ...any) (err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", strconv.FormatInt(id, 10))
	}
	return nil
}
