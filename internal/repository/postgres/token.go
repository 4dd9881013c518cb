package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/database"
	apperrors "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/errors"
)

// RefreshTokenRepository implements repository.RefreshTokenRepository using PostgreSQL.
type RefreshTokenRepository struct {
	db database.DBTX
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(db database.DBTX) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// Create stores a new refresh token hash in the database.
func (r *RefreshTokenRepository) Create(ctx context.Context, userID int64, tokenHash string, expiresAt time.Time) (err error) {
	query := `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)`

	ctx, end := database.TraceQuery(ctx, "CreateRefreshToken", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, userID, tokenHash, expiresAt); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// Consume revokes a live token and returns its owner. Revoked, expired and
// unknown tokens all report ErrNotFound.
func (r *RefreshTokenRepository) Consume(ctx context.Context, tokenHash string) (_ int64, err error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = NOW()
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()
		RETURNING user_id`

	ctx, end := database.TraceQuery(ctx, "ConsumeRefreshToken", query)
	defer func() { end(err) }()

	var userID int64
	if err = r.db.QueryRow(ctx, query, tokenHash).Scan(&userID); err != nil {
		if database.IsNoRows(err) {
			return 0, apperrors.ErrNotFound
		}
		return 0, fmt.Errorf("consume refresh token: %w", err)
	}
	return userID, nil
}

// RevokeByUserID revokes all refresh tokens for the given user.
func (r *RefreshTokenRepository) RevokeByUserID(ctx context.Context, userID int64) (err error) {
	query := `UPDATE refresh_tokens SET revoked_at = NOW() WHERE user_id = $1 AND revoked_at IS NULL`

	ctx, end := database.TraceQuery(ctx, "RevokeRefreshTokens", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("revoke refresh tokens by user: %w", err)
	}
	return nil
}
