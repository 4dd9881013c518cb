package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/auth"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/domain"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/repository"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/storage"
	apperrors "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/errors"
)

// MinPasswordLength is the minimum password length accepted on register
// and reset.
const MinPasswordLength = 6

// MaxAvatarSize is the largest accepted avatar upload in bytes.
const MaxAvatarSize = 5 << 20

// tokenBytes is the entropy of verification and reset tokens.
const tokenBytes = 32

// Details returned by operations that only confirm success.
const (
	DetailEmailVerified        = "email verified"
	DetailEmailAlreadyVerified = "email already verified"
	DetailResetRequested       = "if the email exists, a password reset link has been sent"
	DetailPasswordReset        = "password has been reset"
)

// invalidCredentials is the single message for unknown email and wrong password.
const invalidCredentials = "incorrect email or password"

// avatarTypes maps accepted sniffed content types to file extensions.
var avatarTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// UserCache is the read-through cache for public user records.
type UserCache interface {
	Get(ctx context.Context, id int64) (*domain.User, error)
	Set(ctx context.Context, u *domain.User) error
	Delete(ctx context.Context, id int64) error
}

// AuthEvents publishes the events that trigger notification emails.
type AuthEvents interface {
	PublishVerificationRequested(ctx context.Context, u *domain.User, token string) error
	PublishPasswordResetRequested(ctx context.Context, u *domain.User, token string, expiresAt time.Time) error
}

// AuthOptions tunes account rules.
type AuthOptions struct {
	// RequireVerifiedEmail rejects logins of unverified users with 403.
	RequireVerifiedEmail bool
	// ResetTTL is the validity of a password reset token.
	ResetTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// AuthService implements registration, login and account recovery.
type AuthService struct {
	users     repository.UserRepository
	tokens    repository.RefreshTokenRepository
	jwt       *auth.JWTManager
	cache     UserCache
	events    AuthEvents
	avatars   storage.Storage
	opts      AuthOptions
	dummyHash []byte
	now       func() time.Time
	logger    *slog.Logger
}

// NewAuthService creates a new auth service. cache may be nil when Redis is
// disabled.
func NewAuthService(
	users repository.UserRepository,
	tokens repository.RefreshTokenRepository,
	jwtManager *auth.JWTManager,
	cache UserCache,
	events AuthEvents,
	avatars storage.Storage,
	opts AuthOptions,
	logger *slog.Logger,
) *AuthService {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}

	// Compared against when the email is unknown so both login failures cost
	// the same.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("upcontacts-dummy-password"), opts.BcryptCost)

	return &AuthService{
		users:     users,
		tokens:    tokens,
		jwt:       jwtManager,
		cache:     cache,
		events:    events,
		avatars:   avatars,
		opts:      opts,
		dummyHash: dummy,
		now:       time.Now,
		logger:    logger,
	}
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Email    string
	Password string
}

// Register creates an unverified account and requests a verification email.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	email := NormalizeEmail(input.Email)
	if email == "" {
		return nil, apperrors.Unprocessable("request validation failed", map[string]string{"email": "is required"})
	}
	if len(input.Password) < MinPasswordLength {
		return nil, apperrors.Unprocessable("request validation failed", map[string]string{
			"password": fmt.Sprintf("must be at least %d characters", MinPasswordLength),
		})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.opts.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	verification, err := auth.NewURLToken(tokenBytes)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:             email,
		PasswordHash:      string(hash),
		VerificationToken: &verification,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.events.PublishVerificationRequested(ctx, user, verification); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish verification event",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.Int64("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return user, nil
}

// Login checks the credentials and issues a token pair.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get user by email: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, apperrors.Unauthorized(invalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.Unauthorized(invalidCredentials)
	}

	if s.opts.RequireVerifiedEmail && !user.IsVerified {
		return nil, apperrors.Forbidden("email is not verified, check your inbox")
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.cacheUser(ctx, user)

	s.logger.InfoContext(ctx, "user logged in", slog.Int64("user_id", user.ID))

	return tokens, nil
}

// Authenticate resolves an access token into the current user, reading
// through the cache. Bad or stale tokens are reported as Unauthorized; a
// failing user lookup is returned as is.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domain.User, error) {
	claims, err := s.jwt.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, apperrors.Unauthorized(err.Error())
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, apperrors.Unauthorized(err.Error())
	}

	if s.cache != nil {
		user, err := s.cache.Get(ctx, userID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logger.WarnContext(ctx, "user cache read failed",
				slog.Int64("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("user no longer exists")
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	s.cacheUser(ctx, user)
	return user, nil
}

// Refresh exchanges a refresh token for a new pair. Each refresh token can
// be used once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired refresh token")
	}
	claimedID, _ := claims.UserID()

	userID, err := s.tokens.Consume(ctx, auth.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("refresh token has been revoked")
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	if userID != claimedID {
		return nil, apperrors.Unauthorized("refresh token subject mismatch")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("user no longer exists")
		}
		return nil, fmt.Errorf("get user for token refresh: %w", err)
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tokens refreshed", slog.Int64("user_id", user.ID))

	return tokens, nil
}

// VerifyEmail marks the owner of token as verified and returns a detail
// message.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (string, error) {
	user, err := s.users.GetByVerificationToken(ctx, token)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", apperrors.InvalidInput("invalid or expired verification token")
		}
		return "", fmt.Errorf("get user by verification token: %w", err)
	}

	if user.IsVerified {
		return DetailEmailAlreadyVerified, nil
	}

	if err := s.users.MarkVerified(ctx, user.ID); err != nil {
		return "", fmt.Errorf("mark user verified: %w", err)
	}
	s.invalidate(ctx, user.ID)

	s.logger.InfoContext(ctx, "email verified", slog.Int64("user_id", user.ID))

	return DetailEmailVerified, nil
}

// RequestPasswordReset stores a reset token for a known email and asks for
// the reset email. Unknown emails succeed silently.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			s.logger.InfoContext(ctx, "password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("get user by email: %w", err)
	}

	raw, err := auth.NewURLToken(tokenBytes)
	if err != nil {
		return err
	}
	expiresAt := s.now().UTC().Add(s.opts.ResetTTL)

	if err := s.users.SetResetToken(ctx, user.ID, auth.HashToken(raw), expiresAt); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	if err := s.events.PublishPasswordResetRequested(ctx, user, raw, expiresAt); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish password reset event",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password reset requested", slog.Int64("user_id", user.ID))

	return nil
}

// ResetPassword sets a new password using a reset token and signs the user
// out everywhere.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return apperrors.Unprocessable("request validation failed", map[string]string{
			"new_password": fmt.Sprintf("must be at least %d characters", MinPasswordLength),
		})
	}

	hash := auth.HashToken(token)
	user, err := s.users.GetByResetTokenHash(ctx, hash)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InvalidInput("invalid or expired reset token")
		}
		return fmt.Errorf("get user by reset token: %w", err)
	}
	if !user.ResetTokenValid(hash, s.now()) {
		return apperrors.InvalidInput("reset token has expired")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	if err := s.users.UpdatePassword(ctx, user.ID, string(passwordHash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if err := s.tokens.RevokeByUserID(ctx, user.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke refresh tokens after password reset",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
	s.invalidate(ctx, user.ID)

	s.logger.InfoContext(ctx, "password reset", slog.Int64("user_id", user.ID))

	return nil
}

// UploadAvatar stores a JPEG or PNG image and sets it as the user's avatar.
// The type is sniffed from the content, not taken from the client.
func (s *AuthService) UploadAvatar(ctx context.Context, userID int64, data []byte) (*domain.User, error) {
	if len(data) == 0 {
		return nil, apperrors.InvalidInput("file is empty")
	}
	if len(data) > MaxAvatarSize {
		return nil, apperrors.InvalidInput("file must not exceed 5 MB")
	}

	contentType := http.DetectContentType(data)
	ext, ok := avatarTypes[contentType]
	if !ok {
		return nil, apperrors.InvalidInput("only JPEG and PNG images are supported")
	}

	res, err := s.avatars.Upload(ctx, &storage.UploadInput{
		Key:         fmt.Sprintf("avatars/%d/%s%s", userID, uuid.NewString(), ext),
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        bytes.NewReader(data),
	})
	if err != nil {
		return nil, fmt.Errorf("upload avatar: %w", err)
	}

	user, err := s.users.UpdateAvatar(ctx, userID, res.URL)
	if err != nil {
		return nil, fmt.Errorf("save avatar url: %w", err)
	}
	s.cacheUser(ctx, user)

	s.logger.InfoContext(ctx, "avatar uploaded",
		slog.Int64("user_id", userID),
		slog.String("key", res.Key),
	)

	return user, nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	access, err := s.jwt.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	refresh, err := s.jwt.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	expiresAt := s.now().UTC().Add(s.jwt.RefreshExpiry())
	if err := s.tokens.Create(ctx, user.ID, auth.HashToken(refresh), expiresAt); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    domain.TokenTypeBearer,
	}, nil
}

func (s *AuthService) cacheUser(ctx context.Context, user *domain.User) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "failed to cache user",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *AuthService) invalidate(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate cached user",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
