package domain

import (
	"time"
)

// User represents a registered account. Only the public fields are
// serialized; secrets and token state never leave the service.
type User struct {
	ID                  int64      `json:"id"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	IsVerified          bool       `json:"is_verified"`
	VerificationToken   *string    `json:"-"`
	ResetTokenHash      *string    `json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
	AvatarURL           *string    `json:"avatar_url"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"-"`
}

// ResetTokenValid reports whether hash matches the pending reset token and
// it has not expired at now.
func (u *User) ResetTokenValid(hash string, now time.Time) bool {
	if u.ResetTokenHash == nil || u.ResetTokenExpiresAt == nil {
		return false
	}
	return *u.ResetTokenHash == hash && now.Before(*u.ResetTokenExpiresAt)
}
