package postgres

import (
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/domain"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/database"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func strPtr(s string) *string { return &s }

func fixedTime() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func sampleUser() *domain.User {
	now := fixedTime()
	return &domain.User{
		ID:           1,
		Email:        "ann@example.com",
		PasswordHash: "bcrypt-hash",
		IsVerified:   false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

var userColumnNames = []string{
	"id", "email", "password_hash", "is_verified", "verification_token",
	"reset_token_hash", "reset_token_expires_at", "avatar_url", "created_at", "updated_at",
}

func userRow(u *domain.User) *pgxmock.Rows {
	return pgxmock.NewRows(userColumnNames).AddRow(
		u.ID, u.Email, u.PasswordHash, u.IsVerified, u.VerificationToken,
		u.ResetTokenHash, u.ResetTokenExpiresAt, u.AvatarURL, u.CreatedAt, u.UpdatedAt,
	)
}

func sampleContact() *domain.Contact {
	now := fixedTime()
	return &domain.Contact{
		ID:        10,
		UserID:    1,
		Name:      "Bob",
		Surname:   "Stone",
		Email:     "bob@example.com",
		Phone:     "+380501234567",
		Birthday:  domain.NewDate(time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)),
		Extra:     strPtr("college friend"),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

var contactColumnNames = []string{
	"id", "user_id", "name", "surname", "email", "phone", "birthday", "extra", "created_at", "updated_at",
}

func addContactRow(rows *pgxmock.Rows, c *domain.Contact) *pgxmock.Rows {
	return rows.AddRow(
		c.ID, c.UserID, c.Name, c.Surname, c.Email, c.Phone,
		c.Birthday.Time, c.Extra, c.CreatedAt, c.UpdatedAt,
	)
}

func contactRows(cs ...*domain.Contact) *pgxmock.Rows {
	rows := pgxmock.NewRows(contactColumnNames)
	for _, c := range cs {
		addContactRow(rows, c)
	}
	return rows
}
