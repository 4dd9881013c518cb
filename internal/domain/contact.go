package domain

import (
	"time"
)

// Contact is an address-book entry owned by exactly one user.
type Contact struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"-"`
	Name      string    `json:"name"`
	Surname   string    `json:"surname"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Birthday  Date      `json:"birthday"`
	Extra     *string   `json:"extra"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// ContactPatch carries the fields of a partial update. Nil fields are left
// unchanged.
type ContactPatch struct {
	Name     *string
	Surname  *string
	Email    *string
	Phone    *string
	Birthday *Date
	Extra    *string
}

// Empty reports whether the patch changes nothing.
func (p ContactPatch) Empty() bool {
	return p.Name == nil && p.Surname == nil && p.Email == nil &&
		p.Phone == nil && p.Birthday == nil && p.Extra == nil
}
