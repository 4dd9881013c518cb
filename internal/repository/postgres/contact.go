package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/domain"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/database"
	apperrors "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/errors"
)

const contactColumns = `id, user_id, name, surname, email, phone, birthday, extra, created_at, updated_at`

// likeEscaper escapes LIKE metacharacters so user input matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ContactRepository implements repository.ContactRepository using PostgreSQL.
type ContactRepository struct {
	db database.DBTX
}

// NewContactRepository creates a new PostgreSQL-backed contact repository.
func NewContactRepository(db database.DBTX) *ContactRepository {
	return &ContactRepository{db: db}
}

// Create inserts a new contact into the database.
func (r *ContactRepository) Create(ctx context.Context, c *domain.Contact) (err error) {
	query := `
		INSERT INTO contacts (user_id, name, surname, email, phone, birthday, extra)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`

	ctx, end := database.TraceQuery(ctx, "CreateContact", query)
	defer func() { end(err) }()

	err = r.db.QueryRow(ctx, query,
		c.UserID,
		c.Name,
		c.Surname,
		c.Email,
		c.Phone,
		c.Birthday.Time,
		c.Extra,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}

	return nil
}

// GetByID retrieves a contact by ID within the owner's address book.
func (r *ContactRepository) GetByID(ctx context.Context, userID, id int64) (_ *domain.Contact, err error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1 AND user_id = $2`

	ctx, end := database.TraceQuery(ctx, "GetContact", query)
	defer func() { end(err) }()

	c, err := scanContact(r.db.QueryRow(ctx, query, id, userID))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("contact", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// List returns all contacts of the user ordered by ID.
func (r *ContactRepository) List(ctx context.Context, userID int64) (_ []domain.Contact, err error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE user_id = $1 ORDER BY id`

	ctx, end := database.TraceQuery(ctx, "ListContacts", query)
	defer func() { end(err) }()

	return r.queryContacts(ctx, query, userID)
}

// Update merges the non-nil patch fields into the stored contact in a single
// statement and returns the result.
func (r *ContactRepository) Update(ctx context.Context, userID, id int64, p domain.ContactPatch) (_ *domain.Contact, err error) {
	query := `
		UPDATE contacts
		SET name       = COALESCE($3, name),
		    surname    = COALESCE($4, surname),
		    email      = COALESCE($5, email),
		    phone      = COALESCE($6, phone),
		    birthday   = COALESCE($7::date, birthday),
		    extra      = COALESCE($8, extra),
		    updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + contactColumns

	ctx, end := database.TraceQuery(ctx, "UpdateContact", query)
	defer func() { end(err) }()

	var birthday *time.Time
	if p.Birthday != nil {
		birthday = &p.Birthday.Time
	}

	c, err := scanContact(r.db.QueryRow(ctx, query,
		id,
		userID,
		p.Name,
		p.Surname,
		p.Email,
		p.Phone,
		birthday,
		p.Extra,
	))
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.NotFound("contact", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("update contact: %w", err)
	}
	return c, nil
}

// Delete removes a contact from the owner's address book.
func (r *ContactRepository) Delete(ctx context.Context, userID, id int64) (err error) {
	query := `DELETE FROM contacts WHERE id = $1 AND user_id = $2`

	ctx, end := database.TraceQuery(ctx, "DeleteContact", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("contact", strconv.FormatInt(id, 10))
	}
	return nil
}

// Search matches query as a case-insensitive substring of name, surname or
// email. LIKE wildcards in query are matched literally.
func (r *ContactRepository) Search(ctx context.Context, userID int64, q string) (_ []domain.Contact, err error) {
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE user_id = $1
		  AND (name ILIKE $2 ESCAPE '\' OR surname ILIKE $2 ESCAPE '\' OR email ILIKE $2 ESCAPE '\')
		ORDER BY id`

	ctx, end := database.TraceQuery(ctx, "SearchContacts", query)
	defer func() { end(err) }()

	return r.queryContacts(ctx, query, userID, SearchPattern(q))
}

// SearchPattern turns raw user input into an ILIKE substring pattern.
func SearchPattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

func (r *ContactRepository) queryContacts(ctx context.Context, query string, args ...any) ([]domain.Contact, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]domain.Contact, 0)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		contacts = append(contacts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}

	return contacts, nil
}

func scanContact(row pgx.Row) (*domain.Contact, error) {
	var (
		c        domain.Contact
		birthday time.Time
	)
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Name,
		&c.Surname,
		&c.Email,
		&c.Phone,
		&birthday,
		&c.Extra,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Birthday = domain.NewDate(birthday)
	return &c, nil
}
