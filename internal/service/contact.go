package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/domain"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/repository"
)

// ContactEvents publishes contact lifecycle events.
type ContactEvents interface {
	PublishContactCreated(ctx context.Context, c *domain.Contact) error
	PublishContactUpdated(ctx context.Context, c *domain.Contact) error
	PublishContactDeleted(ctx context.Context, userID, id int64) error
}

// ContactService implements the business logic for a user's address book.
// Every operation is scoped to the given owner.
type ContactService struct {
	repo   repository.ContactRepository
	events ContactEvents
	logger *slog.Logger
}

// NewContactService creates a new contact service.
func NewContactService(repo repository.ContactRepository, events ContactEvents, logger *slog.Logger) *ContactService {
	return &ContactService{
		repo:   repo,
		events: events,
		logger: logger,
	}
}

// CreateContactInput holds the parameters for creating a contact.
type CreateContactInput struct {
	Name     string
	Surname  string
	Email    string
	Phone    string
	Birthday domain.Date
	Extra    *string
}

// Create adds a contact to the owner's address book.
func (s *ContactService) Create(ctx context.Context, userID int64, input CreateContactInput) (*domain.Contact, error) {
	c := &domain.Contact{
		UserID:   userID,
		Name:     input.Name,
		Surname:  input.Surname,
		Email:    input.Email,
		Phone:    input.Phone,
		Birthday: input.Birthday,
		Extra:    input.Extra,
	}

	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}

	if err := s.events.PublishContactCreated(ctx, c); err != nil {
		s.logPublishFailure(ctx, "contact.created", c.ID, err)
	}

	s.logger.InfoContext(ctx, "contact created",
		slog.Int64("contact_id", c.ID),
		slog.Int64("user_id", userID),
	)

	return c, nil
}

// List returns all of the owner's contacts in creation order.
func (s *ContactService) List(ctx context.Context, userID int64) ([]domain.Contact, error) {
	contacts, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

// Get returns a single contact owned by userID.
func (s *ContactService) Get(ctx context.Context, userID, id int64) (*domain.Contact, error) {
	return s.repo.GetByID(ctx, userID, id)
}

// Update applies the fields present in patch and returns the merged contact.
// An empty patch changes nothing and returns the stored contact.
func (s *ContactService) Update(ctx context.Context, userID, id int64, patch domain.ContactPatch) (*domain.Contact, error) {
	if patch.Empty() {
		return s.repo.GetByID(ctx, userID, id)
	}

	c, err := s.repo.Update(ctx, userID, id, patch)
	if err != nil {
		return nil, err
	}

	if err := s.events.PublishContactUpdated(ctx, c); err != nil {
		s.logPublishFailure(ctx, "contact.updated", c.ID, err)
	}

	s.logger.InfoContext(ctx, "contact updated",
		slog.Int64("contact_id", c.ID),
		slog.Int64("user_id", userID),
	)

	return c, nil
}

// Delete removes a contact owned by userID.
func (s *ContactService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}

	if err := s.events.PublishContactDeleted(ctx, userID, id); err != nil {
		s.logPublishFailure(ctx, "contact.deleted", id, err)
	}

	s.logger.InfoContext(ctx, "contact deleted",
		slog.Int64("contact_id", id),
		slog.Int64("user_id", userID),
	)

	return nil
}

// Search returns the owner's contacts whose name, surname or email contains
// query, ignoring case. A blank query matches nothing.
func (s *ContactService) Search(ctx context.Context, userID int64, query string) ([]domain.Contact, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Contact{}, nil
	}

	contacts, err := s.repo.Search(ctx, userID, query)
	if err != nil {
		return nil, fmt.Errorf("search contacts: %w", err)
	}
	return contacts, nil
}

func (s *ContactService) logPublishFailure(ctx context.Context, event string, contactID int64, err error) {
	s.logger.ErrorContext(ctx, "failed to publish "+event+" event",
		slog.Int64("contact_id", contactID),
		slog.String("error", err.Error()),
	)
}
