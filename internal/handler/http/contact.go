package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/domain"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/service"
	apperrors "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/errors"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/httputil"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/validator"
)

// ContactService is the contact behavior the contact endpoints need.
type ContactService interface {
	Create(ctx context.Context, userID int64, input service.CreateContactInput) (*domain.Contact, error)
	List(ctx context.Context, userID int64) ([]domain.Contact, error)
	Get(ctx context.Context, userID, id int64) (*domain.Contact, error)
	Update(ctx context.Context, userID, id int64, patch domain.ContactPatch) (*domain.Contact, error)
	Delete(ctx context.Context, userID, id int64) error
	Search(ctx context.Context, userID int64, query string) ([]domain.Contact, error)
}

// DetailContactDeleted confirms a successful delete.
const DetailContactDeleted = "contact deleted"

// ContactHandler handles HTTP requests for contact endpoints.
type ContactHandler struct {
	service ContactService
	logger  *slog.Logger
}

// NewContactHandler creates a new contact HTTP handler.
func NewContactHandler(svc ContactService, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// CreateContactRequest is the JSON request body for creating a contact.
type CreateContactRequest struct {
	Name     string  `json:"name" validate:"required,min=1,max=50"`
	Surname  string  `json:"surname" validate:"required,min=1,max=50"`
	Email    string  `json:"email" validate:"required,email"`
	Phone    string  `json:"phone" validate:"required,phone"`
	Birthday string  `json:"birthday" validate:"required,datetime=2006-01-02"`
	Extra    *string `json:"extra" validate:"omitempty,max=255"`
}

// UpdateContactRequest is the JSON request body for a partial update.
// Absent and null fields are left unchanged.
type UpdateContactRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=50"`
	Surname  *string `json:"surname" validate:"omitempty,min=1,max=50"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone" validate:"omitempty,phone"`
	Birthday *string `json:"birthday" validate:"omitempty,datetime=2006-01-02"`
	Extra    *string `json:"extra" validate:"omitempty,max=255"`
}

func (req UpdateContactRequest) patch() (domain.ContactPatch, error) {
	p := domain.ContactPatch{
		Name:    req.Name,
		Surname: req.Surname,
		Email:   req.Email,
		Phone:   req.Phone,
		Extra:   req.Extra,
	}
	if req.Birthday != nil {
		d, err := domain.ParseDate(*req.Birthday)
		if err != nil {
			return p, err
		}
		p.Birthday = &d
	}
	return p, nil
}

// --- Handlers ---

// Create handles POST /contacts/
func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("not authenticated"), h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	var req CreateContactRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	birthday, err := domain.ParseDate(req.Birthday)
	if err != nil {
		writeBirthdayError(w, r)
		return
	}

	contact, err := h.service.Create(r.Context(), userID, service.CreateContactInput{
		Name:     req.Name,
		Surname:  req.Surname,
		Email:    req.Email,
		Phone:    req.Phone,
		Birthday: birthday,
		Extra:    req.Extra,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, contact)
}

// List handles GET /contacts/
func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("not authenticated"), h.logger)
		return
	}

	contacts, err := h.service.List(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, nonNil(contacts))
}

// Get handles GET /contacts/{id}
func (h *ContactHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("not authenticated"), h.logger)
		return
	}
	id, ok := httputil.ParseID(w, r, chi.URLParam(r, "id"), "contact")
	if !ok {
		return
	}

	contact, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, contact)
}

// Update handles PUT /contacts/{id}
func (h *ContactHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("not authenticated"), h.logger)
		return
	}
	id, ok := httputil.ParseID(w, r, chi.URLParam(r, "id"), "contact")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	var req UpdateContactRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	patch, err := req.patch()
	if err != nil {
		writeBirthdayError(w, r)
		return
	}

	contact, err := h.service.Update(r.Context(), userID, id, patch)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, contact)
}

// Delete handles DELETE /contacts/{id}
func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("not authenticated"), h.logger)
		return
	}
	id, ok := httputil.ParseID(w, r, chi.URLParam(r, "id"), "contact")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteDetail(w, http.StatusOK, DetailContactDeleted)
}

// Search handles GET /contacts/search/?query=
func (h *ContactHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("not authenticated"), h.logger)
		return
	}

	contacts, err := h.service.Search(r.Context(), userID, r.URL.Query().Get("query"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, nonNil(contacts))
}

// writeBirthdayError covers dates that match the layout but do not exist,
// such as 2023-02-30.
func writeBirthdayError(w http.ResponseWriter, r *http.Request) {
	httputil.WriteError(w, r, apperrors.Unprocessable("request validation failed",
		map[string]string{"birthday": "must be a valid calendar date"}), nil)
}

func nonNil(contacts []domain.Contact) []domain.Contact {
	if contacts == nil {
		return []domain.Contact{}
	}
	return contacts
}
