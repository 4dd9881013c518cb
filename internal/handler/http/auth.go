package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/domain"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/service"
	apperrors "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/errors"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/httputil"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/validator"
)

const maxJSONBody = 1 << 20

// AuthService is the account behavior the auth endpoints need.
type AuthService interface {
	Register(ctx context.Context, input service.RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.TokenPair, error)
	Authenticate(ctx context.Context, accessToken string) (*domain.User, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	VerifyEmail(ctx context.Context, token string) (string, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	UploadAvatar(ctx context.Context, userID int64, data []byte) (*domain.User, error)
}

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// RegisterRequest is the JSON request body for user registration.
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// LoginForm is the form-encoded login body. The username field carries the
// email address.
type LoginForm struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest is the JSON request body for token refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// PasswordResetRequest is the JSON request body for requesting a reset link.
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest is the JSON request body for setting a new password.
type ResetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// --- Handlers ---

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	var req RegisterRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	user, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, user)
}

// Login handles POST /auth/login. Credentials arrive as form fields, either
// urlencoded or multipart.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	if err := parseForm(r); err != nil {
		httputil.WriteValidationError(w, r, &validator.DecodeError{Err: err})
		return
	}

	form := LoginForm{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}
	if err := validator.Validate(form); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	tokens, err := h.service.Login(r.Context(), form.Username, form.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, tokens)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := CurrentUser(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("not authenticated"), h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	var req RefreshRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	tokens, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, tokens)
}

// VerifyEmail handles GET /auth/verify-email?token=
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.WriteError(w, r, apperrors.Unprocessable("request validation failed",
			map[string]string{"token": "is required"}), h.logger)
		return
	}

	detail, err := h.service.VerifyEmail(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteDetail(w, http.StatusOK, detail)
}

// RequestPasswordReset handles POST /auth/request-password-reset. The
// response is the same whether or not the email is registered.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	var req PasswordResetRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteDetail(w, http.StatusOK, service.DetailResetRequested)
}

// ResetPassword handles POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	var req ResetPasswordRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteDetail(w, http.StatusOK, service.DetailPasswordReset)
}

// UploadAvatar handles POST /auth/upload-avatar with a multipart "file" field.
func (h *AuthHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("not authenticated"), h.logger)
		return
	}

	// Leave room for the multipart envelope around a maximum-size file.
	r.Body = http.MaxBytesReader(w, r.Body, service.MaxAvatarSize+maxJSONBody)
	if err := r.ParseMultipartForm(service.MaxAvatarSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, r, apperrors.InvalidInput("file must not exceed 5 MB"), h.logger)
			return
		}
		httputil.WriteError(w, r, apperrors.InvalidInput("expected a multipart form with a file field"), h.logger)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("file is required"), h.logger)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, service.MaxAvatarSize+1))
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("could not read uploaded file"), h.logger)
		return
	}

	user, err := h.service.UploadAvatar(r.Context(), userID, data)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, user)
}

// parseForm accepts both urlencoded and multipart bodies.
func parseForm(r *http.Request) error {
	if err := r.ParseMultipartForm(maxJSONBody); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return r.ParseForm()
		}
		return err
	}
	return nil
}
