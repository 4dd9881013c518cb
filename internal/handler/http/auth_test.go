package http

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/domain"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/service"
	apperrors "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/errors"
)

var testTokens = &domain.TokenPair{
	AccessToken:  "access",
	RefreshToken: "refresh",
	TokenType:    domain.TokenTypeBearer,
}

func loginRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// --- Register ---

func TestRegister_Success(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.On("Register", mock.Anything, service.RegisterInput{
		Email:    "alice@example.com",
		Password: "secret123",
	}).Return(testUser(), nil)

	rec := ts.do(http.MethodPost, "/auth/register", "", `{"email":"alice@example.com","password":"secret123"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "alice@example.com", body["email"])
	assert.EqualValues(t, testUserID, body["id"])
	assert.NotContains(t, body, "password_hash")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestRegister_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"invalid email", `{"email":"not-an-email","password":"secret123"}`, "email"},
		{"missing email", `{"password":"secret123"}`, "email"},
		{"short password", `{"email":"alice@example.com","password":"12345"}`, "password"},
		{"missing password", `{"email":"alice@example.com"}`, "password"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			rec := ts.do(http.MethodPost, "/auth/register", "", tt.body)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, "VALIDATION_ERROR", resp.Code)
			assert.Contains(t, resp.Fields, tt.field)
		})
	}
}

func TestRegister_MalformedJSON(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/auth/register", "", `{"email":`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_BODY", decodeError(t, rec).Code)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.On("Register", mock.Anything, mock.Anything).
		Return(nil, apperrors.AlreadyExists("user", "email", "alice@example.com"))

	rec := ts.do(http.MethodPost, "/auth/register", "", `{"email":"alice@example.com","password":"secret123"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", decodeError(t, rec).Code)
}

func TestRegister_WrongContentType(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("email=a"))
	req.Header.Set("Content-Type", "text/plain")

	rec := ts.serve(req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Equal(t, "UNSUPPORTED_MEDIA_TYPE", decodeError(t, rec).Code)
}

// --- Login ---

func TestLogin_FormSuccess(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.On("Login", mock.Anything, "alice@example.com", "secret123").Return(testTokens, nil)

	rec := ts.serve(loginRequest(url.Values{"username": {"alice@example.com"}, "password": {"secret123"}}))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[domain.TokenPair](t, rec)
	assert.Equal(t, "access", body.AccessToken)
	assert.Equal(t, "refresh", body.RefreshToken)
	assert.Equal(t, "bearer", body.TokenType)
}

func TestLogin_MultipartSuccess(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.On("Login", mock.Anything, "alice@example.com", "secret123").Return(testTokens, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("username", "alice@example.com"))
	require.NoError(t, mw.WriteField("password", "secret123"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/auth/login", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := ts.serve(req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_MissingField(t *testing.T) {
	tests := []struct {
		name  string
		form  url.Values
		field string
	}{
		{"no password", url.Values{"username": {"alice@example.com"}}, "password"},
		{"no username", url.Values{"password": {"secret123"}}, "username"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			rec := ts.serve(loginRequest(tt.form))

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Contains(t, decodeError(t, rec).Fields, tt.field)
		})
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.On("Login", mock.Anything, "alice@example.com", "wrong").
		Return(nil, apperrors.Unauthorized("incorrect email or password"))

	rec := ts.serve(loginRequest(url.Values{"username": {"alice@example.com"}, "password": {"wrong"}}))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "incorrect email or password", decodeError(t, rec).Detail)
}

func TestLogin_UnverifiedForbidden(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.On("Login", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperrors.Forbidden("email is not verified, check your inbox"))

	rec := ts.serve(loginRequest(url.Values{"username": {"alice@example.com"}, "password": {"secret123"}}))

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// --- Me ---

func TestMe_Success(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/auth/me", validToken, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "alice@example.com", body["email"])
	assert.Equal(t, false, body["is_verified"])
}

func TestMe_Unauthorized(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"invalid token", "Bearer nope"},
		{"empty token", "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := ts.serve(req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			assert.Equal(t, "could not validate credentials", decodeError(t, rec).Detail)
		})
	}
}

// --- Refresh ---

func TestRefresh_Success(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.On("Refresh", mock.Anything, "refresh-jwt").Return(testTokens, nil)

	rec := ts.do(http.MethodPost, "/auth/refresh", "", `{"refresh_token":"refresh-jwt"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "access", decodeBody[domain.TokenPair](t, rec).AccessToken)
}

func TestRefresh_MissingToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/auth/refresh", "", `{}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeError(t, rec).Fields, "refresh_token")
}

func TestRefresh_Rejected(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.On("Refresh", mock.Anything, "used").Return(nil, apperrors.Unauthorized("invalid refresh token"))

	rec := ts.do(http.MethodPost, "/auth/refresh", "", `{"refresh_token":"used"}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// --- VerifyEmail ---

func TestVerifyEmail_Success(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.On("VerifyEmail", mock.Anything, "tok").Return(service.DetailEmailVerified, nil)

	rec := ts.do(http.MethodGet, "/auth/verify-email?token=tok", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"detail":"email verified"}`, rec.Body.String())
}

func TestVerifyEmail_MissingToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/auth/verify-email", "", "")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeError(t, rec).Fields, "token")
}

func TestVerifyEmail_UnknownToken(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.On("VerifyEmail", mock.Anything, "bogus").Return("", apperrors.InvalidInput("invalid verification token"))

	rec := ts.do(http.MethodGet, "/auth/verify-email?token=bogus", "", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Password reset ---

func TestRequestPasswordReset_SameResponse(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.On("RequestPasswordReset", mock.Anything, "alice@example.com").Return(nil)
	ts.auth.On("RequestPasswordReset", mock.Anything, "ghost@example.com").Return(nil)

	known := ts.do(http.MethodPost, "/auth/request-password-reset", "", `{"email":"alice@example.com"}`)
	unknown := ts.do(http.MethodPost, "/auth/request-password-reset", "", `{"email":"ghost@example.com"}`)

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, known.Code, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
}

func TestRequestPasswordReset_InvalidEmail(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/auth/request-password-reset", "", `{"email":"nope"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestResetPassword_Success(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.On("ResetPassword", mock.Anything, "reset-tok", "newsecret").Return(nil)

	rec := ts.do(http.MethodPost, "/auth/reset-password", "", `{"token":"reset-tok","new_password":"newsecret"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"detail":"password has been reset"}`, rec.Body.String())
}

func TestResetPassword_ExpiredToken(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.On("ResetPassword", mock.Anything, "old", "newsecret").
		Return(apperrors.InvalidInput("reset token has expired"))

	rec := ts.do(http.MethodPost, "/auth/reset-password", "", `{"token":"old","new_password":"newsecret"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "reset token has expired", decodeError(t, rec).Detail)
}

func TestResetPassword_ShortPassword(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/auth/reset-password", "", `{"token":"t","new_password":"123"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decodeError(t, rec).Fields, "new_password")
}

// --- UploadAvatar ---

func avatarRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "avatar.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/auth/upload-avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+validToken)
	return req
}

func TestUploadAvatar_Success(t *testing.T) {
	ts := newTestServer(t)
	png := []byte("\x89PNG\r\n\x1a\n rest of image")
	avatarURL := "http://localhost:8000/media/avatars/7/x.png"
	updated := testUser()
	updated.AvatarURL = &avatarURL
	ts.auth.On("UploadAvatar", mock.Anything, testUserID, png).Return(updated, nil)

	rec := ts.serve(avatarRequest(t, "file", png))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, avatarURL, decodeBody[map[string]any](t, rec)["avatar_url"])
}

func TestUploadAvatar_MissingFile(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.serve(avatarRequest(t, "other", []byte("data")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "file is required", decodeError(t, rec).Detail)
}

func TestUploadAvatar_UnsupportedType(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.On("UploadAvatar", mock.Anything, testUserID, mock.Anything).
		Return(nil, apperrors.InvalidInput("only JPEG and PNG images are supported"))

	rec := ts.serve(avatarRequest(t, "file", []byte("plain text")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadAvatar_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	req := avatarRequest(t, "file", []byte("data"))
	req.Header.Del("Authorization")

	rec := ts.serve(req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
