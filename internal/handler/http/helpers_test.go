package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/domain"
	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/service"
	apperrors "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/errors"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/health"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/httputil"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/middleware"
)

const (
	validToken = "valid-access-token"
	testUserID = int64(7)
)

// ============================================================================
// Mock Services
// ============================================================================

type mockAuthService struct {
	mock.Mock
}

func (m *mockAuthService) Register(ctx context.Context, input service.RegisterInput) (*domain.User, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*domain.TokenPair, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenPair), args.Error(1)
}

// Authenticate accepts validToken without a recorded expectation so every
// test can use authenticated routes.
func (m *mockAuthService) Authenticate(_ context.Context, accessToken string) (*domain.User, error) {
	if accessToken == validToken {
		return testUser(), nil
	}
	return nil, apperrors.Unauthorized("could not validate credentials")
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TokenPair), args.Error(1)
}

func (m *mockAuthService) VerifyEmail(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

func (m *mockAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *mockAuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	return m.Called(ctx, token, newPassword).Error(0)
}

func (m *mockAuthService) UploadAvatar(ctx context.Context, userID int64, data []byte) (*domain.User, error) {
	args := m.Called(ctx, userID, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

type mockContactService struct {
	mock.Mock
}

func (m *mockContactService) Create(ctx context.Context, userID int64, input service.CreateContactInput) (*domain.Contact, error) {
	args := m.Called(ctx, userID, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contact), args.Error(1)
}

func (m *mockContactService) List(ctx context.Context, userID int64) ([]domain.Contact, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Contact), args.Error(1)
}

func (m *mockContactService) Get(ctx context.Context, userID, id int64) (*domain.Contact, error) {
	args := m.Called(ctx, userID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contact), args.Error(1)
}

func (m *mockContactService) Update(ctx context.Context, userID, id int64, patch domain.ContactPatch) (*domain.Contact, error) {
	args := m.Called(ctx, userID, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Contact), args.Error(1)
}

func (m *mockContactService) Delete(ctx context.Context, userID, id int64) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (m *mockContactService) Search(ctx context.Context, userID int64, query string) ([]domain.Contact, error) {
	args := m.Called(ctx, userID, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Contact), args.Error(1)
}

// ============================================================================
// Fixtures
// ============================================================================

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error { return p.err }

type testServer struct {
	handler  http.Handler
	auth     *mockAuthService
	contacts *mockContactService
}

func newTestServer(t *testing.T, opts ...func(*RouterConfig)) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ts := &testServer{auth: &mockAuthService{}, contacts: &mockContactService{}}
	cfg := RouterConfig{
		ServiceName:   "upcontacts-test",
		Auth:          ts.auth,
		Contacts:      ts.contacts,
		Health:        health.NewHandler(),
		CORS:          middleware.DefaultCORSConfig(),
		ContactCreate: middleware.RateLimitConfig{Name: "contact_create_test", Requests: 100, Period: time.Minute},
		Logger:        testLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	ts.handler = NewRouter(ctx, cfg)

	t.Cleanup(func() {
		ts.auth.AssertExpectations(t)
		ts.contacts.AssertExpectations(t)
	})
	return ts
}

// do sends a request with an optional bearer token and JSON body.
func (ts *testServer) do(method, target, token, body string) *httptest.ResponseRecorder {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testUser() *domain.User {
	return &domain.User{
		ID:        testUserID,
		Email:     "alice@example.com",
		CreatedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func testContact() *domain.Contact {
	return &domain.Contact{
		ID:       1,
		UserID:   testUserID,
		Name:     "John",
		Surname:  "Doe",
		Email:    "john@example.com",
		Phone:    "+380501234567",
		Birthday: domain.NewDate(time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)),
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var resp httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}
