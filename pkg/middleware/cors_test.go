package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func serveCORS(cfg CORSConfig, method, origin string, preflight bool) *httptest.ResponseRecorder {
	handler := CORS(cfg)(okHandler)
	req := httptest.NewRequest(method, "/contacts/", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight {
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCORS_Wildcard(t *testing.T) {
	rec := serveCORS(DefaultCORSConfig(), http.MethodGet, "https://anything.example", false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Retry-After")
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestCORS_ListedOrigins(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"https://app.example.com", " https://admin.example.com"}}

	tests := []struct {
		origin string
		want   string
	}{
		{"https://app.example.com", "https://app.example.com"},
		{"https://admin.example.com", "https://admin.example.com"},
		{"https://evil.example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			rec := serveCORS(cfg, http.MethodGet, tt.origin, false)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "Origin", rec.Header().Get("Vary"))
		})
	}
}

func TestCORS_NoOrigin_LeavesResponseAlone(t *testing.T) {
	rec := serveCORS(DefaultCORSConfig(), http.MethodGet, "", false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Vary"))
}

func TestCORS_Preflight(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.MaxAge = 10 * time.Minute

	rec := serveCORS(cfg, http.MethodOptions, "https://app.example.com", true)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestCORS_PreflightFromDisallowedOrigin_Returns400(t *testing.T) {
	cfg := CORSConfig{AllowedOrigins: []string{"https://app.example.com"}}

	rec := serveCORS(cfg, http.MethodOptions, "https://evil.example.com", true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "CORS_ORIGIN_DENIED", decodeErrorBody(t, rec.Body).Code)
}

func TestCORS_PlainOptions_ReachesHandler(t *testing.T) {
	rec := serveCORS(DefaultCORSConfig(), http.MethodOptions, "https://app.example.com", false)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORS_CredentialsEchoOrigin(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowCredentials = true

	rec := serveCORS(cfg, http.MethodGet, "https://app.example.com", false)

	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}
