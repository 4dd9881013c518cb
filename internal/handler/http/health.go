package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/errors"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/httputil"
)

const redisPingTimeout = 2 * time.Second

// Redis connection states reported by GET /health.
const (
	RedisConnected    = "connected"
	RedisDisconnected = "disconnected"
	RedisDisabled     = "disabled"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// IndexResponse is the body of GET /.
type IndexResponse struct {
	Message string `json:"message"`
	Health  string `json:"health"`
}

// StatusResponse is the body of GET /health.
type StatusResponse struct {
	Status string `json:"status"`
	Redis  string `json:"redis"`
}

// Index handles GET /
func Index(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, IndexResponse{Message: "Contact Book API", Health: "/health"})
}

// Status handles GET /health. The API stays up without Redis, so the cache
// state is reported but never fails the request. A nil redis means the cache
// is disabled.
func Status(redis Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := RedisDisabled
		if redis != nil {
			ctx, cancel := context.WithTimeout(r.Context(), redisPingTimeout)
			defer cancel()
			state = RedisConnected
			if err := redis.Ping(ctx); err != nil {
				state = RedisDisconnected
			}
		}
		httputil.WriteJSON(w, http.StatusOK, StatusResponse{Status: "ok", Redis: state})
	}
}

// MediaSource serves files kept by the in-memory avatar store.
type MediaSource interface {
	Get(key string) ([]byte, string, bool)
}

// Media handles GET /media/*
func Media(src MediaSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimPrefix(r.URL.Path, "/media/")
		data, contentType, ok := src.Get(key)
		if !ok {
			httputil.WriteError(w, r, apperrors.NotFound("file", key), nil)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "public, max-age=86400")
		_, _ = w.Write(data)
	}
}
