package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/NeFoRMaLiK-pixel/upcontacts/pkg/errors"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/httputil"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/logger"
)

type contextKeyType string

const principalKey contextKeyType = "principal"

// unauthorizedDetail is the single message returned for every rejected token,
// so callers cannot tell a malformed header from an expired or revoked token.
const unauthorizedDetail = "could not validate credentials"

// Principal identifies the authenticated caller of a request.
type Principal struct {
	UserID int64
	Email  string
}

// Authenticator resolves a bearer token into the caller's identity. It returns
// a context derived from ctx that carries the identity (see WithPrincipal) and
// anything else the application wants handlers to see. Rejected tokens must be
// reported with an error wrapping apperrors.ErrUnauthorized; any other error is
// treated as a server failure.
type Authenticator func(ctx context.Context, token string) (context.Context, error)

// Auth rejects requests without a valid bearer token with 401 before any
// downstream handler runs. Authenticator failures that are not
// ErrUnauthorized are written through httputil.WriteError. On success the request continues with the context
// returned by authn, and the request-scoped logger is re-enriched with user_id.
func Auth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				writeUnauthorized(w, r)
				return
			}

			ctx, err := authn(r.Context(), token)
			if err != nil {
				if !errors.Is(err, apperrors.ErrUnauthorized) {
					httputil.WriteError(w, r, err, nil)
					return
				}
				logger.FromContext(r.Context()).DebugContext(r.Context(), "bearer token rejected",
					"error", err.Error(),
				)
				writeUnauthorized(w, r)
				return
			}

			if p, ok := PrincipalFromContext(ctx); ok {
				ctx = logger.WithUserID(ctx, p.UserID)
				ctx = logger.NewContext(ctx, logger.FromContext(ctx).With("user_id", p.UserID))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the caller identity stored by WithPrincipal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// UserIDFromContext returns the authenticated user's id, or 0 outside Auth.
func UserIDFromContext(ctx context.Context) int64 {
	p, _ := PrincipalFromContext(ctx)
	return p.UserID
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	httputil.WriteError(w, r, apperrors.Unauthorized(unauthorizedDetail), nil)
}
