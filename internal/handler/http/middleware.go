package http

import (
	"context"
	"mime"
	"net/http"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/domain"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/httputil"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/logger"
	"github.com/NeFoRMaLiK-pixel/upcontacts/pkg/middleware"
)

type contextKey string

const userKey contextKey = "user"

// ContentTypeJSON rejects requests that declare a body type other than
// application/json. Requests without a Content-Type header pass through so
// that minimal clients still work.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "" {
			mediaType, _, err := mime.ParseMediaType(ct)
			if err != nil || mediaType != "application/json" {
				httputil.WriteJSON(w, http.StatusUnsupportedMediaType, httputil.ErrorResponse{
					Detail:    "Content-Type must be application/json",
					Code:      "UNSUPPORTED_MEDIA_TYPE",
					RequestID: logger.CorrelationIDFromContext(r.Context()),
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Authenticator bridges bearer tokens to AuthService.Authenticate. The
// resolved user is stored in the request context next to the principal.
func Authenticator(svc AuthService) middleware.Authenticator {
	return func(ctx context.Context, token string) (context.Context, error) {
		user, err := svc.Authenticate(ctx, token)
		if err != nil {
			return nil, err
		}
		ctx = middleware.WithPrincipal(ctx, middleware.Principal{UserID: user.ID, Email: user.Email})
		return context.WithValue(ctx, userKey, user), nil
	}
}

// CurrentUser returns the user resolved by the Auth middleware.
func CurrentUser(ctx context.Context) (*domain.User, bool) {
	u, ok := ctx.Value(userKey).(*domain.User)
	return u, ok && u != nil
}

func currentUserID(ctx context.Context) (int64, bool) {
	id := middleware.UserIDFromContext(ctx)
	return id, id > 0
}
