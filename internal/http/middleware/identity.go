package middleware

import (
	"net/http"
	"strings"

	"github.com/davidbz/hearth/internal/observability"
)

// UserIDHeader names the caller identity set by the authenticating proxy.
const UserIDHeader = "X-User-Id"

// anonymousUser is recorded when no identity was forwarded.
const anonymousUser = "anonymous"

// Identity puts the caller identity into the request context. Authentication
// happens upstream; the header is trusted as-is.
func Identity() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
			if userID == "" {
				userID = anonymousUser
			}

			ctx := observability.WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
