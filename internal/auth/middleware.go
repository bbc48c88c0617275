package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/arcbridge/gatekeeper/internal/core/domain"
)

type ctxKey int

const authContextKey ctxKey = iota

// FromContext retrieves the AuthContext a successful Middleware call
// attached to the request.
func FromContext(ctx context.Context) (domain.AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey).(domain.AuthContext)
	return ac, ok
}

// Middleware bypasses exactly one path, /health, and otherwise requires a
// "Bearer <token>" Authorization header that resolves to at least one
// group; anything else is 401. The matched groups are attached to the
// request context for downstream handlers.
func Middleware(store *TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			groups := store.GroupsFor(token)
			if len(groups) == 0 {
				http.Error(w, "unknown token", http.StatusUnauthorized)
				return
			}

			ac := domain.AuthContext{Token: token, Groups: groups}
			ctx := context.WithValue(r.Context(), authContextKey, ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
