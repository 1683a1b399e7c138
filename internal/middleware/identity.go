package middleware

import (
	"context"
	"net/http"
	"strings"
)

const userIDKey contextKey = "user_id"

const maxUserIDLen = 128

// Identity stores the caller-supplied account identifier in the context.
// Requests without one proceed anonymously.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := strings.TrimSpace(r.Header.Get("X-User-ID"))
		if uid != "" && len(uid) <= maxUserIDLen {
			ctx := context.WithValue(r.Context(), userIDKey, uid)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// UserIDFromContext returns the account identifier, or nil for anonymous
// requests.
func UserIDFromContext(ctx context.Context) *string {
	if v, ok := ctx.Value(userIDKey).(string); ok && v != "" {
		return &v
	}
	return nil
}
