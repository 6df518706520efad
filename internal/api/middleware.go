package api

import (
	"context"
	"net/http"

	"github.com/ttaflutter/game-plus/internal/utils"
)

type ctxKey int

const userIDKey ctxKey = iota

// UserFrom returns the authenticated user id stored by RequireAuth.
func UserFrom(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(userIDKey).(uint)
	return id, ok
}

// RequireAuth rejects requests without a valid bearer token and stores the
// user id on the request context.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := utils.VerifyRequest(r, secret)
			if err != nil {
				utils.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
