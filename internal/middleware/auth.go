package middleware

import (
	"net/http"
	"strings"

	"github.com/arrosemoi-app/server/internal/auth"
	"github.com/arrosemoi-app/server/internal/store"
)

// RequireAuth validates the Authorization bearer token and populates the
// auth context. The user must still exist; a token for a deleted account
// is rejected.
func RequireAuth(tokens *auth.Tokens, userStore *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || tokenString == "" {
				unauthorized(w)
				return
			}

			userID, err := tokens.Verify(tokenString)
			if err != nil {
				unauthorized(w)
				return
			}

			user, err := userStore.GetByID(userID)
			if err != nil || user == nil {
				unauthorized(w)
				return
			}

			ctx := auth.WithContext(r.Context(), auth.Context{
				UserID: user.ID,
				Email:  user.Email,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"authentication required"}`))
}
