package middleware

import (
	"encoding/json"
	"net/http"
	"slices"
)

// RequireAdmin lets the request through only when the authenticated user is
// listed in admins. Everyone else gets 403.
func RequireAdmin(admins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok || !slices.Contains(admins, user.Username) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]string{"detail": "Admin privileges required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
