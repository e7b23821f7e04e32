package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"detectserver/internal/logger"
	"detectserver/internal/model"
	"detectserver/internal/repository"
	"detectserver/internal/service/auth"
)

type userKey struct{}

// publicPaths are reachable without a token.
var publicPaths = map[string]bool{
	"/login":    true,
	"/register": true,
	"/logout":   true,
	"/health":   true,
}

// WithUser stores the authenticated user on ctx.
func WithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the user placed by AuthMiddleware.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userKey{}).(*model.User)
	return user, ok && user != nil
}

// TokenFromRequest reads "Bearer <token>" from the auth cookie, falling back
// to the Authorization header.
func TokenFromRequest(r *http.Request) string {
	value := ""
	if cookie, err := r.Cookie(auth.CookieName); err == nil {
		value = cookie.Value
	} else {
		value = r.Header.Get("Authorization")
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(value), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// AuthMiddleware resolves the token to a user and rejects the request with 401
// when that fails. Public paths pass through untouched.
func AuthMiddleware(issuer *auth.TokenIssuer, users repository.UserRepository, logger *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token := TokenFromRequest(r)
			if token == "" {
				unauthorized(w)
				return
			}
			username, err := issuer.Parse(token)
			if err != nil {
				unauthorized(w)
				return
			}
			user, err := users.GetByUsername(r.Context(), username)
			if err != nil {
				logger.Warning("Token for unknown user %q: %v", username, err)
				unauthorized(w)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"detail": auth.ErrInvalidToken.Error()})
}
