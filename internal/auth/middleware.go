package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/strefethen/yamaha-remote-go/internal/api"
	"github.com/strefethen/yamaha-remote-go/internal/apperrors"
	"github.com/strefethen/yamaha-remote-go/internal/config"
)

var publicPrefixes = []string{
	"/v1/health",
	"/v1/openapi",
}

// queryTokenRoutes accept the token as ?access_token=, since browsers cannot
// set headers on a WebSocket handshake.
var queryTokenRoutes = map[string]struct{}{
	"/v1/events": {},
}

// Middleware validates bearer tokens when JWT_SECRET is configured and is a
// pass-through otherwise.
func Middleware(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.AuthEnabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicRoute(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			token, err := bearerToken(r)
			if err != nil {
				api.WriteError(w, r, err)
				return
			}

			payload, verifyErr := VerifyToken(cfg, token)
			if errors.Is(verifyErr, ErrTokenExpired) {
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Token has expired", apperrors.ErrorCodeAuthTokenExpired))
				return
			}
			if verifyErr != nil {
				api.WriteError(w, r, apperrors.NewUnauthorizedError("Invalid token", apperrors.ErrorCodeAuthTokenInvalid))
				return
			}

			user := User{Sub: payload.Sub, DeviceName: payload.DeviceName}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if _, ok := queryTokenRoutes[r.URL.Path]; ok {
			if token := r.URL.Query().Get("access_token"); token != "" {
				return token, nil
			}
		}
		return "", apperrors.NewUnauthorizedError("Missing Authorization header")
	}

	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		return "", apperrors.NewUnauthorizedError("Invalid Authorization header format")
	}
	return token, nil
}

func isPublicRoute(path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
