package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// Middleware requires a valid "Authorization: Bearer <token>" header.
type Middleware struct {
	validator *TokenValidator
	logger    *slog.Logger
}

// NewMiddleware creates bearer token middleware.
func NewMiddleware(validator *TokenValidator, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		validator: validator,
		logger:    logger.With("component", "auth"),
	}
}

// Handle wraps an HTTP handler with token authentication.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		value, ok := bearerToken(r)
		if !ok {
			m.logger.Warn("missing admin token",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="conduit"`)
			http.Error(w, "Missing or invalid token", http.StatusUnauthorized)
			return
		}

		token, err := m.validator.Validate(value)
		if err != nil {
			m.logger.Warn("invalid admin token",
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path,
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="conduit", error="invalid_token"`)
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		m.logger.Debug("admin request authenticated", "token", token.Name, "path", r.URL.Path)
		ctx := context.WithValue(r.Context(), tokenNameKey, token.Name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

type contextKey string

// #nosec G101 - This is a context key constant, not a credential
const tokenNameKey contextKey = "admin_token_name"

// TokenName returns the name of the token that authenticated the request.
func TokenName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(tokenNameKey).(string)
	return name, ok
}
