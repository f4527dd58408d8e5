package backend

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
	"github.com/Avanquish/DoughNation-sub000/internal/security"
)

type contextKey string

const identityContextKey contextKey = "identity"

// WithIdentity returns a new context carrying the caller identity.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// IdentityFrom extracts the caller identity from context, if any.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(domain.Identity)
	return id, ok
}

// AuthMiddleware validates the Bearer token, records the caller and
// attaches its identity to the context.
func AuthMiddleware(tokens *security.TokenService, svc *Service, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				writeErrorMessage(w, http.StatusUnauthorized, "missing or invalid Authorization header")
				return
			}
			tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

			id, err := tokens.Verify(tokenStr)
			if err != nil {
				log.Debug("rejecting token", "error", err)
				writeErrorMessage(w, http.StatusUnauthorized, "invalid token")
				return
			}

			if err := svc.Touch(r.Context(), id, ""); err != nil {
				log.Error("record caller", "user_id", id.UserID, "error", err)
				writeErrorMessage(w, http.StatusInternalServerError, "internal error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
