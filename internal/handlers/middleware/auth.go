package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/handlers/adminctx"
	"github.com/nkiryanov/refledger/internal/handlers/render"
	"github.com/nkiryanov/refledger/internal/models"
)

type authService interface {
	GetAdminFromRequest(ctx context.Context, r *http.Request) (models.Admin, error)
}

// AuthMiddleware lets through requests of authenticated admins only and puts the admin to context.
// Missing or invalid token is answered with 401 and Bearer challenge, failure to check it with 500.
func AuthMiddleware(as authService, l logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin, err := as.GetAdminFromRequest(r.Context(), r)
			switch {
			case errors.Is(err, apperrors.ErrAccessTokenInvalid):
				w.Header().Set("WWW-Authenticate", `Bearer realm="refledger-admin"`)
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			case err != nil:
				l.Warn("Failed to authenticate admin", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			next.ServeHTTP(w, r.WithContext(adminctx.New(r.Context(), admin)))
		})
	}
}
