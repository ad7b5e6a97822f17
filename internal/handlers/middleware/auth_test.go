package middleware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/handlers/adminctx"
	"github.com/nkiryanov/refledger/internal/models"
)

// Allow to use a function as auth service
type authFunc func(ctx context.Context, r *http.Request) (models.Admin, error)

func (f authFunc) GetAdminFromRequest(ctx context.Context, r *http.Request) (models.Admin, error) {
	return f(ctx, r)
}

func TestAuthMiddleware(t *testing.T) {
	var warned []string
	l := loggerFunc(func(m string, _ ...any) { warned = append(warned, m) })

	// Simple handler that try to get admin from context
	// If ok write its username to response
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Must always be true cause middleware has to set admin to context or write error to response
		admin, ok := adminctx.FromContext(r.Context())
		require.True(t, ok)

		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte(admin.Username))
		require.NoError(t, err, "should write username to response")
	})

	t.Run("auth ok", func(t *testing.T) {
		// Middleware that always return ok
		middleware := AuthMiddleware(authFunc(func(ctx context.Context, r *http.Request) (models.Admin, error) {
			return models.Admin{Username: "operator"}, nil
		}), l)

		srv := httptest.NewServer(middleware(handler))
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/test")
		require.NoError(t, err, "should make request to test server")
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err, "should read response body")
		defer resp.Body.Close() // nolint:errcheck

		require.Equalf(t, http.StatusOK, resp.StatusCode, "should return status OK. Resp: %s", string(body))
		require.Equal(t, "operator", string(body), "should return username in response")
	})

	t.Run("auth fail", func(t *testing.T) {
		// Middleware that always fails
		middleware := AuthMiddleware(authFunc(func(ctx context.Context, r *http.Request) (models.Admin, error) {
			return models.Admin{}, fmt.Errorf("%w: token is expired", apperrors.ErrAccessTokenInvalid)
		}), l)

		srv := httptest.NewServer(middleware(handler))
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/test")
		require.NoError(t, err, "should make request to test server")
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err, "should read response body")
		defer resp.Body.Close() // nolint:errcheck

		require.Equalf(t, http.StatusUnauthorized, resp.StatusCode, "should return status Unauthorized. Resp: %s", string(body))
		require.Equal(t, `Bearer realm="refledger-admin"`, resp.Header.Get("WWW-Authenticate"))
		require.JSONEq(t,
			`{
				"error": "service_error",
				"message": "Unauthorized"
			}`,
			string(body),
		)
	})

	t.Run("auth check fail", func(t *testing.T) {
		// Storage is down: not a client problem
		middleware := AuthMiddleware(authFunc(func(ctx context.Context, r *http.Request) (models.Admin, error) {
			return models.Admin{}, errors.New("db error: connection refused")
		}), l)

		srv := httptest.NewServer(middleware(handler))
		defer srv.Close()

		resp, err := http.Get(srv.URL + "/test")
		require.NoError(t, err, "should make request to test server")
		defer resp.Body.Close() // nolint:errcheck

		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		require.Empty(t, resp.Header.Get("WWW-Authenticate"))
		require.Equal(t, []string{"WARN Failed to authenticate admin"}, warned, "unexpected error should be logged")
	})
}
