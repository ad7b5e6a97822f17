package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/handlers/adminctx"
	"github.com/nkiryanov/refledger/internal/handlers/render"
	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/models"
)

type authResponse struct {
	Message         string     `json:"message"`
	AccessExpiresAt *time.Time `json:"access_expires_at,omitempty"`
}

func issued(w http.ResponseWriter, auth authService, pair models.TokenPair, message string) {
	auth.SetTokenPairToResponse(w, pair)
	render.JSON(w, authResponse{Message: message, AccessExpiresAt: &pair.Access.ExpiresAt})
}

// Admins are created by other admins; the first one comes from configuration
func handleAdminRegister(auth authService, l logger.Logger) http.Handler {
	type request struct {
		Login    string `json:"login" validate:"required,min=2,max=50"`
		Password string `json:"password" validate:"required,min=8"`
	}
	type response struct {
		ID       uuid.UUID `json:"id"`
		Username string    `json:"username"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creator, _ := adminctx.FromContext(r.Context())

		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		admin, err := auth.CreateAdmin(r.Context(), creator.ID, data.Login, data.Password)
		if err != nil {
			serviceError(w, err, l, "Failed to register admin")
			return
		}

		l.Info("Admin registered", "username", admin.Username, "created_by", creator.ID)
		render.JSONWithStatus(w, response{ID: admin.ID, Username: admin.Username}, http.StatusCreated)
	})
}

func handleAdminLogin(auth authService, l logger.Logger) http.Handler {
	type request struct {
		Login    string `json:"login" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := auth.Login(r.Context(), data.Login, data.Password)
		if err != nil {
			if errors.Is(err, apperrors.ErrAdminNotFound) {
				l.Warn("Admin login rejected", "username", data.Login, "remote_addr", r.RemoteAddr)
			}
			serviceError(w, err, l, "Failed to login admin")
			return
		}

		issued(w, auth, pair, "Admin logged in successfully")
	})
}

func handleAdminRefresh(auth authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := auth.GetRefreshString(r)
		if err != nil {
			serviceError(w, err, l, "Failed to read refresh token")
			return
		}

		pair, err := auth.RefreshPair(r.Context(), refresh)
		if err != nil {
			serviceError(w, err, l, "Failed to refresh tokens")
			return
		}

		issued(w, auth, pair, "Tokens refreshed successfully")
	})
}

func handleAdminLogout(auth authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, _ := adminctx.FromContext(r.Context())

		if err := auth.Logout(r.Context(), admin.ID); err != nil {
			serviceError(w, err, l, "Failed to logout admin")
			return
		}

		auth.ClearTokens(w)
		l.Info("Admin logged out", "admin_id", admin.ID)
		render.JSON(w, authResponse{Message: "Logged out"})
	})
}

func handleAdminMe() http.Handler {
	type response struct {
		ID       uuid.UUID `json:"id"`
		Username string    `json:"username"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, _ := adminctx.FromContext(r.Context())
		render.JSON(w, response{ID: admin.ID, Username: admin.Username})
	})
}

// Release matured commissions right away without waiting for the scheduler
func handleRelease(commissions commissionService, audit auditService, l logger.Logger) http.Handler {
	type response struct {
		Released int `json:"released"`
		Skipped  int `json:"skipped"`
		Failed   int `json:"failed"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, _ := adminctx.FromContext(r.Context())

		report, err := commissions.Release(r.Context(), time.Now())
		if err != nil {
			serviceError(w, err, l, "Failed to release commissions")
			return
		}

		// Every credit is released in its own transaction, so the run is recorded after it
		_, err = audit.Record(r.Context(), models.AdminAction{
			AdminID:    admin.ID,
			Action:     models.AdminActionReleaseCommission,
			TargetType: models.AuditTargetCommission,
			Details: map[string]string{
				"released": strconv.Itoa(report.Released),
				"skipped":  strconv.Itoa(report.Skipped),
				"failed":   strconv.Itoa(report.Failed),
			},
		})
		if err != nil {
			l.Error("Failed to record admin action", "error", err, "admin_id", admin.ID, "action", models.AdminActionReleaseCommission)
		}

		render.JSON(w, response{Released: report.Released, Skipped: report.Skipped, Failed: report.Failed})
	})
}
