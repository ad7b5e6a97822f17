package handlers

import (
	"net/http"
	"strconv"

	"github.com/nkiryanov/refledger/internal/handlers/render"
	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/models"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Load account from {external_id} path value. Writes error response if not ok
func accountFromPath(w http.ResponseWriter, r *http.Request, accounts accountService, l logger.Logger) (models.Account, bool) {
	account, err := accounts.GetByExternalID(r.Context(), r.PathValue("external_id"))
	if err != nil {
		serviceError(w, err, l, "Failed to get account")
		return account, false
	}

	return account, true
}

// Read limit and offset query params. Writes error response if not ok
func pagination(w http.ResponseWriter, r *http.Request) (limit int, offset int, ok bool) {
	query := r.URL.Query()
	limit, offset = defaultPageLimit, 0

	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxPageLimit {
			render.ServiceError(w, "Invalid limit", http.StatusBadRequest)
			return 0, 0, false
		}
		limit = n
	}

	if v := query.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			render.ServiceError(w, "Invalid offset", http.StatusBadRequest)
			return 0, 0, false
		}
		offset = n
	}

	return limit, offset, true
}
