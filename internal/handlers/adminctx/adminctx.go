package adminctx

import (
	"context"

	"github.com/nkiryanov/refledger/internal/models"
)

type ctxKey string

const adminKey ctxKey = "admin"

// Create a new context with the authenticated admin
func New(ctx context.Context, a models.Admin) context.Context {
	return context.WithValue(ctx, adminKey, a)
}

// Extract the admin from the context
func FromContext(ctx context.Context) (models.Admin, bool) {
	a, ok := ctx.Value(adminKey).(models.Admin)
	return a, ok
}
