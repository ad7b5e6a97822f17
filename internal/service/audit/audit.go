package audit

import (
	"context"
	"time"

	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/repository"
)

// Service reads the admin audit trail and dashboard numbers.
// Mutations record their own actions inside their transactions; Record is for actions without one.
type Service struct {
	storage repository.Storage
	now     func() time.Time
}

func NewService(storage repository.Storage) *Service {
	return &Service{storage: storage, now: time.Now}
}

func (s *Service) Record(ctx context.Context, action models.AdminAction) (models.AdminAction, error) {
	if action.CreatedAt.IsZero() {
		action.CreatedAt = s.now()
	}
	return s.storage.Audit().Record(ctx, action)
}

func (s *Service) List(ctx context.Context, opts repository.ListAdminActionsOpts) ([]models.AdminAction, error) {
	return s.storage.Audit().List(ctx, opts)
}

func (s *Service) Dashboard(ctx context.Context) (models.DashboardStats, error) {
	return s.storage.Audit().Dashboard(ctx)
}
