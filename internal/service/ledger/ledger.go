package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/repository"
)

// Read side of wallets and their ledger
type Service struct {
	storage repository.Storage
}

func NewService(storage repository.Storage) *Service {
	return &Service{storage: storage}
}

// Wallet of the account, created on first access
func (s *Service) Wallet(ctx context.Context, accountID uuid.UUID) (models.Wallet, error) {
	return s.storage.Wallet().GetOrCreate(ctx, accountID)
}

func (s *Service) History(ctx context.Context, accountID uuid.UUID, opts repository.ListTransactionsOpts) ([]models.LedgerTransaction, error) {
	return s.storage.Ledger().List(ctx, accountID, opts)
}

// Reconcile recomputes total and pending balances from ledger records
func (s *Service) Reconcile(ctx context.Context, accountID uuid.UUID) (models.Reconciliation, error) {
	var r models.Reconciliation

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		wallet, err := storage.Wallet().GetOrCreate(ctx, accountID)
		if err != nil {
			return err
		}

		totals, err := storage.Ledger().Totals(ctx, accountID)
		if err != nil {
			return err
		}

		r = models.Reconciliation{
			AccountID:       accountID,
			Wallet:          wallet,
			ExpectedTotal:   totals.Balance,
			ExpectedPending: totals.PendingCommission,
		}
		return nil
	})

	return r, err
}
