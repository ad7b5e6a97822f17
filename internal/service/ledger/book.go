package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/repository"
)

// Book pairs every wallet mutation with its ledger record.
// It must be bound to a transactional storage, so both writes commit or roll back together.
type Book struct {
	storage repository.Storage
	now     func() time.Time
}

func NewBook(storage repository.Storage) *Book {
	return &Book{storage: storage, now: time.Now}
}

// Optional attributes of a ledger record
type Entry struct {
	OrderID       *uuid.UUID
	ReferralLevel *int
	Description   string
}

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.ErrInvalidAmount
	}
	return nil
}

func (b *Book) record(ctx context.Context, accountID uuid.UUID, kind string, status string, amount decimal.Decimal, change models.WalletChange, e Entry, availableAt *time.Time) (models.LedgerTransaction, error) {
	tx, err := b.storage.Ledger().Create(ctx, models.LedgerTransaction{
		AccountID:     accountID,
		OrderID:       e.OrderID,
		Kind:          kind,
		Amount:        amount,
		BalanceBefore: change.Before.Total,
		BalanceAfter:  change.After.Total,
		Status:        status,
		ReferralLevel: e.ReferralLevel,
		Description:   e.Description,
		AvailableAt:   availableAt,
	})
	if err != nil {
		return tx, fmt.Errorf("can't record %s transaction. Err: %w", kind, err)
	}

	return tx, nil
}

// CreditPending credits commission on hold until availableAt
func (b *Book) CreditPending(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, availableAt time.Time, e Entry) (models.LedgerTransaction, error) {
	if err := validAmount(amount); err != nil {
		return models.LedgerTransaction{}, err
	}

	// Referrer may have never touched the wallet before
	if _, err := b.storage.Wallet().GetOrCreate(ctx, accountID); err != nil {
		return models.LedgerTransaction{}, err
	}

	change, err := b.storage.Wallet().Apply(ctx, accountID, models.WalletDelta{
		Total:       amount,
		Pending:     amount,
		TotalEarned: amount,
	}, apperrors.ErrInvalidAmount)
	if err != nil {
		return models.LedgerTransaction{}, err
	}

	return b.record(ctx, accountID, models.TransactionKindCommissionCredit, models.TransactionStatusPending, amount, change, e, &availableAt)
}

// ReleasePending completes matured commission credit and moves its amount to withdrawable.
// Returns apperrors.ErrTransactionNotReleasable if the credit was released or cancelled already.
func (b *Book) ReleasePending(ctx context.Context, txID uuid.UUID, now time.Time) (models.LedgerTransaction, models.WalletChange, error) {
	// Status flip goes first: a concurrent release of the same row blocks here and then updates nothing
	tx, err := b.storage.Ledger().Release(ctx, txID, now)
	if err != nil {
		return tx, models.WalletChange{}, err
	}

	change, err := b.storage.Wallet().Apply(ctx, tx.AccountID, models.WalletDelta{
		Pending:      tx.Amount.Neg(),
		Withdrawable: tx.Amount,
	}, apperrors.ErrInsufficientPendingBalance)
	if err != nil {
		return tx, change, err
	}

	return tx, change, nil
}

// ReserveWithdrawable moves funds out of the withdrawable pool for a withdrawal request.
// Total is unchanged until the payout, so the pending withdrawal record has equal snapshots.
func (b *Book) ReserveWithdrawable(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, e Entry) (models.LedgerTransaction, error) {
	if err := validAmount(amount); err != nil {
		return models.LedgerTransaction{}, err
	}

	change, err := b.storage.Wallet().Apply(ctx, accountID, models.WalletDelta{
		Withdrawable: amount.Neg(),
		Reserved:     amount,
	}, apperrors.ErrInsufficientWithdrawableBalance)
	if err != nil {
		return models.LedgerTransaction{}, err
	}

	return b.record(ctx, accountID, models.TransactionKindWithdrawal, models.TransactionStatusPending, amount.Neg(), change, e, nil)
}

// FinalizeWithdrawal pays out reserved funds and completes the withdrawal record
func (b *Book) FinalizeWithdrawal(ctx context.Context, accountID uuid.UUID, txID uuid.UUID, amount decimal.Decimal) (models.WalletChange, error) {
	if err := validAmount(amount); err != nil {
		return models.WalletChange{}, err
	}

	change, err := b.storage.Wallet().Apply(ctx, accountID, models.WalletDelta{
		Total:          amount.Neg(),
		Reserved:       amount.Neg(),
		TotalWithdrawn: amount,
	}, apperrors.ErrInsufficientFunds)
	if err != nil {
		return change, err
	}

	if _, err := b.storage.Ledger().MarkCompleted(ctx, txID, b.now()); err != nil {
		return change, fmt.Errorf("can't complete withdrawal transaction. Err: %w", err)
	}

	return change, nil
}

// RestoreWithdrawable returns reserved funds to the withdrawable pool and cancels the withdrawal record
func (b *Book) RestoreWithdrawable(ctx context.Context, accountID uuid.UUID, txID uuid.UUID, amount decimal.Decimal) (models.WalletChange, error) {
	if err := validAmount(amount); err != nil {
		return models.WalletChange{}, err
	}

	change, err := b.storage.Wallet().Apply(ctx, accountID, models.WalletDelta{
		Withdrawable: amount,
		Reserved:     amount.Neg(),
	}, apperrors.ErrInsufficientFunds)
	if err != nil {
		return change, err
	}

	if _, err := b.storage.Ledger().MarkCancelled(ctx, txID, b.now()); err != nil {
		return change, fmt.Errorf("can't cancel withdrawal transaction. Err: %w", err)
	}

	return change, nil
}

// ReverseCommission takes back commission credit from the partition it sits in,
// cancels the credit and records compensating deduction.
// The credit row is locked before the wallet row, the same order ReleasePending takes them in,
// so the partition is chosen from the status no concurrent release can change anymore.
func (b *Book) ReverseCommission(ctx context.Context, creditID uuid.UUID, e Entry) (models.LedgerTransaction, error) {
	credit, err := b.storage.Ledger().Lock(ctx, creditID)
	if err != nil {
		return models.LedgerTransaction{}, err
	}
	if credit.Kind != models.TransactionKindCommissionCredit || credit.Status == models.TransactionStatusCancelled {
		return models.LedgerTransaction{}, apperrors.ErrInvalidStateTransition
	}

	delta := models.WalletDelta{
		Total:       credit.Amount.Neg(),
		TotalEarned: credit.Amount.Neg(),
	}
	if credit.Status == models.TransactionStatusPending {
		delta.Pending = credit.Amount.Neg()
	} else {
		delta.Withdrawable = credit.Amount.Neg()
	}

	change, err := b.storage.Wallet().Apply(ctx, credit.AccountID, delta, apperrors.ErrInsufficientFunds)
	if err != nil {
		return models.LedgerTransaction{}, err
	}

	if _, err := b.storage.Ledger().MarkCancelled(ctx, credit.ID, b.now()); err != nil {
		return models.LedgerTransaction{}, fmt.Errorf("can't cancel commission transaction. Err: %w", err)
	}

	if e.OrderID == nil {
		e.OrderID = credit.OrderID
	}
	return b.record(ctx, credit.AccountID, models.TransactionKindDeduction, models.TransactionStatusCompleted, credit.Amount.Neg(), change, e, nil)
}

// Debit pays for a purchase from the withdrawable balance
func (b *Book) Debit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, e Entry) (models.LedgerTransaction, error) {
	if err := validAmount(amount); err != nil {
		return models.LedgerTransaction{}, err
	}

	change, err := b.storage.Wallet().Apply(ctx, accountID, models.WalletDelta{
		Total:        amount.Neg(),
		Withdrawable: amount.Neg(),
	}, apperrors.ErrInsufficientWithdrawableBalance)
	if err != nil {
		return models.LedgerTransaction{}, err
	}

	return b.record(ctx, accountID, models.TransactionKindPurchase, models.TransactionStatusCompleted, amount.Neg(), change, e, nil)
}

// Refund returns money of a refunded wallet purchase
func (b *Book) Refund(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, e Entry) (models.LedgerTransaction, error) {
	if err := validAmount(amount); err != nil {
		return models.LedgerTransaction{}, err
	}

	change, err := b.storage.Wallet().Apply(ctx, accountID, models.WalletDelta{
		Total:        amount,
		Withdrawable: amount,
	}, apperrors.ErrInvalidAmount)
	if err != nil {
		return models.LedgerTransaction{}, err
	}

	return b.record(ctx, accountID, models.TransactionKindRefund, models.TransactionStatusCompleted, amount, change, e, nil)
}
