package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/metrics"
	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/notify"
	"github.com/nkiryanov/refledger/internal/repository"
	"github.com/nkiryanov/refledger/internal/service/ledger"
)

var DefaultMinAmount = decimal.NewFromInt(500)

// Payout details required by the method
type payout struct {
	Method            string `validate:"required,oneof=upi bank paytm"`
	UPIID             string `validate:"required_if=Method upi,required_if=Method paytm"`
	BankAccount       string `validate:"required_if=Method bank"`
	IFSCCode          string `validate:"required_if=Method bank"`
	AccountHolderName string `validate:"required_if=Method bank"`
}

var validate = validator.New()

type Config struct {
	MinAmount decimal.Decimal
}

type CreateParams struct {
	Amount  decimal.Decimal
	Method  string
	Details models.PayoutDetails
}

type Service struct {
	storage  repository.Storage
	cfg      Config
	notifier notify.Notifier
	logger   logger.Logger

	now func() time.Time
}

func NewService(storage repository.Storage, cfg Config, notifier notify.Notifier, logger logger.Logger) *Service {
	if cfg.MinAmount.IsZero() {
		cfg.MinAmount = DefaultMinAmount
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}

	return &Service{
		storage:  storage,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

func ValidatePayout(method string, d models.PayoutDetails) error {
	err := validate.Struct(payout{
		Method:            method,
		UPIID:             d.UPIID,
		BankAccount:       d.BankAccount,
		IFSCCode:          d.IFSCCode,
		AccountHolderName: d.AccountHolderName,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidPayoutDetails, err)
	}

	return nil
}

// Create requests payout and reserves withdrawable funds in the same transaction
func (s *Service) Create(ctx context.Context, accountID uuid.UUID, p CreateParams) (models.WithdrawalRequest, error) {
	var request models.WithdrawalRequest

	if p.Amount.LessThan(s.cfg.MinAmount) {
		return request, apperrors.ErrBelowMinimum
	}
	if err := ValidatePayout(p.Method, p.Details); err != nil {
		return request, err
	}

	now := s.now()
	publicID, err := models.NewPublicID(models.WithdrawalIDPrefix, now)
	if err != nil {
		return request, err
	}

	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		// Fast path; concurrent requests are stopped by the unique index
		pending, err := storage.Withdrawal().HasPending(ctx, accountID)
		if err != nil {
			return err
		}
		if pending {
			return apperrors.ErrPendingRequestExists
		}

		reservation, err := ledger.NewBook(storage).ReserveWithdrawable(ctx, accountID, p.Amount, ledger.Entry{
			Description: "Withdrawal request " + publicID,
		})
		if err != nil {
			return err
		}

		request, err = storage.Withdrawal().Create(ctx, models.WithdrawalRequest{
			PublicID:      publicID,
			AccountID:     accountID,
			TransactionID: &reservation.ID,
			Amount:        p.Amount,
			Method:        p.Method,
			Details:       p.Details,
			Status:        models.WithdrawalStatusPending,
			RequestedAt:   now,
		})
		return err
	})
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	s.notify(ctx, request)
	return request, nil
}

// Approve records approver. Funds stay reserved until the payout
func (s *Service) Approve(ctx context.Context, publicID string, adminID uuid.UUID, paymentReference string) (models.WithdrawalRequest, error) {
	return s.transition(ctx, publicID, nil,
		[]string{models.WithdrawalStatusPending},
		models.WithdrawalUpdate{
			Status:           models.WithdrawalStatusApproved,
			ApprovedBy:       &adminID,
			PaymentReference: paymentReference,
		},
		&models.AdminAction{
			AdminID: adminID,
			Action:  models.AdminActionApproveWithdrawal,
			Details: map[string]string{"payment_reference": paymentReference},
		},
		nil,
	)
}

// MarkPaid finalizes payout of approved or still pending request.
// Approver stays as recorded on approval; who paid is kept in the audit trail.
func (s *Service) MarkPaid(ctx context.Context, publicID string, adminID uuid.UUID, paymentReference string) (models.WithdrawalRequest, error) {
	return s.transition(ctx, publicID, nil,
		[]string{models.WithdrawalStatusPending, models.WithdrawalStatusApproved},
		models.WithdrawalUpdate{
			Status:           models.WithdrawalStatusPaid,
			PaymentReference: paymentReference,
		},
		&models.AdminAction{
			AdminID: adminID,
			Action:  models.AdminActionPayWithdrawal,
			Details: map[string]string{"payment_reference": paymentReference},
		},
		func(book *ledger.Book, r models.WithdrawalRequest) error {
			_, err := book.FinalizeWithdrawal(ctx, r.AccountID, *r.TransactionID, r.Amount)
			return err
		},
	)
}

func (s *Service) Reject(ctx context.Context, publicID string, adminID uuid.UUID, reason string) (models.WithdrawalRequest, error) {
	return s.transition(ctx, publicID, nil,
		[]string{models.WithdrawalStatusPending},
		models.WithdrawalUpdate{
			Status:          models.WithdrawalStatusRejected,
			ApprovedBy:      &adminID,
			RejectionReason: reason,
		},
		&models.AdminAction{
			AdminID: adminID,
			Action:  models.AdminActionRejectWithdrawal,
			Details: map[string]string{"reason": reason},
		},
		s.restore(ctx),
	)
}

// Cancel is allowed to the owner of the request only
func (s *Service) Cancel(ctx context.Context, publicID string, accountID uuid.UUID) (models.WithdrawalRequest, error) {
	return s.transition(ctx, publicID, &accountID,
		[]string{models.WithdrawalStatusPending},
		models.WithdrawalUpdate{Status: models.WithdrawalStatusCancelled},
		nil,
		s.restore(ctx),
	)
}

func (s *Service) restore(ctx context.Context) func(*ledger.Book, models.WithdrawalRequest) error {
	return func(book *ledger.Book, r models.WithdrawalRequest) error {
		_, err := book.RestoreWithdrawable(ctx, r.AccountID, *r.TransactionID, r.Amount)
		return err
	}
}

// Move request to the new status and apply its wallet effect atomically.
// Admin action, if any, is recorded in the same transaction.
func (s *Service) transition(
	ctx context.Context,
	publicID string,
	owner *uuid.UUID,
	from []string,
	update models.WithdrawalUpdate,
	action *models.AdminAction,
	wallet func(*ledger.Book, models.WithdrawalRequest) error,
) (models.WithdrawalRequest, error) {
	var request models.WithdrawalRequest
	update.At = s.now()

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		current, err := storage.Withdrawal().GetByPublicID(ctx, publicID)
		if err != nil {
			return err
		}
		if owner != nil && current.AccountID != *owner {
			return apperrors.ErrWithdrawalNotFound
		}

		request, err = storage.Withdrawal().Transition(ctx, current.ID, from, update)
		if err != nil {
			return err
		}

		if action != nil {
			action.TargetType = models.AuditTargetWithdrawal
			action.TargetID = request.PublicID
			action.CreatedAt = update.At
			action.Details["amount"] = request.Amount.String()
			if _, err := storage.Audit().Record(ctx, *action); err != nil {
				return fmt.Errorf("can't record admin action. Err: %w", err)
			}
		}

		if wallet == nil {
			return nil
		}
		if request.TransactionID == nil {
			return errors.New("withdrawal request has no reservation transaction")
		}
		return wallet(ledger.NewBook(storage), request)
	})
	if err != nil {
		return models.WithdrawalRequest{}, err
	}

	s.notify(ctx, request)
	return request, nil
}

func (s *Service) notify(ctx context.Context, r models.WithdrawalRequest) {
	metrics.WithdrawalTransitions.WithLabelValues(r.Status).Inc()

	account, err := s.storage.Account().GetByID(ctx, r.AccountID)
	if err != nil {
		s.logger.Warn("Failed to load account to notify", "error", err, "account_id", r.AccountID)
		return
	}

	err = s.notifier.WithdrawalStatusChanged(ctx, notify.WithdrawalNotice{
		AccountID:        r.AccountID,
		ExternalID:       account.ExternalID,
		PublicID:         r.PublicID,
		Amount:           r.Amount,
		Status:           r.Status,
		PaymentReference: r.PaymentReference,
		RejectionReason:  r.RejectionReason,
	})
	if err != nil {
		s.logger.Warn("Failed to notify about withdrawal", "error", err, "withdrawal", r.PublicID)
	}
}

func (s *Service) Get(ctx context.Context, publicID string) (models.WithdrawalRequest, error) {
	return s.storage.Withdrawal().GetByPublicID(ctx, publicID)
}

func (s *Service) ListForAccount(ctx context.Context, accountID uuid.UUID, limit int, offset int) ([]models.WithdrawalRequest, error) {
	return s.storage.Withdrawal().List(ctx, repository.ListWithdrawalsOpts{AccountID: &accountID, Limit: limit, Offset: offset})
}

func (s *Service) List(ctx context.Context, statuses []string, limit int, offset int) ([]models.WithdrawalRequest, error) {
	return s.storage.Withdrawal().List(ctx, repository.ListWithdrawalsOpts{Statuses: statuses, Limit: limit, Offset: offset})
}

func (s *Service) Statistics(ctx context.Context) ([]models.WithdrawalStat, error) {
	return s.storage.Withdrawal().Statistics(ctx)
}
