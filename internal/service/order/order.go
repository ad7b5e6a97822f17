package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/metrics"
	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/repository"
	"github.com/nkiryanov/refledger/internal/service/commission"
	"github.com/nkiryanov/refledger/internal/service/ledger"
)

type Refund struct {
	Order models.Order

	// Compensating deductions of every reversed commission
	Reversals []models.LedgerTransaction

	// Wallet refund of wallet-paid order
	WalletRefund *models.LedgerTransaction
}

type OrderService struct {
	storage repository.Storage
	engine  *commission.Engine
	logger  logger.Logger

	now func() time.Time
}

func NewService(storage repository.Storage, engine *commission.Engine, logger logger.Logger) *OrderService {
	return &OrderService{
		storage: storage,
		engine:  engine,
		logger:  logger,
		now:     time.Now,
	}
}

// Create pending order. Wallet payments never earn commission
func (s *OrderService) Create(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, isWalletPayment bool) (models.Order, error) {
	if !amount.IsPositive() {
		return models.Order{}, apperrors.ErrInvalidAmount
	}

	now := s.now()
	publicID, err := models.NewPublicID(models.OrderIDPrefix, now)
	if err != nil {
		return models.Order{}, err
	}

	return s.storage.Order().Create(ctx, models.Order{
		PublicID:           publicID,
		AccountID:          accountID,
		Amount:             amount,
		Status:             models.OrderStatusPending,
		IsWalletPayment:    isWalletPayment,
		CommissionEligible: !isWalletPayment,
		CreatedAt:          now,
	})
}

func (s *OrderService) Get(ctx context.Context, publicID string) (models.Order, error) {
	return s.storage.Order().GetByPublicID(ctx, publicID, false)
}

// PaymentSucceeded marks order paid and credits referral commissions.
// Repeated call for the successful order only retries the commission step which is idempotent.
func (s *OrderService) PaymentSucceeded(ctx context.Context, publicID string) (models.Order, error) {
	var (
		order models.Order
		res   commission.Result
	)

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		var err error
		order, err = storage.Order().GetByPublicID(ctx, publicID, true)
		if err != nil {
			return err
		}

		switch order.Status {
		case models.OrderStatusSuccess:
			s.logger.Debug("Order paid already", "order", order.PublicID)

		case models.OrderStatusPending:
			order, err = storage.Order().SetStatus(ctx, order.ID, models.OrderStatusSuccess, s.now())
			if err != nil {
				return err
			}
			if err := storage.Account().AddSpend(ctx, order.AccountID, order.Amount, 1); err != nil {
				return err
			}

			if order.IsWalletPayment {
				_, err := ledger.NewBook(storage).Debit(ctx, order.AccountID, order.Amount, ledger.Entry{
					OrderID:     &order.ID,
					Description: "Payment for order " + order.PublicID,
				})
				if err != nil {
					return err
				}
			}

		default:
			return apperrors.ErrOrderNotPayable
		}

		res, err = s.engine.ProcessInTx(ctx, storage, order.CommissionEvent())
		return err
	})
	if err != nil {
		return models.Order{}, err
	}

	s.engine.Notify(ctx, res)
	return order, nil
}

// Refund reverses every commission paid for the order.
// Wallet-paid order gets its amount back to the wallet.
// The refund is recorded as action of the admin in the same transaction.
func (s *OrderService) Refund(ctx context.Context, publicID string, adminID uuid.UUID) (Refund, error) {
	var refund Refund

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		order, err := storage.Order().GetByPublicID(ctx, publicID, true)
		if err != nil {
			return err
		}

		switch order.Status {
		case models.OrderStatusSuccess:
		case models.OrderStatusRefunded:
			return apperrors.ErrAlreadyRefunded
		default:
			return apperrors.ErrOrderNotRefundable
		}

		now := s.now()
		refund.Order, err = storage.Order().SetStatus(ctx, order.ID, models.OrderStatusRefunded, now)
		if err != nil {
			return err
		}
		if err := storage.Account().AddSpend(ctx, order.AccountID, order.Amount.Neg(), -1); err != nil {
			return err
		}

		// Credits are locked before any wallet: a release in flight finishes first and its status is seen here
		credits, err := storage.Ledger().LockByOrder(ctx, order.ID, models.TransactionKindCommissionCredit)
		if err != nil {
			return err
		}

		book := ledger.NewBook(storage)
		for _, credit := range credits {
			if credit.Status == models.TransactionStatusCancelled {
				continue
			}

			deduction, err := book.ReverseCommission(ctx, credit.ID, ledger.Entry{
				OrderID:       &order.ID,
				ReferralLevel: credit.ReferralLevel,
				Description:   "Commission reversed for refunded order " + order.PublicID,
			})
			if errors.Is(err, apperrors.ErrInsufficientFunds) {
				s.logger.Error("Commission can't be reversed, wallet has not enough funds",
					"order", order.PublicID,
					"account_id", credit.AccountID,
					"transaction_id", credit.ID,
					"amount", credit.Amount,
				)
				return err
			}
			if err != nil {
				return fmt.Errorf("can't reverse commission %s. Err: %w", credit.ID, err)
			}

			refund.Reversals = append(refund.Reversals, deduction)
		}

		if order.IsWalletPayment {
			tx, err := book.Refund(ctx, order.AccountID, order.Amount, ledger.Entry{
				OrderID:     &order.ID,
				Description: "Refund for order " + order.PublicID,
			})
			if err != nil {
				return err
			}
			refund.WalletRefund = &tx
		}

		reversed := decimal.Zero
		for _, tx := range refund.Reversals {
			reversed = reversed.Add(tx.Amount.Abs())
		}
		_, err = storage.Audit().Record(ctx, models.AdminAction{
			AdminID:    adminID,
			Action:     models.AdminActionRefundOrder,
			TargetType: models.AuditTargetOrder,
			TargetID:   order.PublicID,
			Details: map[string]string{
				"amount":          order.Amount.String(),
				"reversed_count":  strconv.Itoa(len(refund.Reversals)),
				"reversed_amount": reversed.String(),
			},
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("can't record admin action. Err: %w", err)
		}

		return nil
	})
	if err != nil {
		return Refund{}, err
	}

	metrics.CommissionsReversed.Add(float64(len(refund.Reversals)))
	s.logger.Info("Order refunded", "order", refund.Order.PublicID, "reversed", len(refund.Reversals), "admin_id", adminID)
	return refund, nil
}
