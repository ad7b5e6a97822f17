package commission

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/metrics"
	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/notify"
	"github.com/nkiryanov/refledger/internal/repository"
	"github.com/nkiryanov/refledger/internal/service/ledger"
	"github.com/nkiryanov/refledger/internal/service/referral"
)

const (
	DefaultHold      = 24 * time.Hour
	DefaultBatchSize = 100
)

type Config struct {
	Policy Policy

	// Time commission stays pending before it may be withdrawn
	Hold time.Duration

	// Count of releasable transactions fetched at once
	BatchSize int
}

type Result struct {
	Credits []models.LedgerTransaction

	// Notices to send once the transaction is committed
	Notices []notify.CommissionNotice

	// Set if the event did not qualify or was processed already
	Skipped bool

	// Set if purchaser's referrals were converted by this event
	Converted bool
}

type ReleaseReport struct {
	Released int
	Skipped  int
	Failed   int
}

type Engine struct {
	storage  repository.Storage
	cfg      Config
	notifier notify.Notifier
	logger   logger.Logger

	now func() time.Time
}

func NewEngine(storage repository.Storage, cfg Config, notifier notify.Notifier, logger logger.Logger) *Engine {
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy
	}
	if cfg.Hold <= 0 {
		cfg.Hold = DefaultHold
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}

	return &Engine{
		storage:  storage,
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Process credits commissions for the event in its own transaction and notifies referrers
func (e *Engine) Process(ctx context.Context, event models.CommissionEvent) (Result, error) {
	var res Result

	err := e.storage.InTx(ctx, func(storage repository.Storage) error {
		var err error
		res, err = e.ProcessInTx(ctx, storage, event)
		return err
	})
	if err != nil {
		return Result{}, err
	}

	e.Notify(ctx, res)
	return res, nil
}

// ProcessInTx credits commissions within the caller's transaction.
// Caller must pass the result to Notify after commit.
func (e *Engine) ProcessInTx(ctx context.Context, storage repository.Storage, event models.CommissionEvent) (Result, error) {
	var res Result
	now := e.now()

	converted, err := storage.Referral().MarkConverted(ctx, event.PurchaserID, now)
	if err != nil {
		return res, fmt.Errorf("can't mark referrals converted. Err: %w", err)
	}
	res.Converted = converted > 0

	// Wallet purchases never pay commission and do not touch the processed flag
	if event.IsWalletFunded {
		res.Skipped = true
		return res, nil
	}

	first, err := storage.Order().MarkCommissionProcessed(ctx, event.OrderID)
	if err != nil {
		return res, err
	}
	if !first {
		e.logger.Debug("Commission already processed", "order", event.OrderPublicID)
		res.Skipped = true
		return res, nil
	}

	level1, level2, err := referral.Ancestors(ctx, storage, event.PurchaserID)
	if err != nil {
		return res, err
	}

	book := ledger.NewBook(storage)
	availableAt := now.Add(e.cfg.Hold)

	for level, referrer := range []*models.Account{level1, level2} {
		if referrer == nil {
			continue
		}
		level := level + 1

		amount := e.cfg.Policy.Amount(level, event.Amount)
		if !amount.IsPositive() {
			continue
		}

		credit, err := book.CreditPending(ctx, referrer.ID, amount, availableAt, ledger.Entry{
			OrderID:       &event.OrderID,
			ReferralLevel: &level,
			Description:   fmt.Sprintf("Level %d commission from order %s", level, event.OrderPublicID),
		})
		if err != nil {
			return res, fmt.Errorf("can't credit level %d commission. Err: %w", level, err)
		}

		res.Credits = append(res.Credits, credit)
		res.Notices = append(res.Notices, notify.CommissionNotice{
			AccountID:     referrer.ID,
			ExternalID:    referrer.ExternalID,
			Level:         level,
			Amount:        amount,
			OrderPublicID: event.OrderPublicID,
			AvailableAt:   availableAt,
		})
	}

	return res, nil
}

// Notify delivers commission notices. Failures are only logged
func (e *Engine) Notify(ctx context.Context, res Result) {
	for _, n := range res.Notices {
		metrics.CommissionsCredited.WithLabelValues(strconv.Itoa(n.Level)).Inc()

		if err := e.notifier.CommissionCredited(ctx, n); err != nil {
			e.logger.Warn("Failed to notify about commission", "error", err, "account_id", n.AccountID)
		}
	}
}

// ReleaseOne releases single matured credit in its own transaction.
// Returns false if the credit was released by someone else, cancelled or is not matured yet.
func (e *Engine) ReleaseOne(ctx context.Context, txID uuid.UUID, now time.Time) (bool, error) {
	err := e.storage.InTx(ctx, func(storage repository.Storage) error {
		_, _, err := ledger.NewBook(storage).ReleasePending(ctx, txID, now)
		return err
	})

	switch {
	case err == nil:
		metrics.CommissionsReleased.WithLabelValues("released").Inc()
		return true, nil
	case errors.Is(err, apperrors.ErrTransactionNotReleasable):
		metrics.CommissionsReleased.WithLabelValues("skipped").Inc()
		return false, nil
	default:
		metrics.CommissionsReleased.WithLabelValues("failed").Inc()
		return false, err
	}
}

func (e *Engine) FindReleasable(ctx context.Context, now time.Time, after models.ReleaseCursor, limit int) ([]models.LedgerTransaction, error) {
	if limit <= 0 {
		limit = e.cfg.BatchSize
	}
	return e.storage.Ledger().FindReleasable(ctx, now, after, limit)
}

// Release walks every credit matured by now. A failed credit is logged and skipped,
// it stays pending and is picked up again by the next run.
func (e *Engine) Release(ctx context.Context, now time.Time) (ReleaseReport, error) {
	var report ReleaseReport
	start := time.Now()
	defer func() { metrics.ReleaseDuration.Observe(time.Since(start).Seconds()) }()

	cursor := models.ReleaseCursor{}
	for {
		batch, err := e.FindReleasable(ctx, now, cursor, e.cfg.BatchSize)
		if err != nil {
			return report, fmt.Errorf("can't find releasable transactions. Err: %w", err)
		}

		for _, tx := range batch {
			cursor = cursor.Next(tx)

			released, err := e.ReleaseOne(ctx, tx.ID, now)
			switch {
			case err != nil:
				report.Failed++
				e.logger.Error("Failed to release commission", "error", err, "transaction_id", tx.ID, "account_id", tx.AccountID)
			case released:
				report.Released++
			default:
				report.Skipped++
			}
		}

		if len(batch) < e.cfg.BatchSize {
			break
		}
	}

	e.logger.Info("Commission release finished", "released", report.Released, "skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}
