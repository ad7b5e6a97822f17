package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/logger"
	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/repository"
	"github.com/nkiryanov/refledger/internal/service/referral"
)

// Attempts to pick free referral code before giving up
const codeAttempts = 5

type RegisterParams struct {
	ExternalID   string
	Username     string
	ReferralCode string // code of the referrer, optional
}

type Service struct {
	storage repository.Storage
	logger  logger.Logger
}

func NewService(storage repository.Storage, logger logger.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
	}
}

// Register creates account with its wallet and attributes it to the referrer.
// Registering known external id returns the existing account as is.
func (s *Service) Register(ctx context.Context, p RegisterParams) (models.Account, error) {
	var account models.Account

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		existing, err := storage.Account().GetByExternalID(ctx, p.ExternalID)
		switch {
		case err == nil:
			account = existing
			return nil
		case !errors.Is(err, apperrors.ErrAccountNotFound):
			return err
		}

		account, err = create(ctx, storage, p)
		if err != nil {
			return err
		}

		if _, err := storage.Wallet().GetOrCreate(ctx, account.ID); err != nil {
			return fmt.Errorf("can't create wallet. Err: %w", err)
		}

		account, err = referral.RecordSignup(ctx, storage, account, p.ReferralCode)
		switch {
		case errors.Is(err, apperrors.ErrReferrerNotFound):
			s.logger.Warn("Referral code not found, signup without referrer", "external_id", p.ExternalID, "code", p.ReferralCode)
		case err != nil:
			return err
		}

		return nil
	})

	// Concurrent registration of the same external id won
	if errors.Is(err, apperrors.ErrAccountAlreadyExists) {
		return s.storage.Account().GetByExternalID(ctx, p.ExternalID)
	}

	return account, err
}

// Create account retrying on referral code collision.
// Every attempt runs in its own savepoint, so failed insert does not abort the transaction.
func create(ctx context.Context, storage repository.Storage, p RegisterParams) (models.Account, error) {
	var account models.Account

	for range codeAttempts {
		code, err := NewReferralCode(p.ExternalID)
		if err != nil {
			return account, err
		}

		err = storage.InTx(ctx, func(storage repository.Storage) error {
			account, err = storage.Account().Create(ctx, models.Account{
				ExternalID:   p.ExternalID,
				Username:     p.Username,
				ReferralCode: code,
			})
			return err
		})
		if !errors.Is(err, apperrors.ErrReferralCodeTaken) {
			return account, err
		}
	}

	return account, apperrors.ErrReferralCodeTaken
}

// NewReferralCode returns REF, the external id padded to 6 digits and 4 random upper hex chars
func NewReferralCode(externalID string) (string, error) {
	b := make([]byte, 2)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error while generate referral code. Err: %w", err)
	}

	padded := externalID
	if len(padded) < 6 {
		padded = strings.Repeat("0", 6-len(padded)) + padded
	}

	return "REF" + padded + strings.ToUpper(hex.EncodeToString(b)), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return s.storage.Account().GetByID(ctx, id)
}

func (s *Service) GetByExternalID(ctx context.Context, externalID string) (models.Account, error) {
	return s.storage.Account().GetByExternalID(ctx, externalID)
}
