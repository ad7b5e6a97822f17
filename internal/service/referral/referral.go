package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/refledger/internal/apperrors"
	"github.com/nkiryanov/refledger/internal/models"
	"github.com/nkiryanov/refledger/internal/repository"
)

const defaultLeaderboardLimit = 10

// RecordSignup attributes new account to the owner of referrerCode.
// Referrer is set only once; level 2 referral is recorded when the referrer has its own referrer.
// Unknown code returns the account unchanged with apperrors.ErrReferrerNotFound, callers may proceed without attribution.
func RecordSignup(ctx context.Context, storage repository.Storage, account models.Account, referrerCode string) (models.Account, error) {
	if referrerCode == "" {
		return account, nil
	}

	referrer, err := storage.Account().GetByReferralCode(ctx, referrerCode)
	switch {
	case errors.Is(err, apperrors.ErrAccountNotFound):
		return account, apperrors.ErrReferrerNotFound
	case err != nil:
		return account, err
	}

	// Self referral and referral by own referee would make a loop
	if referrer.ID == account.ID || (referrer.ReferredBy != nil && *referrer.ReferredBy == account.ID) {
		return account, nil
	}

	ok, err := storage.Account().SetReferrer(ctx, account.ID, referrer.ID, models.LevelDirect)
	if err != nil || !ok {
		return account, err
	}
	account.ReferredBy = &referrer.ID
	account.ReferralLevel = models.LevelDirect

	_, err = storage.Referral().Create(ctx, models.Referral{ReferrerID: referrer.ID, ReferredID: &account.ID, Level: 1})
	if err != nil {
		return account, fmt.Errorf("can't record level 1 referral. Err: %w", err)
	}

	if referrer.ReferredBy != nil {
		_, err = storage.Referral().Create(ctx, models.Referral{ReferrerID: *referrer.ReferredBy, ReferredID: &account.ID, Level: 2})
		if err != nil {
			return account, fmt.Errorf("can't record level 2 referral. Err: %w", err)
		}
	}

	return account, nil
}

// Ancestors returns direct referrer and its referrer, any of them may be nil
func Ancestors(ctx context.Context, storage repository.Storage, accountID uuid.UUID) (*models.Account, *models.Account, error) {
	account, err := storage.Account().GetByID(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	if account.ReferredBy == nil {
		return nil, nil, nil
	}

	level1, err := storage.Account().GetByID(ctx, *account.ReferredBy)
	if err != nil {
		return nil, nil, fmt.Errorf("can't get level 1 referrer. Err: %w", err)
	}
	if level1.ReferredBy == nil {
		return &level1, nil, nil
	}

	level2, err := storage.Account().GetByID(ctx, *level1.ReferredBy)
	if err != nil {
		return nil, nil, fmt.Errorf("can't get level 2 referrer. Err: %w", err)
	}

	return &level1, &level2, nil
}

// MarkConverted flips every unconverted referral of the account. Repeated calls change nothing
func MarkConverted(ctx context.Context, storage repository.Storage, accountID uuid.UUID, at time.Time) error {
	_, err := storage.Referral().MarkConverted(ctx, accountID, at)
	return err
}

// Referral analytics
type Service struct {
	storage repository.Storage
}

func NewService(storage repository.Storage) *Service {
	return &Service{storage: storage}
}

// RecordClick stores link click without signup. Returns false if code is unknown
func (s *Service) RecordClick(ctx context.Context, code string) (bool, error) {
	referrer, err := s.storage.Account().GetByReferralCode(ctx, code)
	switch {
	case errors.Is(err, apperrors.ErrAccountNotFound):
		return false, nil
	case err != nil:
		return false, err
	}

	_, err = s.storage.Referral().Create(ctx, models.Referral{ReferrerID: referrer.ID, Level: 1})
	if err != nil {
		return false, err
	}

	return true, nil
}

func (s *Service) Stats(ctx context.Context, accountID uuid.UUID) (models.ReferralStats, error) {
	stats, err := s.storage.Referral().Stats(ctx, accountID)
	if err != nil {
		return stats, err
	}

	wallet, err := s.storage.Wallet().GetOrCreate(ctx, accountID)
	if err != nil {
		return stats, err
	}

	stats.ConversionRate = decimal.Zero
	if stats.TotalReferrals > 0 {
		stats.ConversionRate = decimal.NewFromInt(int64(stats.Buyers)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(stats.TotalReferrals))).
			Round(2)
	}
	stats.CommissionEarned = wallet.TotalEarned
	stats.CommissionPaid = wallet.TotalWithdrawn
	stats.CommissionHeld = wallet.Pending

	return stats, nil
}

// Tree returns the account with its direct referrals and their referrals
func (s *Service) Tree(ctx context.Context, accountID uuid.UUID) (models.ReferralNode, error) {
	account, err := s.storage.Account().GetByID(ctx, accountID)
	if err != nil {
		return models.ReferralNode{}, err
	}

	root := models.ReferralNode{Account: account, Children: []models.ReferralNode{}}

	level1, err := s.storage.Account().ListReferred(ctx, accountID)
	if err != nil {
		return root, err
	}

	for _, child := range level1 {
		level2, err := s.storage.Account().ListReferred(ctx, child.ID)
		if err != nil {
			return root, err
		}

		node := models.ReferralNode{Account: child, Children: make([]models.ReferralNode, 0, len(level2))}
		for _, grandchild := range level2 {
			node.Children = append(node.Children, models.ReferralNode{Account: grandchild})
		}
		root.Children = append(root.Children, node)
	}

	return root, nil
}

func (s *Service) Leaderboard(ctx context.Context, limit int) ([]models.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	return s.storage.Referral().Leaderboard(ctx, limit)
}
