package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"voyago/internal/domain"
	"voyago/internal/models"
	"voyago/internal/repository"
)

var (
	ErrInvalidReferralCode = errors.New("referral code not found")
	ErrOwnReferralCode     = errors.New("cannot claim your own referral code")
	ErrAlreadyReferred     = errors.New("account has already claimed a referral code")
)

// ReferralService mints invite codes and pays the signup bonuses into
// the reward ledger. Bonus amounts are admin-tunable settings.
type ReferralService struct {
	referrals *repository.ReferralRepository
	rewards   *repository.RewardRepository
	settings  *repository.SettingRepository
	logger    *zap.Logger
}

func NewReferralService(
	referrals *repository.ReferralRepository,
	rewards *repository.RewardRepository,
	settings *repository.SettingRepository,
	logger *zap.Logger,
) *ReferralService {
	return &ReferralService{
		referrals: referrals,
		rewards:   rewards,
		settings:  settings,
		logger:    logger,
	}
}

// MyCode returns the caller's invite code, minting one on first call.
func (s *ReferralService) MyCode(userID uint) (*models.ReferralCode, error) {
	return s.referrals.GetOrCreateCode(userID)
}

// Claim records that the caller signed up through the given code and
// credits both sides. One claim per account; the unique index on
// referred_user_id backs the check under races.
func (s *ReferralService) Claim(userID uint, code string) (*models.Referral, error) {
	rc, err := s.referrals.GetByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidReferralCode
		}
		return nil, err
	}
	if rc.UserID == userID {
		return nil, ErrOwnReferralCode
	}
	if _, err := s.referrals.GetByReferredUserID(userID); err == nil {
		return nil, ErrAlreadyReferred
	}

	ref := &models.Referral{ReferrerID: rc.UserID, ReferredUserID: userID}
	if err := s.referrals.CreateReferral(ref); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyReferred
		}
		return nil, err
	}

	referrerBonus := s.settingAmount(domain.SettingReferralBonusReferrer, domain.DefaultReferralBonusReferrer)
	referredBonus := s.settingAmount(domain.SettingReferralBonusReferred, domain.DefaultReferralBonusReferred)
	s.payBonus(rc.UserID, referrerBonus, fmt.Sprintf("referral_%d_referrer", ref.ID))
	s.payBonus(userID, referredBonus, fmt.Sprintf("referral_%d_referred", ref.ID))
	if err := s.referrals.MarkRewarded(ref); err != nil {
		s.logger.Warn("mark referral rewarded failed", zap.Uint("referral_id", ref.ID), zap.Error(err))
	}

	s.logger.Info("referral claimed",
		zap.Uint("referrer_id", rc.UserID),
		zap.Uint("referred_id", userID),
		zap.String("code", rc.Code))
	return ref, nil
}

// ListMine returns the referrals recruited through the caller's code.
func (s *ReferralService) ListMine(userID uint, limit, offset int) ([]models.Referral, int64, error) {
	return s.referrals.ListByReferrerID(userID, limit, offset)
}

// payBonus credits a reward balance and writes the matching ledger row
// in one transaction. A nonpositive bonus (admins can zero the setting)
// skips the payout; a replayed reference is already paid and dropped.
func (s *ReferralService) payBonus(userID uint, amount decimal.Decimal, reference string) {
	if !amount.IsPositive() {
		return
	}
	err := s.rewards.Adjust(userID, amount, domain.RewardTypeReferral, reference)
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		s.logger.Error("referral bonus credit failed",
			zap.Uint("user_id", userID), zap.Error(err))
	}
}

func (s *ReferralService) settingAmount(key string, fallback decimal.Decimal) decimal.Decimal {
	if s.settings == nil {
		return fallback
	}
	val, err := s.settings.Get(key)
	if err != nil || val == "" {
		return fallback
	}
	amount, err := decimal.NewFromString(val)
	if err != nil {
		return fallback
	}
	return amount
}
