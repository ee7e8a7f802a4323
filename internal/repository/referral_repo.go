package repository

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"voyago/internal/models"

	"gorm.io/gorm"
)

type ReferralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// generateReferralCode returns an 8-character uppercase hex code.
func generateReferralCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

// GetOrCreateCode returns the user's referral code, minting one on first
// use. Collisions on the unique code column are retried; any other store
// error surfaces immediately.
func (r *ReferralRepository) GetOrCreateCode(userID uint) (*models.ReferralCode, error) {
	var rc models.ReferralCode
	if err := r.db.Where("user_id = ?", userID).First(&rc).Error; err == nil {
		return &rc, nil
	}
	for i := 0; i < 10; i++ {
		code, err := generateReferralCode()
		if err != nil {
			return nil, err
		}
		rc = models.ReferralCode{UserID: userID, Code: code, IsActive: true}
		err = r.db.Create(&rc).Error
		if err == nil {
			return &rc, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}
		// The duplicate can also be user_id: a concurrent request minted
		// first. Return the winner's row instead of colliding again.
		if lookErr := r.db.Where("user_id = ?", userID).First(&rc).Error; lookErr == nil {
			return &rc, nil
		}
	}
	return nil, fmt.Errorf("failed to generate a unique referral code after retries")
}

// GetByCode returns the active referral code record for a code string.
func (r *ReferralRepository) GetByCode(code string) (*models.ReferralCode, error) {
	var rc models.ReferralCode
	err := r.db.Where("code = ? AND is_active = ?", code, true).First(&rc).Error
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (r *ReferralRepository) CreateReferral(referral *models.Referral) error {
	return r.db.Create(referral).Error
}

// GetByReferredUserID returns the referral record claiming the given
// user, if any.
func (r *ReferralRepository) GetByReferredUserID(userID uint) (*models.Referral, error) {
	var ref models.Referral
	err := r.db.Where("referred_user_id = ?", userID).First(&ref).Error
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *ReferralRepository) MarkRewarded(referral *models.Referral) error {
	now := time.Now()
	referral.RewardedAt = &now
	return r.db.Model(referral).Update("rewarded_at", now).Error
}

// ListByReferrerID returns referrals created through the user's code,
// newest first, with the referred account preloaded.
func (r *ReferralRepository) ListByReferrerID(referrerID uint, limit, offset int) ([]models.Referral, int64, error) {
	q := r.db.Model(&models.Referral{}).Where("referrer_id = ?", referrerID)
	var total int64
	q.Count(&total)
	var list []models.Referral
	err := q.Preload("ReferredUser").Order("created_at DESC").
		Limit(limit).Offset(offset).Find(&list).Error
	return list, total, err
}
