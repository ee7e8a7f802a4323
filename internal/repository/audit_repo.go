package repository

import (
	"voyago/internal/models"

	"gorm.io/gorm"
)

type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Create(log *models.AuditLog) error {
	return r.db.Create(log).Error
}

// ExistsUserIP reports whether the user has acted from this IP before.
// Feeds the new-IP fraud signal.
func (r *AuditLogRepository) ExistsUserIP(userID uint, ip string) (bool, error) {
	var count int64
	err := r.db.Model(&models.AuditLog{}).
		Where("user_id = ? AND ip = ?", userID, ip).
		Count(&count).Error
	return count > 0, err
}

func (r *AuditLogRepository) List(action string, page, limit int) ([]models.AuditLog, int64, error) {
	q := r.db.Model(&models.AuditLog{})
	if action != "" {
		q = q.Where("action = ?", action)
	}
	var total int64
	q.Count(&total)
	var list []models.AuditLog
	err := q.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

type SecurityLogRepository struct {
	db *gorm.DB
}

func NewSecurityLogRepository(db *gorm.DB) *SecurityLogRepository {
	return &SecurityLogRepository{db: db}
}

func (r *SecurityLogRepository) Create(log *models.SecurityLog) error {
	return r.db.Create(log).Error
}

func (r *SecurityLogRepository) List(severity string, page, limit int) ([]models.SecurityLog, int64, error) {
	q := r.db.Model(&models.SecurityLog{})
	if severity != "" {
		q = q.Where("severity = ?", severity)
	}
	var total int64
	q.Count(&total)
	var list []models.SecurityLog
	err := q.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}
