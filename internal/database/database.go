package database

import (
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"voyago/config"
	"voyago/internal/domain"
	"voyago/internal/models"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error), // Only log errors, not every SQL query
		// Surfaces duplicate-key violations as gorm.ErrDuplicatedKey;
		// the payment binding and refund guards match on it.
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Hotel{},
		&models.HotelImage{},
		&models.Attraction{},
		&models.Restaurant{},
		&models.Review{},
		&models.Booking{},
		&models.Payment{},
		&models.RewardTransaction{},
		&models.Favorite{},
		&models.ReferralCode{},
		&models.Referral{},
		&models.Notification{},
		&models.AuditLog{},
		&models.SecurityLog{},
		&models.SystemSetting{},
	)
}

// SeedAdmin creates the bootstrap admin account on first boot. Skipped
// when credentials are unset or an admin already exists.
func SeedAdmin(db *gorm.DB, cfg *config.AdminConfig, log *zap.Logger) {
	if cfg.Email == "" || cfg.Password == "" {
		return
	}
	var count int64
	if err := db.Model(&models.User{}).Where("role = ?", domain.RoleAdmin).Count(&count).Error; err != nil {
		log.Warn("admin seed check failed", zap.Error(err))
		return
	}
	if count > 0 {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Warn("admin seed hash failed", zap.Error(err))
		return
	}
	if err := db.Create(&models.User{
		Username:     "admin",
		Email:        cfg.Email,
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
		Tier:         domain.TierEnterprise,
	}).Error; err != nil {
		log.Warn("admin seed failed", zap.Error(err))
		return
	}
	log.Info("seeded admin account", zap.String("email", cfg.Email))
}
