package models

import "time"

// AuditLog records side effects of state transitions (payment completed,
// refund issued, booking confirmed). Append-only.
type AuditLog struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     *uint     `gorm:"index" json:"user_id"`
	Action     string    `gorm:"size:100;not null;index" json:"action"`
	Resource   string    `gorm:"size:100;index" json:"resource"`
	ResourceID string    `gorm:"size:128;index" json:"resource_id"`
	IP         string    `gorm:"size:45" json:"ip"`
	UserAgent  string    `gorm:"size:512" json:"user_agent"`
	Metadata   string    `gorm:"type:text" json:"metadata"`
	CreatedAt  time.Time `json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// SecurityLog records security-relevant events: fraud scores at or above
// the alert threshold, webhook signature failures, blocked requests.
type SecurityLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    *uint     `gorm:"index" json:"user_id"`
	Event     string    `gorm:"size:100;not null;index" json:"event"`
	Severity  string    `gorm:"size:20;not null;index" json:"severity"` // INFO, WARNING, CRITICAL
	IP        string    `gorm:"size:45" json:"ip"`
	UserAgent string    `gorm:"size:512" json:"user_agent"`
	Details   string    `gorm:"type:text" json:"details"` // JSON
	CreatedAt time.Time `json:"created_at"`
}

func (SecurityLog) TableName() string {
	return "security_logs"
}
