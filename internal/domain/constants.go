package domain

import "github.com/shopspring/decimal"

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Subscription tiers. Each tier maps to an hourly request quota used by
// the rate limiter.
const (
	TierFree       = "FREE"
	TierBasic      = "BASIC"
	TierPremium    = "PREMIUM"
	TierBusiness   = "BUSINESS"
	TierEnterprise = "ENTERPRISE"
)

var TierQuotas = map[string]int{
	TierFree:       100,
	TierBasic:      300,
	TierPremium:    1000,
	TierBusiness:   3000,
	TierEnterprise: 10000,
}

// QuotaForTier returns the hourly request quota for a tier, falling back
// to the free quota for unknown values.
func QuotaForTier(tier string) int {
	if q, ok := TierQuotas[tier]; ok {
		return q
	}
	return TierQuotas[TierFree]
}

// Payment lifecycle. Transitions are one-directional except refund,
// which spawns a compensating completed payment while the original is
// marked refunded.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusCancelled  = "cancelled"
	PaymentStatusFailed     = "failed"
	PaymentStatusRefunded   = "refunded"
)

var paymentTransitions = map[string][]string{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusCancelled, PaymentStatusFailed},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusCancelled, PaymentStatusFailed},
	PaymentStatusCompleted:  {PaymentStatusRefunded},
}

// CanTransitionPayment reports whether a payment may move from one
// status to another.
func CanTransitionPayment(from, to string) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalPaymentStatus reports whether no further transition except
// refund-of-completed applies.
func IsTerminalPaymentStatus(status string) bool {
	switch status {
	case PaymentStatusCompleted, PaymentStatusCancelled, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
)

const (
	BookingPaymentUnpaid   = "unpaid"
	BookingPaymentPaid     = "paid"
	BookingPaymentFailed   = "failed"
	BookingPaymentRefunded = "refunded"
)

const (
	ItemTypeHotel      = "hotel"
	ItemTypeAttraction = "attraction"
	ItemTypeRestaurant = "restaurant"
)

const ProviderPiNetwork = "pi_network"

// CashbackRate is the fixed share of a completed payment credited back
// to the payer's reward balance (2%).
var CashbackRate = decimal.New(2, -2)

const (
	RewardTypeCashback   = "CASHBACK"
	RewardTypeAdjustment = "ADJUSTMENT"
	RewardTypeReferral   = "REFERRAL"
)

// Admin-tunable setting keys with their fallbacks. Values are stored as
// strings in system_settings; unparseable values fall back.
const (
	SettingReferralBonusReferrer = "referral.bonus_referrer"
	SettingReferralBonusReferred = "referral.bonus_referred"
)

var (
	DefaultReferralBonusReferrer = decimal.New(1, 0)  // 1 PI
	DefaultReferralBonusReferred = decimal.New(5, -1) // 0.5 PI
)

// Webhook event names accepted from the payment provider.
const (
	EventPaymentCompleted = "payment_completed"
	EventPaymentCancelled = "payment_cancelled"
	EventPaymentFailed    = "payment_failed"
)

const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)
