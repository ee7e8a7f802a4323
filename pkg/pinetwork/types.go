package pinetwork

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Payment is the provider-side view of a payment as returned by the
// platform API.
type Payment struct {
	Identifier  string          `json:"identifier"`
	UserUID     string          `json:"user_uid"`
	Amount      decimal.Decimal `json:"amount"`
	Memo        string          `json:"memo"`
	Metadata    map[string]any  `json:"metadata"`
	ToAddress   string          `json:"to_address"`
	Direction   string          `json:"direction"` // user_to_app | app_to_user
	Network     string          `json:"network"`
	CreatedAt   string          `json:"created_at"`
	Status      PaymentFlags    `json:"status"`
	Transaction *Transaction    `json:"transaction"`
}

// PaymentFlags mirrors the provider's status bitfield.
type PaymentFlags struct {
	DeveloperApproved   bool `json:"developer_approved"`
	TransactionVerified bool `json:"transaction_verified"`
	DeveloperCompleted  bool `json:"developer_completed"`
	Cancelled           bool `json:"cancelled"`
	UserCancelled       bool `json:"user_cancelled"`
}

// Transaction is the blockchain side of a payment once submitted.
type Transaction struct {
	TxID     string `json:"txid"`
	Verified bool   `json:"verified"`
	Link     string `json:"_link"`
}

// UserProfile is returned by /v2/me for a user access token.
type UserProfile struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
}

// A2URequest describes an app-to-user payment (used for refunds).
type A2URequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Memo     string          `json:"memo"`
	Metadata map[string]any  `json:"metadata"`
	UID      string          `json:"uid"`
}

// WebhookEvent is the body of an inbound payment callback.
type WebhookEvent struct {
	Event   string         `json:"event"`
	Payment WebhookPayment `json:"payment"`
}

type WebhookPayment struct {
	Identifier  string          `json:"identifier"`
	Amount      decimal.Decimal `json:"amount"`
	UserUID     string          `json:"user_uid"`
	Transaction *Transaction    `json:"transaction"`
}

// APIError is a non-2xx platform response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pi api: status %d: %s", e.Status, e.Body)
}
