package fraud

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recommended actions by score band.
const (
	ActionAllow   = "allow"
	ActionMonitor = "monitor"
	ActionBlock   = "block"
)

// Score thresholds. MonitorThreshold and BlockThreshold pick the action;
// at SecurityLogThreshold the caller must also write a SecurityLog entry.
const (
	MonitorThreshold     = 30
	BlockThreshold       = 50
	SecurityLogThreshold = 70
)

// Signals are the aggregates a booking or payment attempt is scored on.
// The caller fetches them from the store; the scorer itself touches nothing.
type Signals struct {
	RecentBookings       int64           // bookings created in the last 24h
	AccountAge           time.Duration   // now - user.CreatedAt
	PriorBookings        int64           // lifetime booking count
	SameItemBookings     int64           // prior bookings for the same catalog item
	RecentFailedPayments int64           // failed payments in the last 24h
	Amount               decimal.Decimal // amount of this attempt
	AverageAmount        decimal.Decimal // user's historical completed average, zero if none
	KnownIP              bool            // request IP seen on a prior booking
}

// Result carries the additive score, the reasons that fired, and the
// recommended action.
type Result struct {
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
	Action  string   `json:"action"`
}

type rule struct {
	points int
	reason string
	match  func(Signals) bool
}

// The rule table is fixed. Points are additive and the total clamps to 100.
var rules = []rule{
	{25, "5 or more bookings in the last 24 hours", func(s Signals) bool {
		return s.RecentBookings >= 5
	}},
	{15, "3 or more bookings in the last 24 hours", func(s Signals) bool {
		return s.RecentBookings >= 3 && s.RecentBookings < 5
	}},
	{20, "account younger than one day", func(s Signals) bool {
		return s.AccountAge < 24*time.Hour
	}},
	{10, "account younger than one week", func(s Signals) bool {
		return s.AccountAge >= 24*time.Hour && s.AccountAge < 7*24*time.Hour
	}},
	{10, "first booking on this account", func(s Signals) bool {
		return s.PriorBookings == 0
	}},
	{15, "repeat bookings for the same item", func(s Signals) bool {
		return s.SameItemBookings >= 3
	}},
	{20, "failed payments in the last 24 hours", func(s Signals) bool {
		return s.RecentFailedPayments >= 2
	}},
	{15, "amount more than 3x the historical average", func(s Signals) bool {
		if s.AverageAmount.IsZero() {
			return false
		}
		return s.Amount.GreaterThan(s.AverageAmount.Mul(decimal.NewFromInt(3)))
	}},
	{10, "request from an unrecognized IP", func(s Signals) bool {
		return !s.KnownIP
	}},
}

// Score evaluates the rule table against the signals.
func Score(s Signals) Result {
	res := Result{Action: ActionAllow}
	for _, r := range rules {
		if r.match(s) {
			res.Score += r.points
			res.Reasons = append(res.Reasons, r.reason)
		}
	}
	if res.Score > 100 {
		res.Score = 100
	}
	switch {
	case res.Score >= BlockThreshold:
		res.Action = ActionBlock
	case res.Score >= MonitorThreshold:
		res.Action = ActionMonitor
	}
	return res
}
