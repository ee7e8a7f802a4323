package pinetwork

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Headers carrying the webhook signature material.
const (
	HeaderSignature = "x-pi-signature"
	HeaderTimestamp = "x-pi-timestamp"
)

// ReplayWindow bounds how old a webhook timestamp may be.
const ReplayWindow = 5 * time.Minute

// ComputeSignature returns the hex HMAC-SHA256 of "{timestamp}.{body}"
// under secret.
func ComputeSignature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an inbound webhook signature in constant time.
// Fails closed: an unconfigured secret or missing header material never
// verifies.
func VerifySignature(secret, timestamp string, body []byte, signature string) bool {
	if secret == "" || timestamp == "" || signature == "" {
		return false
	}
	expected := ComputeSignature(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// FreshTimestamp reports whether ts (unix seconds) lies within window of
// now. Unparseable values and timestamps skewed into the future beyond
// the window fail.
func FreshTimestamp(ts string, now time.Time, window time.Duration) bool {
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	diff := now.Sub(time.Unix(sec, 0))
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}
