package pinetwork

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", 5*time.Second, nil)
}

func TestGetPayment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v2/payments/pay_abc", r.URL.Path)
		assert.Equal(t, "Key test-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"identifier": "pay_abc",
			"user_uid":   "uid-1",
			"amount":     100,
			"status":     map[string]bool{"developer_approved": true},
			"transaction": map[string]any{
				"txid":     "tx-1",
				"verified": true,
			},
		})
	})

	p, err := c.GetPayment(context.Background(), "pay_abc")
	require.NoError(t, err)
	assert.Equal(t, "pay_abc", p.Identifier)
	assert.Equal(t, "uid-1", p.UserUID)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(100)))
	assert.True(t, p.Status.DeveloperApproved)
	require.NotNil(t, p.Transaction)
	assert.True(t, p.Transaction.Verified)
	assert.Equal(t, "tx-1", p.Transaction.TxID)
}

func TestCompletePaymentSendsTxid(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/payments/pay_abc/complete", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tx-9", body["txid"])
		json.NewEncoder(w).Encode(map[string]any{"identifier": "pay_abc"})
	})

	p, err := c.CompletePayment(context.Background(), "pay_abc", "tx-9")
	require.NoError(t, err)
	assert.Equal(t, "pay_abc", p.Identifier)
}

func TestCreatePaymentWrapsBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/payments", r.URL.Path)
		var body struct {
			Payment A2URequest `json:"payment"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "uid-7", body.Payment.UID)
		assert.True(t, body.Payment.Amount.Equal(decimal.NewFromInt(50)))
		json.NewEncoder(w).Encode(map[string]any{"identifier": "pay_refund"})
	})

	p, err := c.CreatePayment(context.Background(), A2URequest{
		Amount: decimal.NewFromInt(50),
		Memo:   "Refund",
		UID:    "uid-7",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay_refund", p.Identifier)
}

func TestAPIErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"payment not found"}`, http.StatusNotFound)
	})

	_, err := c.GetPayment(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestMeUsesBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/me", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]string{"uid": "uid-3", "username": "traveler"})
	})

	profile, err := c.Me(context.Background(), "user-token")
	require.NoError(t, err)
	assert.Equal(t, "uid-3", profile.UID)
	assert.Equal(t, "traveler", profile.Username)
}
