package pinetwork

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	circuit "github.com/rubyist/circuitbreaker"
	"go.uber.org/zap"
)

// breakerThreshold trips the circuit after this many consecutive
// failures against the platform API.
const breakerThreshold = 10

// Client talks to the Pi Network platform API v2. Construct one per
// process and inject it where needed; it carries no mutable auth state.
type Client struct {
	baseURL string
	apiKey  string
	hc      *circuit.HTTPClient
	logger  *zap.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://api.minepi.com"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		hc:      circuit.NewHTTPClient(timeout, breakerThreshold, nil),
		logger:  logger,
	}
}

// GetPayment fetches the provider view of a payment.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var out Payment
	if err := c.do(ctx, http.MethodGet, "/v2/payments/"+paymentID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ApprovePayment tells the provider the server accepts the payment.
func (c *Client) ApprovePayment(ctx context.Context, paymentID string) (*Payment, error) {
	var out Payment
	if err := c.do(ctx, http.MethodPost, "/v2/payments/"+paymentID+"/approve", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompletePayment acknowledges the blockchain transaction and closes the
// payment on the provider side.
func (c *Client) CompletePayment(ctx context.Context, paymentID, txid string) (*Payment, error) {
	var out Payment
	body := map[string]string{"txid": txid}
	if err := c.do(ctx, http.MethodPost, "/v2/payments/"+paymentID+"/complete", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelPayment cancels a payment on the provider side.
func (c *Client) CancelPayment(ctx context.Context, paymentID string) (*Payment, error) {
	var out Payment
	if err := c.do(ctx, http.MethodPost, "/v2/payments/"+paymentID+"/cancel", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePayment opens an app-to-user payment (refund compensation). The
// returned payment carries the transaction once the provider submits it.
func (c *Client) CreatePayment(ctx context.Context, req A2URequest) (*Payment, error) {
	var out Payment
	body := map[string]any{"payment": req}
	if err := c.do(ctx, http.MethodPost, "/v2/payments", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me resolves a user access token to the provider identity. Unlike the
// other calls it authenticates with the user's bearer token, not the
// server key.
func (c *Client) Me(ctx context.Context, accessToken string) (*UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pi me: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}
	var out UserProfile
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		c.logger.Warn("pi api request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("pi api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("pi api error response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("pi api %s %s: decode: %w", method, path, err)
		}
	}
	return nil
}

// IsNotFound reports whether err is a provider 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}
