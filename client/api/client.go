// Package api is the device-side client for the tipping backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hachizeus/ttip-backend/client/queue"
)

// RejectionError means the server (or the gateway behind it) refused the tip
// outright: validation failure, unknown worker, payer cancelled. Retrying the
// same request will not help.
type RejectionError struct {
	StatusCode int
	Reason     string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("tip rejected (HTTP %d): %s", e.StatusCode, e.Reason)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type tipRequest struct {
	WorkerID       string `json:"workerId"`
	Amount         int64  `json:"amount"`
	PayerContact   string `json:"payerContact"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type tipResponse struct {
	CorrelationID string `json:"correlationId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
	Error         string `json:"error"`
}

// Initiate submits one intent. The intent id rides along as the idempotency
// key, so resubmitting after an interrupted pass is safe. Server-side and
// gateway refusals come back as *RejectionError; transport trouble and 5xx
// responses come back as plain errors the caller may retry.
func (c *Client) Initiate(ctx context.Context, intent queue.TipIntent) (string, error) {
	payload, err := json.Marshal(tipRequest{
		WorkerID:       intent.WorkerID,
		Amount:         intent.Amount,
		PayerContact:   intent.PayerContact,
		IdempotencyKey: intent.ID,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/tips", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("server unreachable: %w", err)
	}
	defer resp.Body.Close()

	var body tipResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil && resp.StatusCode < 500 {
		return "", fmt.Errorf("unreadable response (HTTP %d): %w", resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode == http.StatusAccepted:
		return body.CorrelationID, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		reason := body.Error
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return "", &RejectionError{StatusCode: resp.StatusCode, Reason: reason}
	default:
		return "", fmt.Errorf("server error: HTTP %d", resp.StatusCode)
	}
}

// Ping is the connectivity probe: a cheap GET against the backend.
func (c *Client) Ping(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/workers/ping", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}
