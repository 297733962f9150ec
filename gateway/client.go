// Package gateway talks to the mobile-money gateway: it submits push-payment
// requests, queries their status and defines the callback payload the gateway
// posts back once the payer has acted.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Result codes echoed by the gateway in callbacks and status queries.
const (
	ResultSuccess           = 0
	ResultInsufficientFunds = 1
	ResultCancelledByUser   = 1032
	ResultTimeout           = 1037
	ResultInvalidNumber     = 2001
)

// resultDescriptions maps gateway result codes to something a human can read.
var resultDescriptions = map[int]string{
	ResultSuccess:           "success",
	ResultInsufficientFunds: "insufficient funds",
	ResultCancelledByUser:   "user cancelled",
	ResultTimeout:           "timeout",
	ResultInvalidNumber:     "invalid number",
}

// DescribeResult returns the mapped reason for a gateway result code.
func DescribeResult(code int) string {
	if desc, ok := resultDescriptions[code]; ok {
		return desc
	}
	return fmt.Sprintf("gateway error %d", code)
}

// RejectionError is a synchronous refusal from the gateway: the push was never
// queued and no callback will follow.
type RejectionError struct {
	Code   string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("gateway rejected request (code %s): %s", e.Code, e.Reason)
}

type Config struct {
	BaseURL     string
	APIKey      string
	ShortCode   string
	CallbackURL string
	Timeout     time.Duration
}

type Client struct {
	config Config
	logger *log.Logger
	http   *http.Client
}

func NewClient(config Config, logger *log.Logger) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		logger: logger,
		http:   &http.Client{Timeout: timeout},
	}
}

// PushRequest asks the gateway to prompt the payer's phone for a PIN.
type PushRequest struct {
	ShortCode   string `json:"short_code"`
	PhoneNumber string `json:"phone_number"`
	Amount      int64  `json:"amount"`
	Reference   string `json:"reference"`
	Description string `json:"description"`
	CallbackURL string `json:"callback_url"`
}

// PushResponse is the gateway's immediate answer. ResponseCode "0" means the
// push was queued and a callback will eventually follow for CorrelationID.
type PushResponse struct {
	CorrelationID       string `json:"correlation_id"`
	ResponseCode        string `json:"response_code"`
	ResponseDescription string `json:"response_description"`
}

// Push submits a push-payment request. A non-"0" response code comes back as a
// *RejectionError with the gateway's own description.
func (c *Client) Push(ctx context.Context, phoneNumber string, amount int64, reference, description string) (*PushResponse, error) {
	req := PushRequest{
		ShortCode:   c.config.ShortCode,
		PhoneNumber: phoneNumber,
		Amount:      amount,
		Reference:   reference,
		Description: description,
		CallbackURL: c.config.CallbackURL,
	}

	var resp PushResponse
	if err := c.post(ctx, "/payments/push", req, &resp); err != nil {
		return nil, err
	}

	if resp.ResponseCode != "0" {
		c.logger.Printf("Gateway rejected push for %s: code=%s desc=%s", reference, resp.ResponseCode, resp.ResponseDescription)
		return nil, &RejectionError{Code: resp.ResponseCode, Reason: resp.ResponseDescription}
	}

	return &resp, nil
}

// StatusResponse mirrors the callback's result-code semantics for direct queries.
type StatusResponse struct {
	CorrelationID string `json:"correlation_id"`
	ResultCode    int    `json:"result_code"`
	ResultDesc    string `json:"result_desc"`
	Pending       bool   `json:"pending"`
	Amount        int64  `json:"amount"`
	ReceiptNumber string `json:"receipt_number"`
}

// QueryStatus asks the gateway directly what happened to a push. Used as a
// fallback when the callback is overdue.
func (c *Client) QueryStatus(ctx context.Context, correlationID string) (*StatusResponse, error) {
	req := map[string]string{
		"short_code":     c.config.ShortCode,
		"correlation_id": correlationID,
	}

	var resp StatusResponse
	if err := c.post(ctx, "/payments/status", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway API error: %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
