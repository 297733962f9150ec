package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		BaseURL:     srv.URL,
		APIKey:      "test-key",
		ShortCode:   "600111",
		CallbackURL: "https://example.com/callbacks/gateway",
	}, log.New(os.Stdout, "[TEST] ", log.LstdFlags))
}

func TestPushAccepted(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/push", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req PushRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "254712345678", req.PhoneNumber)
		assert.Equal(t, int64(50), req.Amount)
		assert.Equal(t, "600111", req.ShortCode)

		json.NewEncoder(w).Encode(PushResponse{
			CorrelationID:       "ws_CO_123",
			ResponseCode:        "0",
			ResponseDescription: "Success. Request accepted for processing",
		})
	})

	resp, err := client.Push(context.Background(), "254712345678", 50, "ref-1", "Tip")
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_123", resp.CorrelationID)
}

func TestPushRejected(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(PushResponse{
			ResponseCode:        "400.002.02",
			ResponseDescription: "Invalid PhoneNumber",
		})
	})

	_, err := client.Push(context.Background(), "0000", 50, "ref-1", "Tip")
	require.Error(t, err)

	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "400.002.02", rejection.Code)
	assert.Equal(t, "Invalid PhoneNumber", rejection.Reason)
}

func TestPushGatewayUnreachable(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {})
	// Point at a closed port.
	client.config.BaseURL = "http://127.0.0.1:1"

	_, err := client.Push(context.Background(), "254712345678", 50, "ref-1", "Tip")
	require.Error(t, err)

	var rejection *RejectionError
	assert.False(t, errors.As(err, &rejection), "network failure must not look like a rejection")
}

func TestQueryStatus(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/status", r.URL.Path)
		json.NewEncoder(w).Encode(StatusResponse{
			CorrelationID: "ws_CO_123",
			ResultCode:    ResultCancelledByUser,
			ResultDesc:    "Request cancelled by user",
		})
	})

	resp, err := client.QueryStatus(context.Background(), "ws_CO_123")
	require.NoError(t, err)
	assert.Equal(t, ResultCancelledByUser, resp.ResultCode)
}

func TestDescribeResult(t *testing.T) {
	assert.Equal(t, "success", DescribeResult(ResultSuccess))
	assert.Equal(t, "user cancelled", DescribeResult(ResultCancelledByUser))
	assert.Equal(t, "timeout", DescribeResult(ResultTimeout))
	assert.Equal(t, "invalid number", DescribeResult(ResultInvalidNumber))
	assert.Equal(t, "gateway error 9999", DescribeResult(9999))
}

func TestCallbackMetadataExtraction(t *testing.T) {
	raw := `{
		"Body": {
			"ResultCode": 0,
			"ResultDesc": "The service request is processed successfully.",
			"CorrelationID": "ws_CO_777",
			"CallbackMetadata": [
				{"Name": "Amount", "Value": 100},
				{"Name": "ReceiptNumber", "Value": "QK12XYZ99"},
				{"Name": "PayerNumber", "Value": 254712345678}
			]
		}
	}`

	var env CallbackEnvelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))

	amount, ok := env.Body.Amount()
	require.True(t, ok)
	assert.Equal(t, int64(100), amount)
	assert.Equal(t, "QK12XYZ99", env.Body.ReceiptNumber())
	assert.Equal(t, "254712345678", env.Body.PayerNumber())
}

func TestCallbackMetadataStringAmount(t *testing.T) {
	body := CallbackBody{Metadata: []MetadataItem{{Name: MetaAmount, Value: "250"}}}
	amount, ok := body.Amount()
	require.True(t, ok)
	assert.Equal(t, int64(250), amount)

	body = CallbackBody{}
	_, ok = body.Amount()
	assert.False(t, ok)
}
