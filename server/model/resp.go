package model

// Tip statuses surfaced to the polling UI.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

type TipResponse struct {
	CorrelationID string `json:"correlationId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

type TipStatusResponse struct {
	CorrelationID string `json:"correlationId"`
	Status        string `json:"status"`
	Description   string `json:"description,omitempty"`
}

// TipNotification is pushed over the worker's websocket feed when a tip clears.
type TipNotification struct {
	Type          string `json:"type"`
	WorkerID      string `json:"workerId"`
	Amount        int64  `json:"amount"`
	Payout        int64  `json:"payout"`
	Commission    int64  `json:"commission"`
	ReceiptNumber string `json:"receiptNumber"`
}

type WorkerResponse struct {
	WorkerID   string `json:"workerId"`
	Name       string `json:"name"`
	Occupation string `json:"occupation"`
	TipCount   int64  `json:"tipCount"`
}
