package model

import (
	"time"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// PendingTransaction is one push-payment attempt. A row is created when the
// gateway accepts the push and reaches exactly one terminal status when the
// confirmation callback (or a status re-query) arrives. Rows are never deleted.
type PendingTransaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	WorkerID     string `gorm:"index;not null" json:"worker_id"`
	Amount       int64  `gorm:"not null" json:"amount"`
	PayerContact string `gorm:"not null" json:"payer_contact"` // normalized 2547XXXXXXXX

	Reference      string `gorm:"uniqueIndex" json:"reference"`       // internal account reference sent to the gateway
	IdempotencyKey string `gorm:"uniqueIndex" json:"idempotency_key"` // caller-supplied, dedupes retried initiations
	CorrelationID  string `gorm:"uniqueIndex" json:"correlation_id"`  // issued by the gateway at acceptance time

	Status            TransactionStatus `gorm:"index;default:'pending'" json:"status"`
	ResultDescription string            `json:"result_description"`

	Commission         int64  `json:"commission"`
	Payout             int64  `json:"payout"`
	UsedReferralCredit bool   `json:"used_referral_credit"`
	ReceiptNumber      string `json:"receipt_number"`

	RawGatewayPayload string `gorm:"type:text" json:"-"` // acceptance response merged with the callback body
}

func (PendingTransaction) TableName() string { return "pending_transactions" }

// Finalization carries everything the store must commit atomically when a
// transaction reaches a terminal status: the transaction fields themselves plus
// the worker-side credit/totals mutation.
type Finalization struct {
	Commission         int64
	Payout             int64
	UsedReferralCredit bool
	ReceiptNumber      string
	ResultDescription  string
	RawGatewayPayload  string
}
