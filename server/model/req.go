package model

// TipRequest initiates a push payment to a worker. IdempotencyKey is required:
// the offline client replays requests and the server must not double-charge.
type TipRequest struct {
	WorkerID       string `json:"workerId" binding:"required"`
	Amount         int64  `json:"amount" binding:"required"`
	PayerContact   string `json:"payerContact" binding:"required"`
	IdempotencyKey string `json:"idempotencyKey" binding:"required"`
}

type RegisterWorkerRequest struct {
	WorkerID    string `json:"workerId" binding:"required"`
	Name        string `json:"name" binding:"required"`
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	Occupation  string `json:"occupation"`
	ReferredBy  string `json:"referredBy"` // workerId of the referrer, grants them one credit
}

type AdminLoginRequest struct {
	Secret string `json:"secret" binding:"required"`
}
