package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/hachizeus/ttip-backend/db"
	dbmodel "github.com/hachizeus/ttip-backend/db/model"
	"github.com/hachizeus/ttip-backend/gateway"
	"github.com/hachizeus/ttip-backend/payout"
	"github.com/hachizeus/ttip-backend/server/model"
)

const (
	MinTipAmount = 1
	MaxTipAmount = 70000
)

var (
	ErrInvalidAmount      = errors.New("amount must be between 1 and 70000")
	ErrInvalidContact     = errors.New("payer contact is not a valid mobile number")
	ErrWorkerNotFound     = errors.New("worker not found")
	ErrWorkerExists       = errors.New("worker id already registered")
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	ErrNotPending         = errors.New("transaction is not pending")
)

// Accepts 07XXXXXXXX / 01XXXXXXXX and the 254-prefixed forms.
var payerContactRe = regexp.MustCompile(`^(?:\+?254|0)([17]\d{8})$`)

// NormalizeContact validates a payer number and canonicalizes it to the
// 254XXXXXXXXX form the gateway expects.
func NormalizeContact(contact string) (string, error) {
	m := payerContactRe.FindStringSubmatch(contact)
	if m == nil {
		return "", ErrInvalidContact
	}
	return "254" + m[1], nil
}

// Store is what the service needs from the database layer. *db.Database
// implements it; tests substitute an in-memory fake.
type Store interface {
	CreateWorker(worker *dbmodel.Worker) error
	GetWorker(workerID string) (*dbmodel.Worker, error)
	GrantReferralCredit(workerID string) error

	CreateTransaction(txn *dbmodel.PendingTransaction) error
	GetTransaction(id uint) (*dbmodel.PendingTransaction, error)
	GetTransactionByIdempotencyKey(key string) (*dbmodel.PendingTransaction, error)
	GetTransactionByCorrelationID(correlationID string) (*dbmodel.PendingTransaction, error)
	GetPendingByCorrelationID(correlationID string) (*dbmodel.PendingTransaction, error)
	ListOrphans(olderThan time.Time) ([]dbmodel.PendingTransaction, error)
	CompleteTransaction(id uint, workerID string, fin dbmodel.Finalization) error
	FailTransaction(id uint, description, rawPayload string) error

	SaveAdminSession(session *dbmodel.AdminSession) error
	GetAdminSession(token string) (*dbmodel.AdminSession, error)
}

// PaymentGateway is the slice of the gateway client the service uses.
type PaymentGateway interface {
	Push(ctx context.Context, phoneNumber string, amount int64, reference, description string) (*gateway.PushResponse, error)
	QueryStatus(ctx context.Context, correlationID string) (*gateway.StatusResponse, error)
}

type Service struct {
	db      Store
	gateway PaymentGateway
	config  Config
	logger  *log.Logger

	clients       map[string]map[*websocket.Conn]bool // WorkerID -> set of conns
	connsToWorker map[*websocket.Conn]string
	clientsMu     sync.Mutex
}

func NewService(store Store, gw PaymentGateway, config Config, logger *log.Logger) *Service {
	if config.StatusWaitThreshold == 0 {
		config.StatusWaitThreshold = 30 * time.Second
	}
	if config.OrphanAge == 0 {
		config.OrphanAge = 10 * time.Minute
	}
	return &Service{
		db:            store,
		gateway:       gw,
		config:        config,
		logger:        logger,
		clients:       make(map[string]map[*websocket.Conn]bool),
		connsToWorker: make(map[*websocket.Conn]string),
	}
}

// RegisterWorker creates the worker row and, if a referrer was named, grants
// that referrer one commission-free tip.
func (s *Service) RegisterWorker(req model.RegisterWorkerRequest) (*dbmodel.Worker, error) {
	if _, err := s.db.GetWorker(req.WorkerID); err == nil {
		return nil, ErrWorkerExists
	}

	phone, err := NormalizeContact(req.PhoneNumber)
	if err != nil {
		return nil, err
	}

	worker := &dbmodel.Worker{
		WorkerID:    req.WorkerID,
		Name:        req.Name,
		PhoneNumber: phone,
		Occupation:  req.Occupation,
		ReferredBy:  req.ReferredBy,
		CreatedAt:   time.Now(),
	}
	if err := s.db.CreateWorker(worker); err != nil {
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}

	if req.ReferredBy != "" {
		if err := s.db.GrantReferralCredit(req.ReferredBy); err != nil {
			// The signup itself stands; a bad referrer id just earns nobody a credit.
			s.logger.Printf("Failed to grant referral credit to %s: %v", req.ReferredBy, err)
		} else {
			s.logger.Printf("Referral credit granted to %s for referring %s", req.ReferredBy, req.WorkerID)
		}
	}

	return worker, nil
}

func (s *Service) GetWorker(workerID string) (*dbmodel.Worker, error) {
	worker, err := s.db.GetWorker(workerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkerNotFound
		}
		return nil, err
	}
	return worker, nil
}

// InitiateTip validates the request, pushes it to the gateway and records the
// pending transaction with the gateway's correlation id. A replayed idempotency
// key returns the already-recorded transaction without touching the gateway.
func (s *Service) InitiateTip(ctx context.Context, req model.TipRequest) (*dbmodel.PendingTransaction, error) {
	if req.Amount < MinTipAmount || req.Amount > MaxTipAmount {
		return nil, ErrInvalidAmount
	}
	contact, err := NormalizeContact(req.PayerContact)
	if err != nil {
		return nil, err
	}

	if existing, err := s.db.GetTransactionByIdempotencyKey(req.IdempotencyKey); err == nil {
		s.logger.Printf("Idempotent replay of key %s -> correlation %s", req.IdempotencyKey, existing.CorrelationID)
		return existing, nil
	}

	worker, err := s.GetWorker(req.WorkerID)
	if err != nil {
		return nil, err
	}

	reference := uuid.NewString()
	resp, err := s.gateway.Push(ctx, contact, req.Amount, reference, "Tip for "+worker.Name)
	if err != nil {
		var rejection *gateway.RejectionError
		if errors.As(err, &rejection) {
			// Typed refusal, surfaced as-is. No row is created.
			return nil, rejection
		}
		s.logger.Printf("Gateway push failed for %s: %v", reference, err)
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	raw, _ := json.Marshal(resp)
	txn := &dbmodel.PendingTransaction{
		WorkerID:          worker.WorkerID,
		Amount:            req.Amount,
		PayerContact:      contact,
		Reference:         reference,
		IdempotencyKey:    req.IdempotencyKey,
		CorrelationID:     resp.CorrelationID,
		Status:            dbmodel.TransactionPending,
		RawGatewayPayload: string(raw),
	}
	if err := s.db.CreateTransaction(txn); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// A concurrent request with the same key won the insert race.
			// Its row is the transaction of record for this key.
			s.logger.Printf("Key %s raced, returning the winning transaction", req.IdempotencyKey)
			return s.db.GetTransactionByIdempotencyKey(req.IdempotencyKey)
		}
		return nil, fmt.Errorf("failed to record pending transaction: %w", err)
	}

	s.logger.Printf("Push accepted for worker %s: amount=%d correlation=%s", worker.WorkerID, req.Amount, resp.CorrelationID)
	return txn, nil
}

// TipStatus reports the state of a transaction to the polling UI. Once the
// transaction has been pending longer than the wait threshold the gateway is
// queried directly, and a terminal answer finalizes the row on the spot.
func (s *Service) TipStatus(ctx context.Context, correlationID string) (*model.TipStatusResponse, error) {
	txn, err := s.db.GetTransactionByCorrelationID(correlationID)
	if err != nil {
		return nil, err
	}

	switch txn.Status {
	case dbmodel.TransactionCompleted:
		return &model.TipStatusResponse{CorrelationID: correlationID, Status: model.StatusCompleted}, nil
	case dbmodel.TransactionFailed:
		return &model.TipStatusResponse{CorrelationID: correlationID, Status: model.StatusFailed, Description: txn.ResultDescription}, nil
	}

	if time.Since(txn.CreatedAt) < s.config.StatusWaitThreshold {
		return &model.TipStatusResponse{CorrelationID: correlationID, Status: model.StatusPending}, nil
	}

	// Callback is overdue, ask the gateway directly.
	status, err := s.gateway.QueryStatus(ctx, correlationID)
	if err != nil || status.Pending {
		return &model.TipStatusResponse{CorrelationID: correlationID, Status: model.StatusPending}, nil
	}

	if err := s.finalizeFromStatus(txn, status); err != nil && !errors.Is(err, db.ErrAlreadyFinalized) {
		s.logger.Printf("Failed to finalize %s from status query: %v", correlationID, err)
		return &model.TipStatusResponse{CorrelationID: correlationID, Status: model.StatusPending}, nil
	}

	if status.ResultCode == gateway.ResultSuccess {
		return &model.TipStatusResponse{CorrelationID: correlationID, Status: model.StatusCompleted}, nil
	}
	return &model.TipStatusResponse{
		CorrelationID: correlationID,
		Status:        model.StatusFailed,
		Description:   gateway.DescribeResult(status.ResultCode),
	}, nil
}

func (s *Service) finalizeFromStatus(txn *dbmodel.PendingTransaction, status *gateway.StatusResponse) error {
	raw, _ := json.Marshal(status)
	if status.ResultCode != gateway.ResultSuccess {
		desc := status.ResultDesc
		if desc == "" {
			desc = gateway.DescribeResult(status.ResultCode)
		}
		return s.db.FailTransaction(txn.ID, desc, s.mergeRawPayload(txn, raw))
	}

	amount := status.Amount
	if amount == 0 {
		amount = txn.Amount
	}
	return s.completeTransaction(txn, amount, status.ReceiptNumber, "confirmed via status query", s.mergeRawPayload(txn, raw))
}

// completeTransaction runs the payout split and commits it together with the
// worker credit mutation. If the credit read raced another finalization and the
// balance is already gone, the split is recomputed on the commission path.
func (s *Service) completeTransaction(txn *dbmodel.PendingTransaction, amount int64, receipt, description, rawPayload string) error {
	worker, err := s.db.GetWorker(txn.WorkerID)
	if err != nil {
		return fmt.Errorf("worker %s missing for transaction %d: %w", txn.WorkerID, txn.ID, err)
	}

	split := payout.Calculate(worker.ReferralCredits, amount)
	fin := dbmodel.Finalization{
		Commission:         split.Commission,
		Payout:             split.Payout,
		UsedReferralCredit: split.UsedReferralCredit,
		ReceiptNumber:      receipt,
		ResultDescription:  description,
		RawGatewayPayload:  rawPayload,
	}

	err = s.db.CompleteTransaction(txn.ID, txn.WorkerID, fin)
	if errors.Is(err, db.ErrNoReferralCredit) {
		split = payout.Calculate(0, amount)
		fin.Commission = split.Commission
		fin.Payout = split.Payout
		fin.UsedReferralCredit = false
		err = s.db.CompleteTransaction(txn.ID, txn.WorkerID, fin)
	}
	if err != nil {
		return err
	}

	s.logger.Printf("Tip completed for worker %s: amount=%d payout=%d commission=%d credit=%t",
		txn.WorkerID, amount, fin.Payout, fin.Commission, fin.UsedReferralCredit)

	s.NotifyWorker(model.TipNotification{
		Type:          "TIP",
		WorkerID:      txn.WorkerID,
		Amount:        amount,
		Payout:        fin.Payout,
		Commission:    fin.Commission,
		ReceiptNumber: receipt,
	})
	return nil
}

func (s *Service) mergeRawPayload(txn *dbmodel.PendingTransaction, raw []byte) string {
	if txn.RawGatewayPayload == "" {
		return string(raw)
	}
	return txn.RawGatewayPayload + "\n" + string(raw)
}

// Orphans lists pending transactions old enough that their callback is
// presumed lost. Admin-only.
func (s *Service) Orphans() ([]dbmodel.PendingTransaction, error) {
	return s.db.ListOrphans(time.Now().Add(-s.config.OrphanAge))
}

// RetryTransaction re-issues a fresh push for the same logical transaction.
// The new attempt gets its own idempotency key and correlation id; the old row
// stays pending until its own callback or a status query settles it.
func (s *Service) RetryTransaction(ctx context.Context, id uint) (*dbmodel.PendingTransaction, error) {
	txn, err := s.db.GetTransaction(id)
	if err != nil {
		return nil, err
	}
	if txn.Status != dbmodel.TransactionPending {
		return nil, ErrNotPending
	}

	return s.InitiateTip(ctx, model.TipRequest{
		WorkerID:       txn.WorkerID,
		Amount:         txn.Amount,
		PayerContact:   txn.PayerContact,
		IdempotencyKey: fmt.Sprintf("admin-retry-%d-%s", id, uuid.NewString()),
	})
}
