package server

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/hachizeus/ttip-backend/db"
	dbmodel "github.com/hachizeus/ttip-backend/db/model"
	"github.com/hachizeus/ttip-backend/gateway"
)

// fakeStore mirrors the Database semantics in memory, including the
// finalization guards.
type fakeStore struct {
	mu       sync.Mutex
	workers  map[string]*dbmodel.Worker
	txns     []*dbmodel.PendingTransaction
	sessions map[string]*dbmodel.AdminSession
	nextID   uint

	// beforeCreateTxn, if set, runs once before the next insert. Lets a test
	// slip a competing write in between lookup and insert.
	beforeCreateTxn func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		workers:  make(map[string]*dbmodel.Worker),
		sessions: make(map[string]*dbmodel.AdminSession),
	}
}

func (f *fakeStore) CreateWorker(worker *dbmodel.Worker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workers[worker.WorkerID] = worker
	return nil
}

func (f *fakeStore) GetWorker(workerID string) (*dbmodel.Worker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	worker, ok := f.workers[workerID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *worker
	return &copied, nil
}

func (f *fakeStore) GrantReferralCredit(workerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	worker, ok := f.workers[workerID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	worker.ReferralCredits++
	return nil
}

func (f *fakeStore) CreateTransaction(txn *dbmodel.PendingTransaction) error {
	f.mu.Lock()
	hook := f.beforeCreateTxn
	f.beforeCreateTxn = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.txns {
		if existing.IdempotencyKey == txn.IdempotencyKey {
			return gorm.ErrDuplicatedKey
		}
	}
	f.nextID++
	txn.ID = f.nextID
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now()
	}
	copied := *txn
	f.txns = append(f.txns, &copied)
	return nil
}

func (f *fakeStore) find(match func(*dbmodel.PendingTransaction) bool) (*dbmodel.PendingTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, txn := range f.txns {
		if match(txn) {
			copied := *txn
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeStore) GetTransaction(id uint) (*dbmodel.PendingTransaction, error) {
	return f.find(func(t *dbmodel.PendingTransaction) bool { return t.ID == id })
}

func (f *fakeStore) GetTransactionByIdempotencyKey(key string) (*dbmodel.PendingTransaction, error) {
	return f.find(func(t *dbmodel.PendingTransaction) bool { return t.IdempotencyKey == key })
}

func (f *fakeStore) GetTransactionByCorrelationID(correlationID string) (*dbmodel.PendingTransaction, error) {
	return f.find(func(t *dbmodel.PendingTransaction) bool { return t.CorrelationID == correlationID })
}

func (f *fakeStore) GetPendingByCorrelationID(correlationID string) (*dbmodel.PendingTransaction, error) {
	return f.find(func(t *dbmodel.PendingTransaction) bool {
		return t.CorrelationID == correlationID && t.Status == dbmodel.TransactionPending
	})
}

func (f *fakeStore) ListOrphans(olderThan time.Time) ([]dbmodel.PendingTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []dbmodel.PendingTransaction
	for _, txn := range f.txns {
		if txn.Status == dbmodel.TransactionPending && txn.CreatedAt.Before(olderThan) {
			out = append(out, *txn)
		}
	}
	return out, nil
}

func (f *fakeStore) CompleteTransaction(id uint, workerID string, fin dbmodel.Finalization) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var txn *dbmodel.PendingTransaction
	for _, t := range f.txns {
		if t.ID == id {
			txn = t
			break
		}
	}
	if txn == nil || txn.Status != dbmodel.TransactionPending {
		return db.ErrAlreadyFinalized
	}

	worker := f.workers[workerID]
	if fin.UsedReferralCredit {
		if worker == nil || worker.ReferralCredits <= 0 {
			return db.ErrNoReferralCredit
		}
		worker.ReferralCredits--
	}

	txn.Status = dbmodel.TransactionCompleted
	txn.Commission = fin.Commission
	txn.Payout = fin.Payout
	txn.UsedReferralCredit = fin.UsedReferralCredit
	txn.ReceiptNumber = fin.ReceiptNumber
	txn.ResultDescription = fin.ResultDescription
	txn.RawGatewayPayload = fin.RawGatewayPayload

	if worker != nil {
		worker.TipCount++
		worker.TotalTips += fin.Payout + fin.Commission
		worker.TotalPayout += fin.Payout
	}
	return nil
}

func (f *fakeStore) FailTransaction(id uint, description, rawPayload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, txn := range f.txns {
		if txn.ID == id {
			if txn.Status != dbmodel.TransactionPending {
				return db.ErrAlreadyFinalized
			}
			txn.Status = dbmodel.TransactionFailed
			txn.ResultDescription = description
			txn.RawGatewayPayload = rawPayload
			return nil
		}
	}
	return db.ErrAlreadyFinalized
}

func (f *fakeStore) SaveAdminSession(session *dbmodel.AdminSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[session.Token] = session
	return nil
}

func (f *fakeStore) GetAdminSession(token string) (*dbmodel.AdminSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[token]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return session, nil
}

// fakeGateway scripts push and status-query outcomes.
type fakeGateway struct {
	mu          sync.Mutex
	pushErr     error
	pushes      []string // references, in call order
	nextSeq     int
	statusResp  *gateway.StatusResponse
	statusErr   error
	statusCalls int
}

func (f *fakeGateway) Push(ctx context.Context, phoneNumber string, amount int64, reference, description string) (*gateway.PushResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	f.nextSeq++
	f.pushes = append(f.pushes, reference)
	return &gateway.PushResponse{
		CorrelationID:       "ws_CO_" + reference,
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
	}, nil
}

func (f *fakeGateway) QueryStatus(ctx context.Context, correlationID string) (*gateway.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	if f.statusResp != nil {
		return f.statusResp, nil
	}
	return &gateway.StatusResponse{CorrelationID: correlationID, Pending: true}, nil
}
