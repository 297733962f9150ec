package server

import (
	"errors"

	"gorm.io/gorm"

	"github.com/hachizeus/ttip-backend/db"
	dbmodel "github.com/hachizeus/ttip-backend/db/model"
	"github.com/hachizeus/ttip-backend/gateway"
)

// Reconcile matches an inbound gateway confirmation to its pending transaction
// and finalizes it. The handler acknowledges the callback regardless of the
// outcome here, so the gateway never storms us with redeliveries; anything
// that cannot be matched is logged and left for the admin orphan view.
//
// The lookup hits the unique correlation_id index and only considers pending
// rows, so a redelivered callback for an already-finalized transaction finds
// nothing and the payout math runs at most once per row.
func (s *Service) Reconcile(body gateway.CallbackBody, rawPayload []byte) {
	txn, err := s.db.GetPendingByCorrelationID(body.CorrelationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Printf("Callback for unknown or finalized correlation id %s (result %d), dropping", body.CorrelationID, body.ResultCode)
			return
		}
		s.logger.Printf("Reconcile lookup failed for %s: %v", body.CorrelationID, err)
		return
	}

	if body.ResultCode != gateway.ResultSuccess {
		desc := body.ResultDesc
		if desc == "" {
			desc = gateway.DescribeResult(body.ResultCode)
		}
		if err := s.failTransaction(txn, desc, rawPayload); err != nil {
			s.logger.Printf("Failed to fail transaction %d: %v", txn.ID, err)
			return
		}
		s.logger.Printf("Tip failed for worker %s: correlation=%s reason=%s", txn.WorkerID, body.CorrelationID, desc)
		return
	}

	amount, ok := body.Amount()
	if !ok {
		// Confirmation without an Amount item; trust the amount we asked for.
		s.logger.Printf("Callback %s has no Amount metadata, using requested amount %d", body.CorrelationID, txn.Amount)
		amount = txn.Amount
	}

	err = s.completeTransaction(txn, amount, body.ReceiptNumber(), body.ResultDesc, s.mergeRawPayload(txn, rawPayload))
	if err != nil {
		if errors.Is(err, db.ErrAlreadyFinalized) {
			s.logger.Printf("Transaction %d already finalized, callback %s dropped", txn.ID, body.CorrelationID)
			return
		}
		s.logger.Printf("Failed to complete transaction %d: %v", txn.ID, err)
	}
}

func (s *Service) failTransaction(txn *dbmodel.PendingTransaction, desc string, rawPayload []byte) error {
	err := s.db.FailTransaction(txn.ID, desc, s.mergeRawPayload(txn, rawPayload))
	if errors.Is(err, db.ErrAlreadyFinalized) {
		return nil
	}
	return err
}
