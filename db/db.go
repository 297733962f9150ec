package db

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/hachizeus/ttip-backend/db/model"
)

var (
	ErrAlreadyFinalized = errors.New("transaction already finalized")
	ErrNoReferralCredit = errors.New("no referral credit left")
)

type Database struct {
	logger *log.Logger
	conn   *gorm.DB
}

func New(logger *log.Logger) *Database {
	return &Database{logger: logger}
}

func (d *Database) Init(dsn string) (err error) {
	cfg := &gorm.Config{TranslateError: true}
	d.conn, err = gorm.Open(postgres.Open(dsn), cfg)
	if err != nil {
		d.logger.Printf("Failed to connect to database: %v. Retrying in 5s...", err)
		time.Sleep(5 * time.Second)
		d.conn, err = gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return fmt.Errorf("could not connect to database: %w", err)
		}
	}

	d.logger.Println("Database connected successfully")

	// Migrate the schema
	return model.AutoMigrateAll(d.conn)
}

// Workers

func (d *Database) CreateWorker(worker *model.Worker) error {
	return d.conn.Create(worker).Error
}

func (d *Database) GetWorker(workerID string) (worker *model.Worker, err error) {
	worker = &model.Worker{}
	if err = d.conn.Where("worker_id = ?", workerID).First(worker).Error; err != nil {
		return nil, err
	}
	return
}

// GrantReferralCredit adds one credit to the referrer's balance.
func (d *Database) GrantReferralCredit(workerID string) error {
	res := d.conn.Model(&model.Worker{}).
		Where("worker_id = ?", workerID).
		Update("referral_credits", gorm.Expr("referral_credits + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Transactions

func (d *Database) CreateTransaction(txn *model.PendingTransaction) error {
	return d.conn.Create(txn).Error
}

func (d *Database) GetTransaction(id uint) (txn *model.PendingTransaction, err error) {
	txn = &model.PendingTransaction{}
	if err = d.conn.First(txn, id).Error; err != nil {
		return nil, err
	}
	return
}

func (d *Database) GetTransactionByIdempotencyKey(key string) (txn *model.PendingTransaction, err error) {
	txn = &model.PendingTransaction{}
	if err = d.conn.Where("idempotency_key = ?", key).First(txn).Error; err != nil {
		return nil, err
	}
	return
}

func (d *Database) GetTransactionByCorrelationID(correlationID string) (txn *model.PendingTransaction, err error) {
	txn = &model.PendingTransaction{}
	if err = d.conn.Where("correlation_id = ?", correlationID).First(txn).Error; err != nil {
		return nil, err
	}
	return
}

// GetPendingByCorrelationID only matches rows that have not been finalized yet,
// so a replayed callback for a finalized row finds nothing.
func (d *Database) GetPendingByCorrelationID(correlationID string) (txn *model.PendingTransaction, err error) {
	txn = &model.PendingTransaction{}
	err = d.conn.Where("correlation_id = ? AND status = ?", correlationID, model.TransactionPending).
		First(txn).Error
	if err != nil {
		return nil, err
	}
	return
}

// ListOrphans returns pending transactions older than the cutoff, newest first.
// These are rows whose callback never matched and which need manual attention.
func (d *Database) ListOrphans(olderThan time.Time) (txns []model.PendingTransaction, err error) {
	err = d.conn.Where("status = ? AND created_at < ?", model.TransactionPending, olderThan).
		Order("created_at DESC").
		Find(&txns).Error
	return
}

// CompleteTransaction commits the payout split, the worker credit consumption
// and the worker totals in one transaction. The status guard makes the whole
// unit run at most once per row: a second caller sees zero rows affected and
// gets ErrAlreadyFinalized.
func (d *Database) CompleteTransaction(id uint, workerID string, fin model.Finalization) error {
	return d.conn.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.PendingTransaction{}).
			Where("id = ? AND status = ?", id, model.TransactionPending).
			Updates(map[string]interface{}{
				"status":               model.TransactionCompleted,
				"commission":           fin.Commission,
				"payout":               fin.Payout,
				"used_referral_credit": fin.UsedReferralCredit,
				"receipt_number":       fin.ReceiptNumber,
				"result_description":   fin.ResultDescription,
				"raw_gateway_payload":  fin.RawGatewayPayload,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyFinalized
		}

		if fin.UsedReferralCredit {
			// Guard keeps the balance from ever going negative if the read
			// that chose the credit path raced another finalization.
			res = tx.Model(&model.Worker{}).
				Where("worker_id = ? AND referral_credits > 0", workerID).
				Update("referral_credits", gorm.Expr("referral_credits - 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrNoReferralCredit
			}
		}

		return tx.Model(&model.Worker{}).
			Where("worker_id = ?", workerID).
			Updates(map[string]interface{}{
				"tip_count":    gorm.Expr("tip_count + 1"),
				"total_tips":   gorm.Expr("total_tips + ?", fin.Payout+fin.Commission),
				"total_payout": gorm.Expr("total_payout + ?", fin.Payout),
			}).Error
	})
}

// FailTransaction flips a pending row to failed with the gateway's description.
func (d *Database) FailTransaction(id uint, description, rawPayload string) error {
	res := d.conn.Model(&model.PendingTransaction{}).
		Where("id = ? AND status = ?", id, model.TransactionPending).
		Updates(map[string]interface{}{
			"status":              model.TransactionFailed,
			"result_description":  description,
			"raw_gateway_payload": rawPayload,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyFinalized
	}
	return nil
}

// Admin sessions

func (d *Database) SaveAdminSession(session *model.AdminSession) error {
	return d.conn.Create(session).Error
}

func (d *Database) GetAdminSession(token string) (session *model.AdminSession, err error) {
	session = &model.AdminSession{}
	if err = d.conn.Where("token = ?", token).First(session).Error; err != nil {
		return nil, err
	}
	return
}

func (d *Database) CleanupExpiredSessions() error {
	return d.conn.Where("expires_at < ?", time.Now()).Delete(&model.AdminSession{}).Error
}
