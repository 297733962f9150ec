package model

import "time"

// Worker is the tip recipient. ReferralCredits is granted when another worker
// signs up with this worker's id and is consumed, one per completed tip, to
// waive the commission on that tip.
type Worker struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	WorkerID    string `gorm:"uniqueIndex;not null" json:"worker_id"` // public id printed on the QR sticker
	Name        string `json:"name"`
	PhoneNumber string `gorm:"not null" json:"phone_number"` // mobile-money payout destination
	Occupation  string `json:"occupation"`

	ReferredBy      string `gorm:"index" json:"referred_by"` // worker_id of the referrer, if any
	ReferralCredits int    `gorm:"default:0" json:"referral_credits"`

	TipCount    int64 `gorm:"default:0" json:"tip_count"`
	TotalTips   int64 `gorm:"default:0" json:"total_tips"`   // gross confirmed amounts
	TotalPayout int64 `gorm:"default:0" json:"total_payout"` // net of commission
}

func (Worker) TableName() string { return "workers" }
