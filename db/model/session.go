package model

import (
	"time"

	"gorm.io/gorm"
)

// AutoMigrateAll adds every model to the database
func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(&Worker{}, &PendingTransaction{}, &AdminSession{})
}

// AdminSession backs the bearer tokens for the administrative surface
// (orphan inspection and manual retries).
type AdminSession struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Token     string    `gorm:"uniqueIndex;not null" json:"token"`
	Subject   string    `gorm:"index;not null" json:"subject"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}
