// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency represents a recorded result of a previously processed checkout
// request, keyed by (email, reference, key). It enables safe retries of
// POST /transactions: a retried create with the same Idempotency-Key returns
// the originally recorded transaction without inserting a second row.
type Idempotency struct {
	ID            string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Email         string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_email_ref_key,priority:1"`
	Reference     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_email_ref_key,priority:2"`
	Key           string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_email_ref_key,priority:3"`
	TransactionID string    `gorm:"type:TEXT NOT NULL"`
	Status        int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt     time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt     time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
