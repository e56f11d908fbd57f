// Package domain defines the persistence models for products and purchase
// transactions. These types are mapped with GORM and form the core data layer
// of the storefront application.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product represents a purchasable digital item. The backing file lives in a
// private object store; its path is never serialized to clients and is only
// ever resolved into a short-lived signed URL by the download service.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Title / Description: catalog metadata shown to buyers.
//   - Price: positive decimal amount in the deployment's configured currency.
//   - ThumbnailURL: publicly reachable preview image.
//   - FilePath: private object-store path of the deliverable (json:"-").
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker. Deleted products stay as an audit row
//     but no longer resolve for downloads.
type Product struct {
	ID           string          `json:"id"            gorm:"type:char(36);primaryKey"`
	Title        string          `json:"title"         gorm:"type:varchar(255);not null"`
	Description  string          `json:"description"   gorm:"type:text"`
	Price        decimal.Decimal `json:"price"         gorm:"type:decimal(12,2);not null"`
	ThumbnailURL string          `json:"thumbnail_url" gorm:"type:text"`
	FilePath     string          `json:"-"             gorm:"type:text;not null"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `json:"-"             gorm:"index"`
}

// TableName returns the database table name for Product.
func (Product) TableName() string { return "products" }

// Transaction records one purchase attempt. The Reference is supplied by the
// checkout flow, shared with the payment gateway, and acts as the correlation
// key for verification. A download token exists if and only if the
// transaction has been verified, and it is assigned exactly once.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - Email: purchaser address used by the payment gateway.
//   - ProductID: foreign key to the purchased product.
//   - Reference: checkout correlation key; unique across all transactions.
//   - Verified: set to true by the ledger's verify operation only.
//   - DownloadToken: unguessable capability string, nil until verified.
//   - DownloadCount: number of successful signed-URL resolutions (audit).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//
// Rows are never deleted by normal flow; they are the audit trail.
type Transaction struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	Email         string    `json:"email"          gorm:"type:varchar(255);not null;index"`
	ProductID     string    `json:"product_id"     gorm:"type:char(36);not null;index"`
	Reference     string    `json:"reference"      gorm:"type:varchar(128);not null;uniqueIndex:ux_tx_reference"`
	Verified      bool      `json:"verified"       gorm:"not null;default:false"`
	DownloadToken *string   `json:"download_token,omitempty" gorm:"type:varchar(64);uniqueIndex:ux_tx_token"`
	DownloadCount uint64    `json:"download_count" gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// Product is the purchased item. The association stays for referential
	// integrity; transactions survive product deletion (soft delete) so the
	// ledger remains a complete audit trail.
	Product Product `json:"-" gorm:"foreignKey:ProductID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Transaction.
func (Transaction) TableName() string { return "transactions" }

// SignedURL is the ephemeral result of resolving a download token. It is
// never persisted; every resolution produces a fresh URL with a fresh expiry.
type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
