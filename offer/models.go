package offer

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the curated-offer lifecycle state. At most one offer per RFQ is
// active at a time; publishing a replacement expires the predecessor.
type Status string

const (
	StatusActive    Status = "active"
	StatusAccepted  Status = "accepted"
	StatusExpired   Status = "expired"
	StatusWithdrawn Status = "withdrawn"
)

// Offer mirrors the curated_offers table: an admin-assembled price/terms
// package derived from supplier quotes, split into an advance and a final
// payment.
type Offer struct {
	ID              string
	RFQID           string
	SupplierID      *string
	Price           decimal.Decimal
	Currency        string
	Terms           string
	PaymentLink     string
	AdvanceAmount   decimal.Decimal
	FinalAmount     decimal.Decimal
	PaymentDeadline *time.Time
	Status          Status
	PublishedAt     time.Time
	ExpiresAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
