package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the order lifecycle state. Orders are created exclusively by offer
// acceptance and move forward along the DAG in status.go.
type Status string

const (
	StatusCreated     Status = "created"
	StatusDepositPaid Status = "deposit_paid"
	StatusProduction  Status = "production"
	StatusInspection  Status = "inspection"
	StatusShipped     Status = "shipped"
	StatusDelivered   Status = "delivered"
	StatusClosed      Status = "closed"
	StatusCancelled   Status = "cancelled"
)

// Order mirrors the orders table. Status is mutated only by the lifecycle
// service; both buyer and supplier read it.
type Order struct {
	ID             string
	CuratedOfferID string
	RFQID          string
	BuyerID        string
	SupplierID     *string
	TotalAmount    decimal.Decimal
	Currency       string
	Status         Status
	DepositPaid    bool
	DeliveredAt    *time.Time
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ProductionUpdate is one append-only audit entry. Updates never move the
// order status by themselves.
type ProductionUpdate struct {
	ID        string
	OrderID   string
	Stage     string
	Detail    string
	CreatedAt time.Time
}
