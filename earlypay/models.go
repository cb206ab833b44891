package earlypay

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the settlement state of an accelerated-payout request. The core
// only ever creates requests in submitted state; downstream settlement moves
// them onward.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusPaid      Status = "paid"
	StatusRejected  Status = "rejected"
)

// DiscountRate is the fixed accelerated-payout discount.
var DiscountRate = decimal.NewFromFloat(0.03)

// Bounds for the expected payout window, in days.
const (
	MinExpectedDays = 2
	MaxExpectedDays = 5
)

// Request mirrors the earlypay_requests table.
type Request struct {
	ID                   string
	SupplierID           string
	OrderID              *string
	InvoiceNumber        string
	Amount               decimal.Decimal
	Currency             string
	DeliveredConfirmed   bool
	BuyerInvoiceApproved bool
	ExpectedDays         int
	Discount             decimal.Decimal
	NetPayout            decimal.Decimal
	Status               Status
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Draft is a supplier's accelerated-payout application before evaluation.
type Draft struct {
	SupplierID           string
	OrderID              string
	InvoiceNumber        string
	Amount               decimal.Decimal
	Currency             string
	DeliveredConfirmed   bool
	BuyerInvoiceApproved bool
	ExpectedDays         int
}
