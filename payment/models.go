package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a single ledger entry. Entries only move
// forward: pending -> processing -> completed, or any non-terminal state to
// failed/cancelled. Completed and refunded entries are immutable.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// Type classifies what a transaction pays for. Refund entries subtract from
// the reconciled total instead of adding to it.
type Type string

const (
	TypeAdvancePayment Type = "advance_payment"
	TypeFinalPayment   Type = "final_payment"
	TypeFullPayment    Type = "full_payment"
	TypeRefund         Type = "refund"
	TypeCommission     Type = "commission"
)

// Transaction mirrors the payment_transactions table.
type Transaction struct {
	ID             string
	TransactionRef string
	OrderID        *string
	CuratedOfferID *string
	Amount         decimal.Decimal
	Fees           decimal.Decimal
	NetAmount      decimal.Decimal
	Currency       string
	Status         Status
	Type           Type
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Balance is the reconciled view over an order's ledger. RemainingAmount is
// clamped at zero; gateway overpayment surfaces through Overpaid instead of a
// negative remainder.
type Balance struct {
	TotalAmount     decimal.Decimal
	PaidAmount      decimal.Decimal
	RemainingAmount decimal.Decimal
	Currency        string
	IsFullyPaid     bool
	Overpaid        bool
}

// RollupStatus is the derived payment status for an order. It is computed from
// the transaction set on every read and never stored.
type RollupStatus string

const (
	RollupNotStarted RollupStatus = "not_started"
	RollupPartial    RollupStatus = "partial"
	RollupCompleted  RollupStatus = "completed"
)

func validStatus(s Status) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

func validType(t Type) bool {
	switch t {
	case TypeAdvancePayment, TypeFinalPayment, TypeFullPayment, TypeRefund, TypeCommission:
		return true
	}
	return false
}

// immutable reports whether an entry may never change again. Failed and
// cancelled entries are also terminal but attempts against them surface as
// invalid transitions rather than immutability violations.
func immutable(s Status) bool {
	return s == StatusCompleted || s == StatusRefunded
}

func terminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// canTransition encodes the monotonic status machine for ledger entries.
// Same-state replays are handled by the caller before reaching here.
func canTransition(from, to Status) bool {
	if terminal(from) {
		return false
	}
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	}
	return false
}
