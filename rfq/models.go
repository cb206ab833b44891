package rfq

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the RFQ lifecycle state. Transitions follow the DAG encoded in
// status.go and never regress; closed and cancelled are terminal.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusSubmitted       Status = "submitted"
	StatusUnderReview     Status = "under_review"
	StatusInvited         Status = "invited"
	StatusOffersPublished Status = "offers_published"
	StatusAccepted        Status = "accepted"
	StatusInProduction    Status = "in_production"
	StatusInspection      Status = "inspection"
	StatusShipped         Status = "shipped"
	StatusDelivered       Status = "delivered"
	StatusClosed          Status = "closed"
	StatusCancelled       Status = "cancelled"
)

// RFQ mirrors the rfqs table. Details is an opaque structured blob (industry,
// process, line items, file refs) the core never inspects.
type RFQ struct {
	ID           string
	BuyerID      string
	Status       Status
	Details      map[string]any
	BudgetMin    *decimal.Decimal
	BudgetMax    *decimal.Decimal
	Currency     string
	NDARequired  bool
	Confidential bool
	CancelReason *string
	Version      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type InviteStatus string

const (
	InviteStatusInvited   InviteStatus = "invited"
	InviteStatusResponded InviteStatus = "responded"
	InviteStatusDeclined  InviteStatus = "declined"
)

// Invite links one supplier to one RFQ; at most one per (rfq, supplier) pair.
type Invite struct {
	ID         string
	RFQID      string
	SupplierID string
	Status     InviteStatus
	RespondBy  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Quote is one supplier bid version. Quotes are immutable once submitted; a
// revised bid is a new row with the next version number.
type Quote struct {
	ID           string
	InviteID     string
	Price        decimal.Decimal
	Currency     string
	LeadTimeDays int
	Terms        string
	Version      int
	CreatedAt    time.Time
}
