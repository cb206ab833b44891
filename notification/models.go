package notification

import "time"

// Type names one member of the closed set of lifecycle/payment events the
// dispatcher understands.
type Type string

const (
	TypeRFQSubmitted        Type = "rfq_submitted"
	TypeRFQApproved         Type = "rfq_approved"
	TypeQuoteReceived       Type = "quote_received"
	TypeQuoteAccepted       Type = "quote_accepted"
	TypeQuoteRejected       Type = "quote_rejected"
	TypeSupplierInvited     Type = "supplier_invited"
	TypeSupplierVerified    Type = "supplier_verified"
	TypeOrderCreated        Type = "order_created"
	TypeOrderStatusChanged  Type = "order_status_changed"
	TypeProductionUpdate    Type = "production_update"
	TypeInspectionCompleted Type = "inspection_completed"
	TypePaymentReceived     Type = "payment_received"
	TypePayoutProcessed     Type = "payout_processed"
)

// Entity types referenced by notifications.
const (
	EntityRFQ      = "rfq"
	EntityOrder    = "order"
	EntityQuote    = "quote"
	EntityEarlyPay = "earlypay_request"
)

// Notification mirrors the notifications table. Rows are created only by the
// dispatcher and mutated only through the read-flag toggle.
type Notification struct {
	ID         string
	UserID     string
	Type       Type
	Title      string
	Message    string
	IsRead     bool
	EntityID   *string
	EntityType *string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// Event is one dispatch request: a user, an event type, and the entity the
// event happened on. (UserID, EntityID, EntityType, Type) is the dedup key.
type Event struct {
	UserID     string
	Type       Type
	Title      string
	Message    string
	EntityID   string
	EntityType string
	Metadata   map[string]any
}

func validType(t Type) bool {
	switch t {
	case TypeRFQSubmitted, TypeRFQApproved, TypeQuoteReceived, TypeQuoteAccepted,
		TypeQuoteRejected, TypeSupplierInvited, TypeSupplierVerified, TypeOrderCreated,
		TypeOrderStatusChanged, TypeProductionUpdate, TypeInspectionCompleted,
		TypePaymentReceived, TypePayoutProcessed:
		return true
	}
	return false
}
