package earlypay

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"rfqflow/notification"
)

// ErrIneligible signals a failed precondition; the wrap names the first one
// that failed.
var ErrIneligible = errors.New("earlypay: ineligible")

// Payout is the computed discount split for an accepted request.
type Payout struct {
	Discount  decimal.Decimal
	NetPayout decimal.Decimal
}

// Store persists accepted requests.
type Store interface {
	Insert(ctx context.Context, r Request) (Request, error)
	Get(ctx context.Context, supplierID, id string) (Request, error)
	ListForSupplier(ctx context.Context, supplierID string, limit int) ([]Request, error)
}

// Notifier delivers best-effort notifications.
type Notifier interface {
	Dispatch(ctx context.Context, e notification.Event)
}

// Service evaluates accelerated-payout requests. It never touches the order or
// the payment ledger; an accepted request is only queued for downstream
// settlement.
type Service struct {
	store    Store
	notifier Notifier
}

func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// Evaluate checks the preconditions in a fixed order and returns the payout
// split, or ErrIneligible naming the first failing precondition.
func Evaluate(d Draft) (Payout, error) {
	if !d.DeliveredConfirmed {
		return Payout{}, fmt.Errorf("%w: delivery not confirmed", ErrIneligible)
	}
	if !d.BuyerInvoiceApproved {
		return Payout{}, fmt.Errorf("%w: buyer invoice not approved", ErrIneligible)
	}
	if !d.Amount.IsPositive() {
		return Payout{}, fmt.Errorf("%w: amount must be positive", ErrIneligible)
	}
	if d.ExpectedDays < MinExpectedDays || d.ExpectedDays > MaxExpectedDays {
		return Payout{}, fmt.Errorf("%w: expected days must be between %d and %d",
			ErrIneligible, MinExpectedDays, MaxExpectedDays)
	}

	discount := d.Amount.Mul(DiscountRate)
	return Payout{
		Discount:  discount,
		NetPayout: d.Amount.Sub(discount),
	}, nil
}

// Submit evaluates the draft and, on acceptance, persists the request in
// submitted state.
func (s *Service) Submit(ctx context.Context, d Draft) (Request, error) {
	if d.SupplierID == "" {
		return Request{}, fmt.Errorf("earlypay: missing supplier id")
	}
	if d.InvoiceNumber == "" {
		return Request{}, fmt.Errorf("earlypay: missing invoice number")
	}
	if d.Currency == "" {
		return Request{}, fmt.Errorf("earlypay: missing currency")
	}

	payout, err := Evaluate(d)
	if err != nil {
		return Request{}, err
	}

	req := Request{
		SupplierID:           d.SupplierID,
		InvoiceNumber:        d.InvoiceNumber,
		Amount:               d.Amount,
		Currency:             d.Currency,
		DeliveredConfirmed:   d.DeliveredConfirmed,
		BuyerInvoiceApproved: d.BuyerInvoiceApproved,
		ExpectedDays:         d.ExpectedDays,
		Discount:             payout.Discount,
		NetPayout:            payout.NetPayout,
		Status:               StatusSubmitted,
	}
	if d.OrderID != "" {
		orderID := d.OrderID
		req.OrderID = &orderID
	}

	created, err := s.store.Insert(ctx, req)
	if err != nil {
		return Request{}, err
	}

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, notification.Event{
			UserID:     created.SupplierID,
			Type:       notification.TypePayoutProcessed,
			Title:      "EarlyPay request submitted",
			Message:    fmt.Sprintf("Net payout %s %s after %s discount", created.NetPayout.StringFixed(2), created.Currency, created.Discount.StringFixed(2)),
			EntityID:   created.ID,
			EntityType: notification.EntityEarlyPay,
		})
	}

	return created, nil
}

func (s *Service) Get(ctx context.Context, supplierID, id string) (Request, error) {
	return s.store.Get(ctx, supplierID, id)
}

func (s *Service) ListForSupplier(ctx context.Context, supplierID string, limit int) ([]Request, error) {
	return s.store.ListForSupplier(ctx, supplierID, limit)
}
