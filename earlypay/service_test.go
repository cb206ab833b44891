package earlypay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"rfqflow/notification"
)

func eligibleDraft() Draft {
	return Draft{
		SupplierID:           "supplier-1",
		OrderID:              "ord-1",
		InvoiceNumber:        "INV-9",
		Amount:               decimal.NewFromInt(250000),
		Currency:             "INR",
		DeliveredConfirmed:   true,
		BuyerInvoiceApproved: true,
		ExpectedDays:         3,
	}
}

func TestEvaluate_ComputesPayoutSplit(t *testing.T) {
	payout, err := Evaluate(eligibleDraft())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if !payout.Discount.Equal(decimal.NewFromInt(7500)) {
		t.Fatalf("expected discount 7500, got %s", payout.Discount)
	}
	if !payout.NetPayout.Equal(decimal.NewFromInt(242500)) {
		t.Fatalf("expected net payout 242500, got %s", payout.NetPayout)
	}
}

func TestEvaluate_DiscountPlusNetEqualsAmount(t *testing.T) {
	for _, raw := range []string{"1", "999.99", "250000", "33333.33"} {
		d := eligibleDraft()
		d.Amount = decimal.RequireFromString(raw)
		payout, err := Evaluate(d)
		if err != nil {
			t.Fatalf("amount %s: %v", raw, err)
		}
		if !payout.Discount.Add(payout.NetPayout).Equal(d.Amount) {
			t.Fatalf("amount %s: split %s + %s does not restore the amount", raw, payout.Discount, payout.NetPayout)
		}
	}
}

func TestEvaluate_PreconditionOrder(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(d *Draft)
		fragment string
	}{
		{"delivery unconfirmed", func(d *Draft) { d.DeliveredConfirmed = false }, "delivery not confirmed"},
		{"invoice unapproved", func(d *Draft) { d.BuyerInvoiceApproved = false }, "invoice not approved"},
		{"zero amount", func(d *Draft) { d.Amount = decimal.Zero }, "amount must be positive"},
		{"window too short", func(d *Draft) { d.ExpectedDays = 1 }, "expected days"},
		{"window too long", func(d *Draft) { d.ExpectedDays = 6 }, "expected days"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := eligibleDraft()
			tc.mutate(&d)
			_, err := Evaluate(d)
			if !errors.Is(err, ErrIneligible) {
				t.Fatalf("expected ErrIneligible, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.fragment) {
				t.Fatalf("expected error naming %q, got %q", tc.fragment, err.Error())
			}
		})
	}
}

func TestEvaluate_ChecksDeliveryBeforeAll(t *testing.T) {
	d := eligibleDraft()
	d.DeliveredConfirmed = false
	d.BuyerInvoiceApproved = false
	d.Amount = decimal.Zero

	_, err := Evaluate(d)
	if err == nil || !strings.Contains(err.Error(), "delivery not confirmed") {
		t.Fatalf("expected the first failing precondition to be named, got %v", err)
	}
}

func TestSubmit_PersistsSubmittedRequest(t *testing.T) {
	store := &fakeStore{}
	notifier := &captureNotifier{}
	svc := NewService(store, notifier)

	created, err := svc.Submit(context.Background(), eligibleDraft())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if created.Status != StatusSubmitted {
		t.Fatalf("expected submitted, got %s", created.Status)
	}
	if created.OrderID == nil || *created.OrderID != "ord-1" {
		t.Fatalf("expected order reference, got %+v", created)
	}
	if !created.NetPayout.Equal(decimal.NewFromInt(242500)) {
		t.Fatalf("expected net payout 242500, got %s", created.NetPayout)
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != notification.TypePayoutProcessed {
		t.Fatalf("expected payout notification, got %+v", notifier.events)
	}
}

func TestSubmit_IneligibleDraftIsNotPersisted(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, nil)

	d := eligibleDraft()
	d.DeliveredConfirmed = false
	_, err := svc.Submit(context.Background(), d)
	if !errors.Is(err, ErrIneligible) {
		t.Fatalf("expected ErrIneligible, got %v", err)
	}
	if store.inserts != 0 {
		t.Fatal("ineligible draft must not be written")
	}
}

func TestSubmit_RequiresInvoiceNumber(t *testing.T) {
	svc := NewService(&fakeStore{}, nil)

	d := eligibleDraft()
	d.InvoiceNumber = ""
	if _, err := svc.Submit(context.Background(), d); err == nil {
		t.Fatal("expected error for missing invoice number")
	}
}

type captureNotifier struct {
	events []notification.Event
}

func (c *captureNotifier) Dispatch(_ context.Context, e notification.Event) {
	c.events = append(c.events, e)
}

type fakeStore struct {
	inserts int
	last    Request
}

func (f *fakeStore) Insert(_ context.Context, r Request) (Request, error) {
	f.inserts++
	r.ID = "ep-1"
	f.last = r
	return r, nil
}

func (f *fakeStore) Get(_ context.Context, _, _ string) (Request, error) {
	return f.last, nil
}

func (f *fakeStore) ListForSupplier(_ context.Context, _ string, _ int) ([]Request, error) {
	return []Request{f.last}, nil
}
