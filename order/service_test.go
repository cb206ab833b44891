package order

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"rfqflow/notification"
	"rfqflow/payment"
)

func TestTransition_DepositGateBlocksUnderpayment(t *testing.T) {
	store := &fakeStore{
		order:   Order{ID: "ord-1", Status: StatusCreated, Version: 1},
		advance: decimal.NewFromInt(30000),
	}
	balances := &fakeBalances{
		balance: payment.Balance{
			PaidAmount:      decimal.NewFromInt(20000),
			RemainingAmount: decimal.NewFromInt(80000),
		},
	}
	svc := NewService(&fakePool{}, store, balances, nil)

	_, err := svc.Transition(context.Background(), TransitionParams{
		OrderID: "ord-1",
		Target:  StatusDepositPaid,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if store.updates != 0 {
		t.Fatal("gate failure must not write")
	}
}

func TestTransition_DepositGatePassesAtAdvance(t *testing.T) {
	store := &fakeStore{
		order:   Order{ID: "ord-1", BuyerID: "buyer-1", Status: StatusCreated, Version: 1},
		advance: decimal.NewFromInt(30000),
	}
	balances := &fakeBalances{
		balance: payment.Balance{
			PaidAmount:      decimal.NewFromInt(30000),
			RemainingAmount: decimal.NewFromInt(70000),
		},
	}
	svc := NewService(&fakePool{}, store, balances, nil)

	updated, err := svc.Transition(context.Background(), TransitionParams{
		OrderID: "ord-1",
		Target:  StatusDepositPaid,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.Status != StatusDepositPaid {
		t.Fatalf("expected deposit_paid, got %s", updated.Status)
	}
}

func TestTransition_CloseRequiresZeroRemaining(t *testing.T) {
	store := &fakeStore{
		order: Order{ID: "ord-1", Status: StatusDelivered, Version: 7},
	}
	balances := &fakeBalances{
		balance: payment.Balance{
			PaidAmount:      decimal.NewFromInt(29100),
			RemainingAmount: decimal.NewFromInt(70900),
		},
	}
	svc := NewService(&fakePool{}, store, balances, nil)

	_, err := svc.Transition(context.Background(), TransitionParams{
		OrderID: "ord-1",
		Target:  StatusClosed,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	balances.balance = payment.Balance{
		PaidAmount:      decimal.NewFromInt(100000),
		RemainingAmount: decimal.Zero,
		IsFullyPaid:     true,
	}
	updated, err := svc.Transition(context.Background(), TransitionParams{
		OrderID: "ord-1",
		Target:  StatusClosed,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if updated.Status != StatusClosed {
		t.Fatalf("expected closed, got %s", updated.Status)
	}
}

func TestTransition_CloseRejectedWhenNothingPaid(t *testing.T) {
	store := &fakeStore{
		order: Order{ID: "ord-1", Status: StatusDelivered, Version: 7},
	}
	balances := &fakeBalances{
		balance: payment.Balance{
			PaidAmount:      decimal.Zero,
			RemainingAmount: decimal.Zero,
		},
	}
	svc := NewService(&fakePool{}, store, balances, nil)

	_, err := svc.Transition(context.Background(), TransitionParams{
		OrderID: "ord-1",
		Target:  StatusClosed,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for zero-value ledger, got %v", err)
	}
}

func TestTransition_CloseGateReadsBalanceAfterLock(t *testing.T) {
	store := &fakeStore{
		order: Order{ID: "ord-1", Status: StatusDelivered, Version: 7},
	}
	balances := &fakeBalances{
		balance: payment.Balance{
			PaidAmount:      decimal.NewFromInt(100000),
			RemainingAmount: decimal.Zero,
			IsFullyPaid:     true,
		},
	}
	// A refund completing while the close is in flight must be seen: the
	// gate reads the ledger only after the order row is held.
	store.onGetForUpdate = func() {
		balances.balance = payment.Balance{
			PaidAmount:      decimal.NewFromInt(70900),
			RemainingAmount: decimal.NewFromInt(29100),
		}
	}
	svc := NewService(&fakePool{}, store, balances, nil)

	_, err := svc.Transition(context.Background(), TransitionParams{
		OrderID: "ord-1",
		Target:  StatusClosed,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if store.updates != 0 {
		t.Fatal("order must not close with money outstanding")
	}
}

func TestTransition_SameStateIsNoOp(t *testing.T) {
	store := &fakeStore{
		order: Order{ID: "ord-1", Status: StatusProduction, Version: 3},
	}
	svc := NewService(&fakePool{}, store, &fakeBalances{}, nil)

	got, err := svc.Transition(context.Background(), TransitionParams{
		OrderID: "ord-1",
		Target:  StatusProduction,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if got.Version != 3 || store.updates != 0 {
		t.Fatalf("no-op must return the unchanged row without writing, got %+v updates=%d", got, store.updates)
	}
}

func TestTransition_CancelBlockedAfterDelivery(t *testing.T) {
	store := &fakeStore{
		order: Order{ID: "ord-1", Status: StatusDelivered, Version: 6},
	}
	svc := NewService(&fakePool{}, store, &fakeBalances{}, nil)

	_, err := svc.Transition(context.Background(), TransitionParams{
		OrderID: "ord-1",
		Target:  StatusCancelled,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransition_StaleVersionConflicts(t *testing.T) {
	store := &fakeStore{
		order: Order{ID: "ord-1", Status: StatusProduction, Version: 4},
	}
	svc := NewService(&fakePool{}, store, &fakeBalances{}, nil)

	_, err := svc.Transition(context.Background(), TransitionParams{
		OrderID:         "ord-1",
		Target:          StatusInspection,
		ExpectedVersion: 2,
	})
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}

func TestTransition_NotifiesBothParties(t *testing.T) {
	supplierID := "supplier-1"
	store := &fakeStore{
		order: Order{
			ID:         "ord-1",
			BuyerID:    "buyer-1",
			SupplierID: &supplierID,
			Status:     StatusProduction,
			Version:    3,
		},
	}
	notifier := &captureNotifier{}
	svc := NewService(&fakePool{}, store, &fakeBalances{}, notifier)

	if _, err := svc.Transition(context.Background(), TransitionParams{
		OrderID: "ord-1",
		Target:  StatusInspection,
	}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if len(notifier.events) != 2 {
		t.Fatalf("expected buyer and supplier events, got %d", len(notifier.events))
	}
	if notifier.events[0].UserID != "buyer-1" || notifier.events[1].UserID != "supplier-1" {
		t.Fatalf("unexpected recipients: %+v", notifier.events)
	}
}

func TestAppendProductionUpdate_NeverMovesStatus(t *testing.T) {
	store := &fakeStore{
		order: Order{ID: "ord-1", BuyerID: "buyer-1", Status: StatusProduction, Version: 3},
	}
	notifier := &captureNotifier{}
	svc := NewService(&fakePool{}, store, &fakeBalances{}, notifier)

	update, err := svc.AppendProductionUpdate(context.Background(), "ord-1", "machining", "cnc pass 2 of 3")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if update.Stage != "machining" {
		t.Fatalf("unexpected update: %+v", update)
	}
	if store.updates != 0 {
		t.Fatal("production updates must not touch the status")
	}
	if len(notifier.events) != 1 || notifier.events[0].Type != notification.TypeProductionUpdate {
		t.Fatalf("expected one production-update notification, got %+v", notifier.events)
	}
}

func TestAppendProductionUpdate_RequiresStage(t *testing.T) {
	svc := NewService(&fakePool{}, &fakeStore{}, &fakeBalances{}, nil)

	if _, err := svc.AppendProductionUpdate(context.Background(), "ord-1", "", "detail"); err == nil {
		t.Fatal("expected error for empty stage")
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusCreated, StatusDepositPaid, true},
		{StatusDepositPaid, StatusProduction, true},
		{StatusProduction, StatusInspection, true},
		{StatusInspection, StatusShipped, true},
		{StatusShipped, StatusDelivered, true},
		{StatusDelivered, StatusClosed, true},
		{StatusCreated, StatusProduction, false},
		{StatusShipped, StatusProduction, false},
		{StatusProduction, StatusCancelled, true},
		{StatusDelivered, StatusCancelled, false},
		{StatusClosed, StatusCancelled, false},
		{StatusCancelled, StatusCreated, false},
	}

	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

type captureNotifier struct {
	events []notification.Event
}

func (c *captureNotifier) Dispatch(_ context.Context, e notification.Event) {
	c.events = append(c.events, e)
}

type fakeStore struct {
	order          Order
	getErr         error
	advance        decimal.Decimal
	updates        int
	onGetForUpdate func()
}

func (f *fakeStore) Get(_ context.Context, _ string) (Order, error) {
	return f.order, f.getErr
}

func (f *fakeStore) GetForUpdate(_ context.Context, _ pgx.Tx, _ string) (Order, error) {
	if f.onGetForUpdate != nil {
		f.onGetForUpdate()
	}
	return f.order, f.getErr
}

func (f *fakeStore) UpdateStatus(_ context.Context, _ pgx.Tx, _ string, version int, status Status) (Order, error) {
	f.updates++
	updated := f.order
	updated.Status = status
	updated.Version = version + 1
	f.order = updated
	return updated, nil
}

func (f *fakeStore) AdvanceAmount(_ context.Context, _ string) (decimal.Decimal, error) {
	return f.advance, nil
}

func (f *fakeStore) AppendProductionUpdate(_ context.Context, orderID, stage, detail string) (ProductionUpdate, error) {
	return ProductionUpdate{ID: "upd-1", OrderID: orderID, Stage: stage, Detail: detail}, nil
}

type fakeBalances struct {
	balance payment.Balance
}

func (f *fakeBalances) OrderBalance(_ context.Context, _ string) (payment.Balance, error) {
	return f.balance, nil
}

type fakePool struct {
	tx *fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = &fakeTx{}
	return f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
