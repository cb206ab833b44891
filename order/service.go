package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"rfqflow/notification"
	"rfqflow/payment"
)

// ErrInvalidTransition signals a lifecycle move not adjacent in the DAG or one
// whose payment gate is not satisfied.
var ErrInvalidTransition = errors.New("order: invalid transition")

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the data access the lifecycle service needs.
type Store interface {
	Get(ctx context.Context, id string) (Order, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Order, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, version int, status Status) (Order, error)
	AdvanceAmount(ctx context.Context, orderID string) (decimal.Decimal, error)
	AppendProductionUpdate(ctx context.Context, orderID, stage, detail string) (ProductionUpdate, error)
}

// BalanceSource is the reconciliation engine surface the lifecycle gates read.
type BalanceSource interface {
	OrderBalance(ctx context.Context, orderID string) (payment.Balance, error)
}

// Notifier delivers best-effort notifications after commit.
type Notifier interface {
	Dispatch(ctx context.Context, e notification.Event)
}

// Service owns order lifecycle transitions and the production audit trail.
// Payment-gated moves (deposit_paid, closed) consult the reconciliation engine
// rather than any stored rollup.
type Service struct {
	pool     TxBeginner
	store    Store
	balances BalanceSource
	notifier Notifier
}

func NewService(pool TxBeginner, store Store, balances BalanceSource, notifier Notifier) *Service {
	return &Service{
		pool:     pool,
		store:    store,
		balances: balances,
		notifier: notifier,
	}
}

// TransitionParams names one requested lifecycle move. ExpectedVersion, when
// non-zero, must match the version the caller last read.
type TransitionParams struct {
	OrderID         string
	Target          Status
	ActorID         string
	ExpectedVersion int
}

// Transition applies one status move validated against the DAG and payment
// gates. Re-entering the current state is a no-op returning the unchanged row.
func (s *Service) Transition(ctx context.Context, params TransitionParams) (Order, error) {
	if params.OrderID == "" {
		return Order{}, fmt.Errorf("order: missing order id")
	}
	if !ValidStatus(params.Target) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, params.Target)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Order{}, fmt.Errorf("order: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.store.GetForUpdate(ctx, tx, params.OrderID)
	if err != nil {
		return Order{}, err
	}
	if params.ExpectedVersion != 0 && params.ExpectedVersion != current.Version {
		return Order{}, ErrConcurrentModification
	}
	if current.Status == params.Target {
		return current, nil
	}
	if !CanTransition(current.Status, params.Target) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, params.Target)
	}
	if err := s.checkGate(ctx, params.OrderID, params.Target); err != nil {
		return Order{}, err
	}

	updated, err := s.store.UpdateStatus(ctx, tx, params.OrderID, current.Version, params.Target)
	if err != nil {
		return Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, fmt.Errorf("order: commit transition: %w", err)
	}

	s.notifyStatusChanged(ctx, updated)

	return updated, nil
}

// checkGate verifies the payment preconditions for gated targets. Callers
// hold the order row lock, so a settlement landing mid-transition is read
// before the status is written.
func (s *Service) checkGate(ctx context.Context, orderID string, target Status) error {
	switch target {
	case StatusDepositPaid:
		advance, err := s.store.AdvanceAmount(ctx, orderID)
		if err != nil {
			return err
		}
		bal, err := s.balances.OrderBalance(ctx, orderID)
		if err != nil {
			return err
		}
		if bal.PaidAmount.LessThan(advance) {
			return fmt.Errorf("%w: paid %s of %s advance", ErrInvalidTransition,
				bal.PaidAmount.StringFixed(2), advance.StringFixed(2))
		}
	case StatusClosed:
		bal, err := s.balances.OrderBalance(ctx, orderID)
		if err != nil {
			return err
		}
		if !bal.RemainingAmount.IsZero() || !bal.PaidAmount.IsPositive() {
			return fmt.Errorf("%w: %s remaining", ErrInvalidTransition, bal.RemainingAmount.StringFixed(2))
		}
	}
	return nil
}

// AppendProductionUpdate records one stage entry. It never changes the order
// status; status moves are explicit, separately authorized transitions.
func (s *Service) AppendProductionUpdate(ctx context.Context, orderID, stage, detail string) (ProductionUpdate, error) {
	if orderID == "" {
		return ProductionUpdate{}, fmt.Errorf("order: missing order id")
	}
	if stage == "" {
		return ProductionUpdate{}, fmt.Errorf("order: missing stage")
	}

	update, err := s.store.AppendProductionUpdate(ctx, orderID, stage, detail)
	if err != nil {
		return ProductionUpdate{}, err
	}

	if s.notifier != nil {
		if o, err := s.store.Get(ctx, orderID); err == nil {
			s.notifier.Dispatch(ctx, notification.Event{
				UserID:     o.BuyerID,
				Type:       notification.TypeProductionUpdate,
				Title:      "Production update",
				Message:    fmt.Sprintf("Stage: %s", stage),
				EntityID:   orderID,
				EntityType: notification.EntityOrder,
				Metadata:   map[string]any{"stage": stage},
			})
		}
	}

	return update, nil
}

func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) notifyStatusChanged(ctx context.Context, o Order) {
	if s.notifier == nil {
		return
	}
	evType := notification.TypeOrderStatusChanged
	title := "Order status changed"
	if o.Status == StatusInspection {
		// inspection entry and completion both surface to the buyer
		title = "Order in inspection"
	}
	ev := notification.Event{
		Type:       evType,
		Title:      title,
		Message:    fmt.Sprintf("Order is now %s", o.Status),
		EntityID:   o.ID,
		EntityType: notification.EntityOrder,
		Metadata:   map[string]any{"status": string(o.Status)},
	}
	ev.UserID = o.BuyerID
	s.notifier.Dispatch(ctx, ev)
	if o.SupplierID != nil && *o.SupplierID != "" {
		ev.UserID = *o.SupplierID
		s.notifier.Dispatch(ctx, ev)
	}
}
