package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"rfqflow/notification"
)

var (
	// ErrImmutableTransaction signals an attempt to alter a completed or refunded ledger entry.
	ErrImmutableTransaction = errors.New("payment: transaction is immutable")
	// ErrInvalidTransition signals a backwards or otherwise illegal status move.
	ErrInvalidTransition = errors.New("payment: invalid status transition")
	// ErrCurrencyMismatch signals a transaction in a different currency than its order.
	ErrCurrencyMismatch = errors.New("payment: currency mismatch")
	// ErrOrderNotFound is returned when the referenced order does not exist.
	ErrOrderNotFound = errors.New("payment: order not found")
	// ErrOfferNotFound is returned when the referenced curated offer does not exist.
	ErrOfferNotFound = errors.New("payment: curated offer not found")
	// ErrValidation covers malformed transaction events.
	ErrValidation = errors.New("payment: invalid event")
)

// Event is a normalized payment-gateway webhook or admin settlement entry.
// TransactionRef is the global idempotency key: replays with the same ref and
// status are absorbed, replays with a later status advance the entry.
type Event struct {
	TransactionRef string
	OrderID        string
	CuratedOfferID string
	Amount         decimal.Decimal
	Fees           decimal.Decimal
	Currency       string
	Status         Status
	Type           Type
}

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository defines the ledger data access required by the engine.
type Repository interface {
	GetByRefForUpdate(ctx context.Context, tx pgx.Tx, ref string) (Transaction, error)
	Insert(ctx context.Context, tx pgx.Tx, txn Transaction) (Transaction, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Transaction, error)
	OrderTotal(ctx context.Context, orderID string) (decimal.Decimal, string, error)
	OfferCurrency(ctx context.Context, offerID string) (string, error)
	CompletedNet(ctx context.Context, orderID string) (decimal.Decimal, error)
	HasOpenTransactions(ctx context.Context, orderID string) (bool, error)
	OrderParties(ctx context.Context, orderID string) (buyerID, supplierID string, err error)
}

// Notifier delivers best-effort notifications. Failures are handled inside the
// dispatcher and never propagate into the ledger write.
type Notifier interface {
	Dispatch(ctx context.Context, e notification.Event)
}

// Engine is the single authority for paid/remaining/status derivation over the
// payment ledger. All monetary arithmetic is decimal.
type Engine struct {
	pool     TxBeginner
	repo     Repository
	notifier Notifier
	logger   *slog.Logger
}

func NewEngine(pool TxBeginner, repo Repository, notifier Notifier) *Engine {
	if repo == nil {
		repo = NewRepository(nil)
	}
	return &Engine{
		pool:     pool,
		repo:     repo,
		notifier: notifier,
		logger:   slog.Default(),
	}
}

// RecordTransaction ingests one transaction event idempotently. Replaying an
// event whose entry already holds the same status returns the stored entry
// unchanged; a different status is applied as a monotonic transition.
func (e *Engine) RecordTransaction(ctx context.Context, ev Event) (Transaction, error) {
	if err := validateEvent(ev); err != nil {
		return Transaction{}, err
	}

	currency, err := e.eventCurrency(ctx, ev)
	if err != nil {
		return Transaction{}, err
	}
	if currency != ev.Currency {
		return Transaction{}, fmt.Errorf("%w: ledger is %s, event is %s", ErrCurrencyMismatch, currency, ev.Currency)
	}

	// One retry: a concurrent insert of the same ref loses the unique-index
	// race and is then handled as a replay on the second pass.
	txn, err := e.recordOnce(ctx, ev)
	if errors.Is(err, errDuplicateRef) {
		txn, err = e.recordOnce(ctx, ev)
	}
	if err != nil {
		return Transaction{}, err
	}

	if txn.Status == StatusCompleted && ev.OrderID != "" {
		e.notifyCompleted(ctx, ev.OrderID, txn)
	}

	return txn, nil
}

// eventCurrency resolves the currency the event must settle in: the order's
// when the event is order-linked, otherwise the curated offer's. Offer-keyed
// events arrive from payment links before the order exists.
func (e *Engine) eventCurrency(ctx context.Context, ev Event) (string, error) {
	if ev.OrderID != "" {
		_, currency, err := e.repo.OrderTotal(ctx, ev.OrderID)
		return currency, err
	}
	return e.repo.OfferCurrency(ctx, ev.CuratedOfferID)
}

func (e *Engine) recordOnce(ctx context.Context, ev Event) (Transaction, error) {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return Transaction{}, fmt.Errorf("payment: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := e.repo.GetByRefForUpdate(ctx, tx, ev.TransactionRef)
	switch {
	case err == nil:
		if existing.Status == ev.Status {
			return existing, nil
		}
		if immutable(existing.Status) {
			return Transaction{}, fmt.Errorf("%w: %s is %s", ErrImmutableTransaction, existing.TransactionRef, existing.Status)
		}
		if !canTransition(existing.Status, ev.Status) {
			return Transaction{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, existing.Status, ev.Status)
		}
		updated, err := e.repo.UpdateStatus(ctx, tx, existing.ID, ev.Status)
		if err != nil {
			return Transaction{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Transaction{}, fmt.Errorf("payment: commit transition: %w", err)
		}
		return updated, nil

	case errors.Is(err, errRefNotFound):
		inserted, err := e.repo.Insert(ctx, tx, transactionFromEvent(ev))
		if err != nil {
			return Transaction{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Transaction{}, fmt.Errorf("payment: commit insert: %w", err)
		}
		return inserted, nil

	default:
		return Transaction{}, err
	}
}

// OrderBalance derives the reconciled totals for one order.
func (e *Engine) OrderBalance(ctx context.Context, orderID string) (Balance, error) {
	total, currency, err := e.repo.OrderTotal(ctx, orderID)
	if err != nil {
		return Balance{}, err
	}
	paid, err := e.repo.CompletedNet(ctx, orderID)
	if err != nil {
		return Balance{}, err
	}
	return deriveBalance(total, paid, currency), nil
}

// PaymentStatus derives the rollup for one order. It is a pure function of the
// transaction set and can never drift from the ledger.
func (e *Engine) PaymentStatus(ctx context.Context, orderID string) (RollupStatus, error) {
	bal, err := e.OrderBalance(ctx, orderID)
	if err != nil {
		return "", err
	}
	open, err := e.repo.HasOpenTransactions(ctx, orderID)
	if err != nil {
		return "", err
	}
	return deriveStatus(bal, open), nil
}

func (e *Engine) notifyCompleted(ctx context.Context, orderID string, txn Transaction) {
	if e.notifier == nil {
		return
	}
	buyerID, supplierID, err := e.repo.OrderParties(ctx, orderID)
	if err != nil {
		e.logger.Warn("payment: resolve order parties for notification", "order_id", orderID, "error", err)
		return
	}
	ev := notification.Event{
		Type:       notification.TypePaymentReceived,
		Title:      "Payment received",
		Message:    fmt.Sprintf("Payment of %s %s recorded", txn.NetAmount.StringFixed(2), txn.Currency),
		EntityID:   orderID,
		EntityType: notification.EntityOrder,
	}
	for _, userID := range []string{buyerID, supplierID} {
		if userID == "" {
			continue
		}
		ev.UserID = userID
		e.notifier.Dispatch(ctx, ev)
	}
}

func validateEvent(ev Event) error {
	if ev.TransactionRef == "" {
		return fmt.Errorf("%w: missing transaction ref", ErrValidation)
	}
	if ev.OrderID == "" && ev.CuratedOfferID == "" {
		return fmt.Errorf("%w: missing order or offer reference", ErrValidation)
	}
	if !ev.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if ev.Fees.IsNegative() {
		return fmt.Errorf("%w: fees must not be negative", ErrValidation)
	}
	if ev.Fees.GreaterThan(ev.Amount) {
		return fmt.Errorf("%w: fees exceed amount", ErrValidation)
	}
	if ev.Currency == "" {
		return fmt.Errorf("%w: missing currency", ErrValidation)
	}
	if !validStatus(ev.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, ev.Status)
	}
	if !validType(ev.Type) {
		return fmt.Errorf("%w: unknown type %q", ErrValidation, ev.Type)
	}
	return nil
}

func transactionFromEvent(ev Event) Transaction {
	txn := Transaction{
		TransactionRef: ev.TransactionRef,
		Amount:         ev.Amount,
		Fees:           ev.Fees,
		NetAmount:      ev.Amount.Sub(ev.Fees),
		Currency:       ev.Currency,
		Status:         ev.Status,
		Type:           ev.Type,
	}
	if ev.OrderID != "" {
		orderID := ev.OrderID
		txn.OrderID = &orderID
	}
	if ev.CuratedOfferID != "" {
		offerID := ev.CuratedOfferID
		txn.CuratedOfferID = &offerID
	}
	return txn
}

// deriveBalance clamps the remainder at zero; overpayment is reported through
// the Overpaid flag so callers never render a negative outstanding amount.
func deriveBalance(total, paid decimal.Decimal, currency string) Balance {
	remaining := total.Sub(paid)
	overpaid := remaining.IsNegative()
	if overpaid {
		remaining = decimal.Zero
	}
	return Balance{
		TotalAmount:     total,
		PaidAmount:      paid,
		RemainingAmount: remaining,
		Currency:        currency,
		IsFullyPaid:     remaining.IsZero() && paid.IsPositive(),
		Overpaid:        overpaid,
	}
}

func deriveStatus(b Balance, hasOpen bool) RollupStatus {
	switch {
	case b.IsFullyPaid:
		return RollupCompleted
	case b.PaidAmount.IsPositive() || hasOpen:
		return RollupPartial
	default:
		return RollupNotStarted
	}
}
