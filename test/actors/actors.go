package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"rfqflow/notification"
	"rfqflow/offer"
	"rfqflow/payment"
)

// WebhookEvent is one gateway callback an actor replays against the ledger.
type WebhookEvent struct {
	Ref    string
	Amount decimal.Decimal
	Fees   decimal.Decimal
	Type   payment.Type
}

// WebhookCaller fires the same small pool of gateway events at the ledger over
// and over, at random statuses. The engine must absorb replays, serialize the
// insert race on transaction_ref, and never double-count a completed entry.
func WebhookCaller(ctx context.Context, engine *payment.Engine, orderID string, events []WebhookEvent, stop <-chan struct{}) error {
	statuses := []payment.Status{payment.StatusPending, payment.StatusProcessing, payment.StatusCompleted}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}

		ev := events[rand.Intn(len(events))]
		_, err := engine.RecordTransaction(ctx, payment.Event{
			TransactionRef: ev.Ref,
			OrderID:        orderID,
			Amount:         ev.Amount,
			Fees:           ev.Fees,
			Currency:       "INR",
			Status:         statuses[rand.Intn(len(statuses))],
			Type:           ev.Type,
		})
		if err != nil && !expectedLedgerErr(err) {
			return fmt.Errorf("webhook caller: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// Gateways replay out of order, so backwards moves and writes against settled
// entries are routine here, not failures.
func expectedLedgerErr(err error) bool {
	if errors.Is(err, payment.ErrInvalidTransition) || errors.Is(err, payment.ErrImmutableTransaction) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// chaos kills backends mid-query
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}

// OfferPublisher races raw inserts of active curated offers for one RFQ. The
// partial unique index must let at most one through at a time.
func OfferPublisher(ctx context.Context, pool *pgxpool.Pool, rfqID, supplierID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := pool.Exec(ctx, `INSERT INTO curated_offers
            (rfq_id, supplier_id, price, currency, advance_amount, final_amount, status)
            VALUES ($1, $2, 100000, 'INR', 30000, 70000, 'active')`, rfqID, supplierID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				// expected under contention
			} else if !errors.Is(err, context.Canceled) {
				return fmt.Errorf("offer publisher insert: %w", err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Accepter hammers Accept on one offer. The first call creates the order, every
// later call must come back with that same order and leave exactly one row.
func Accepter(ctx context.Context, svc *offer.Service, offerID, buyerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := svc.Accept(ctx, offerID, buyerID)
		if err != nil && !errors.Is(err, context.Canceled) {
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) {
				return fmt.Errorf("accepter: %w", err)
			}
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// ProductionUpdater appends progress entries to an order's log.
func ProductionUpdater(ctx context.Context, pool *pgxpool.Pool, orderID string, stop <-chan struct{}) error {
	stages := []string{"tooling", "machining", "finishing", "qa"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		stage := stages[rand.Intn(len(stages))]
		_, _ = pool.Exec(ctx, `INSERT INTO order_production_updates (order_id, stage, detail)
            VALUES ($1, $2, $3)`, orderID, stage, fmt.Sprintf("batch %d", rand.Intn(100)))
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// NotificationSpammer dispatches the same event repeatedly. The unread dedup
// index must collapse the replays to a single row.
func NotificationSpammer(ctx context.Context, d *notification.Dispatcher, userID, orderID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		d.Dispatch(ctx, notification.Event{
			UserID:     userID,
			Type:       notification.TypeProductionUpdate,
			Title:      "Production update",
			Message:    "Stage changed",
			EntityID:   orderID,
			EntityType: notification.EntityOrder,
		})
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// BalanceReader derives order balances while the webhook callers write. Reads
// must never observe paid > total.
func BalanceReader(ctx context.Context, engine *payment.Engine, orderID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		bal, err := engine.OrderBalance(ctx, orderID)
		if err == nil {
			if bal.PaidAmount.GreaterThan(bal.TotalAmount) && !bal.Overpaid {
				return fmt.Errorf("balance reader: paid %s exceeds total %s without overpaid flag", bal.PaidAmount, bal.TotalAmount)
			}
			if bal.RemainingAmount.IsNegative() {
				return fmt.Errorf("balance reader: negative remaining %s", bal.RemainingAmount)
			}
		}
		time.Sleep(time.Duration(25+rand.Intn(50)) * time.Millisecond)
	}
}
