package payment

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

func TestReconciliationOverLiveLedger(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	for _, tbl := range []string{"users", "rfqs", "curated_offers", "orders", "payment_transactions"} {
		if !tableExists(ctx, pool, tbl) {
			t.Skipf("table %s does not exist; ensure migrations are applied", tbl)
		}
	}

	mustInsert := func(query string, args ...any) string {
		var id string
		if err := pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
			t.Fatalf("seed statement failed: %v", err)
		}
		return id
	}

	nonce := time.Now().UnixNano()
	buyerID := mustInsert(`INSERT INTO users (email, full_name, role) VALUES ($1, $2, 'buyer') RETURNING id`,
		fmt.Sprintf("recon-buyer+%d@example.com", nonce), "Recon Buyer")
	rfqID := mustInsert(`INSERT INTO rfqs (buyer_id, status, currency) VALUES ($1, 'accepted', 'INR') RETURNING id`, buyerID)
	offerID := mustInsert(`
        INSERT INTO curated_offers (rfq_id, price, currency, advance_amount, final_amount, status)
        VALUES ($1, 100000, 'INR', 30000, 70000, 'accepted')
        RETURNING id
    `, rfqID)
	orderID := mustInsert(`
        INSERT INTO orders (curated_offer_id, rfq_id, buyer_id, total_amount, currency)
        VALUES ($1, $2, $3, 100000, 'INR')
        RETURNING id
    `, offerID, rfqID, buyerID)

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM payment_transactions WHERE order_id = $1 OR curated_offer_id = $2`, orderID, offerID)
		pool.Exec(ctx2, `DELETE FROM orders WHERE id = $1`, orderID)
		pool.Exec(ctx2, `DELETE FROM curated_offers WHERE id = $1`, offerID)
		pool.Exec(ctx2, `DELETE FROM rfqs WHERE id = $1`, rfqID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id = $1`, buyerID)
	})

	engine := NewEngine(pool, NewRepository(pool), nil)
	refAdvance := fmt.Sprintf("IT-ADV-%d", nonce)
	refFinal := fmt.Sprintf("IT-FIN-%d", nonce)

	// The advance arrives from the offer's payment link, keyed by the offer
	// alone; it must still settle against the order created from that offer.
	advance := Event{
		TransactionRef: refAdvance,
		CuratedOfferID: offerID,
		Amount:         decimal.RequireFromString("30000"),
		Fees:           decimal.RequireFromString("900"),
		Currency:       "INR",
		Status:         StatusCompleted,
		Type:           TypeAdvancePayment,
	}
	if _, err := engine.RecordTransaction(ctx, advance); err != nil {
		t.Fatalf("record advance: %v", err)
	}

	bal, err := engine.OrderBalance(ctx, orderID)
	if err != nil {
		t.Fatalf("balance after advance: %v", err)
	}
	if bal.PaidAmount.String() != "29100" || bal.RemainingAmount.String() != "70900" {
		t.Fatalf("unexpected balance after advance: %+v", bal)
	}

	// Webhook replay: same ref and status must change nothing.
	if _, err := engine.RecordTransaction(ctx, advance); err != nil {
		t.Fatalf("replay advance: %v", err)
	}
	bal, err = engine.OrderBalance(ctx, orderID)
	if err != nil {
		t.Fatalf("balance after replay: %v", err)
	}
	if bal.PaidAmount.String() != "29100" {
		t.Fatalf("replay must not double count, got paid %s", bal.PaidAmount)
	}

	if _, err := engine.RecordTransaction(ctx, Event{
		TransactionRef: refFinal,
		OrderID:        orderID,
		Amount:         decimal.RequireFromString("70900"),
		Currency:       "INR",
		Status:         StatusCompleted,
		Type:           TypeFinalPayment,
	}); err != nil {
		t.Fatalf("record final: %v", err)
	}

	bal, err = engine.OrderBalance(ctx, orderID)
	if err != nil {
		t.Fatalf("balance after final: %v", err)
	}
	if !bal.IsFullyPaid || !bal.RemainingAmount.IsZero() {
		t.Fatalf("expected fully paid, got %+v", bal)
	}

	status, err := engine.PaymentStatus(ctx, orderID)
	if err != nil {
		t.Fatalf("payment status: %v", err)
	}
	if status != RollupCompleted {
		t.Fatalf("expected completed rollup, got %s", status)
	}

	// A completed entry is immutable.
	demoted := advance
	demoted.Status = StatusPending
	if _, err := engine.RecordTransaction(ctx, demoted); err == nil {
		t.Fatal("expected immutability violation")
	}
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, name string) bool {
	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists); err != nil {
		return false
	}
	return exists
}
