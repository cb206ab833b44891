package offer

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"rfqflow/order"
	"rfqflow/rfq"
)

func TestOfferAcceptanceCreatesOrder(t *testing.T) {
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

	for _, tbl := range []string{"users", "rfqs", "curated_offers", "orders"} {
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
		fmt.Sprintf("buyer+%d@example.com", nonce), "Buyer One")
	supplierID := mustInsert(`INSERT INTO users (email, full_name, role) VALUES ($1, $2, 'supplier') RETURNING id`,
		fmt.Sprintf("supplier+%d@example.com", nonce), "Supplier One")

	rfqID := mustInsert(`
        INSERT INTO rfqs (buyer_id, status, details, currency)
        VALUES ($1, 'offers_published', '{"part":"bracket"}'::jsonb, 'INR')
        RETURNING id
    `, buyerID)

	offerID := mustInsert(`
        INSERT INTO curated_offers (rfq_id, supplier_id, price, currency, advance_amount, final_amount)
        VALUES ($1, $2, 100000, 'INR', 30000, 70000)
        RETURNING id
    `, rfqID, supplierID)

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM notifications WHERE user_id IN ($1, $2)`, buyerID, supplierID)
		pool.Exec(ctx2, `DELETE FROM orders WHERE rfq_id = $1`, rfqID)
		pool.Exec(ctx2, `DELETE FROM curated_offers WHERE rfq_id = $1`, rfqID)
		pool.Exec(ctx2, `DELETE FROM rfqs WHERE id = $1`, rfqID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id IN ($1, $2)`, buyerID, supplierID)
	})

	svc := NewService(pool, NewRepository(pool), rfq.NewRepository(pool), order.NewRepository(pool), nil)

	created, err := svc.Accept(ctx, offerID, buyerID)
	if err != nil {
		t.Fatalf("accept offer: %v", err)
	}
	if created.Status != order.StatusCreated {
		t.Fatalf("expected created order, got %s", created.Status)
	}
	if created.TotalAmount.String() != "100000" {
		t.Fatalf("expected total 100000, got %s", created.TotalAmount)
	}

	var rfqStatus string
	if err := pool.QueryRow(ctx, `SELECT status FROM rfqs WHERE id = $1`, rfqID).Scan(&rfqStatus); err != nil {
		t.Fatalf("inspect rfq: %v", err)
	}
	if rfqStatus != "accepted" {
		t.Fatalf("expected rfq accepted, got %s", rfqStatus)
	}

	var offerStatus string
	if err := pool.QueryRow(ctx, `SELECT status FROM curated_offers WHERE id = $1`, offerID).Scan(&offerStatus); err != nil {
		t.Fatalf("inspect offer: %v", err)
	}
	if offerStatus != "accepted" {
		t.Fatalf("expected offer accepted, got %s", offerStatus)
	}

	// Idempotent replay
	replayed, err := svc.Accept(ctx, offerID, buyerID)
	if err != nil {
		t.Fatalf("idempotent accept: %v", err)
	}
	if replayed.ID != created.ID {
		t.Fatalf("expected the same order on replay, got %s and %s", created.ID, replayed.ID)
	}

	var orderCount int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE curated_offer_id = $1`, offerID).Scan(&orderCount); err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 1 {
		t.Fatalf("expected exactly one order, got %d", orderCount)
	}
}

func tableExists(ctx context.Context, pool *pgxpool.Pool, name string) bool {
	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists); err != nil {
		return false
	}
	return exists
}
