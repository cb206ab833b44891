package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no order row exists for the identifier.
	ErrNotFound = errors.New("order: not found")
	// ErrConcurrentModification signals the version condition on a status
	// write failed; the caller should re-read and reapply.
	ErrConcurrentModification = errors.New("order: concurrent modification")
)

const orderColumns = `id, curated_offer_id, rfq_id, buyer_id, supplier_id, total_amount, currency, status::text, deposit_paid, delivered_at, version, created_at, updated_at`

// CreateFromOfferParams enumerates what offer acceptance needs to materialise
// an order.
type CreateFromOfferParams struct {
	CuratedOfferID string
	RFQID          string
	BuyerID        string
	SupplierID     *string
	TotalAmount    decimal.Decimal
	Currency       string
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateFromOffer inserts the order for an accepted offer inside the caller's
// transaction. Retries are tolerated: if an order already exists for the
// offer, the existing row is returned unchanged.
func (r *Repository) CreateFromOffer(ctx context.Context, tx pgx.Tx, params CreateFromOfferParams) (Order, error) {
	if params.CuratedOfferID == "" {
		return Order{}, fmt.Errorf("order: missing curated offer id")
	}
	if params.RFQID == "" || params.BuyerID == "" {
		return Order{}, fmt.Errorf("order: missing rfq or buyer id")
	}
	if !params.TotalAmount.IsPositive() {
		return Order{}, fmt.Errorf("order: total amount must be positive")
	}

	existingSQL := fmt.Sprintf(`SELECT %s FROM orders WHERE curated_offer_id = $1`, orderColumns)
	switch existing, err := scanOrder(tx.QueryRow(ctx, existingSQL, params.CuratedOfferID)); {
	case err == nil:
		return existing, nil
	case errors.Is(err, pgx.ErrNoRows):
		// continue with insert
	default:
		return Order{}, fmt.Errorf("order: check existing: %w", err)
	}

	insertSQL := fmt.Sprintf(`
        INSERT INTO orders (curated_offer_id, rfq_id, buyer_id, supplier_id, total_amount, currency)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING %s`, orderColumns)

	created, err := scanOrder(tx.QueryRow(ctx, insertSQL,
		params.CuratedOfferID,
		params.RFQID,
		params.BuyerID,
		params.SupplierID,
		params.TotalAmount,
		params.Currency,
	))
	if err != nil {
		return Order{}, fmt.Errorf("order: insert from offer: %w", err)
	}
	return created, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1`, orderColumns)
	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("order: get: %w", err)
	}
	return o, nil
}

func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM orders WHERE id = $1 FOR UPDATE`, orderColumns)
	o, err := scanOrder(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("order: get for update: %w", err)
	}
	return o, nil
}

// UpdateStatus writes the new status conditionally on the version read.
// deposit_paid and delivered_at are derived from the target state.
func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, version int, status Status) (Order, error) {
	query := fmt.Sprintf(`
        UPDATE orders
        SET status = $3::order_status,
            deposit_paid = deposit_paid OR $3 = 'deposit_paid',
            delivered_at = CASE WHEN $3 = 'delivered' THEN COALESCE(delivered_at, get_tx_timestamp()) ELSE delivered_at END,
            version = version + 1,
            updated_at = get_tx_timestamp()
        WHERE id = $1 AND version = $2
        RETURNING %s`, orderColumns)

	updated, err := scanOrder(tx.QueryRow(ctx, query, id, version, status))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("order: update status: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return Order{}, fmt.Errorf("order: update status check: %w", err)
	}
	if exists {
		return Order{}, ErrConcurrentModification
	}
	return Order{}, ErrNotFound
}

// AdvanceAmount returns the advance split of the order's linked offer.
func (r *Repository) AdvanceAmount(ctx context.Context, orderID string) (decimal.Decimal, error) {
	var advance decimal.Decimal
	err := r.pool.QueryRow(ctx, `
        SELECT co.advance_amount
        FROM orders o
        JOIN curated_offers co ON co.id = o.curated_offer_id
        WHERE o.id = $1
    `, orderID).Scan(&advance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, ErrNotFound
		}
		return decimal.Decimal{}, fmt.Errorf("order: advance amount: %w", err)
	}
	return advance, nil
}

// AppendProductionUpdate adds one audit entry; the trail is append-only.
func (r *Repository) AppendProductionUpdate(ctx context.Context, orderID, stage, detail string) (ProductionUpdate, error) {
	const query = `
        INSERT INTO order_production_updates (order_id, stage, detail)
        SELECT $1, $2, $3
        WHERE EXISTS (SELECT 1 FROM orders WHERE id = $1)
        RETURNING id, order_id, stage, detail, created_at
    `
	var u ProductionUpdate
	err := r.pool.QueryRow(ctx, query, orderID, stage, detail).
		Scan(&u.ID, &u.OrderID, &u.Stage, &u.Detail, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ProductionUpdate{}, ErrNotFound
		}
		return ProductionUpdate{}, fmt.Errorf("order: append production update: %w", err)
	}
	return u, nil
}

// ProductionUpdates returns the audit trail, oldest first.
func (r *Repository) ProductionUpdates(ctx context.Context, orderID string) ([]ProductionUpdate, error) {
	const query = `
        SELECT id, order_id, stage, detail, created_at
        FROM order_production_updates
        WHERE order_id = $1
        ORDER BY created_at
    `
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("order: list production updates: %w", err)
	}
	defer rows.Close()

	out := make([]ProductionUpdate, 0, 8)
	for rows.Next() {
		var u ProductionUpdate
		if err := rows.Scan(&u.ID, &u.OrderID, &u.Stage, &u.Detail, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("order: scan production update: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order: iterate production updates: %w", err)
	}
	return out, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	return o, row.Scan(
		&o.ID,
		&o.CuratedOfferID,
		&o.RFQID,
		&o.BuyerID,
		&o.SupplierID,
		&o.TotalAmount,
		&o.Currency,
		&o.Status,
		&o.DepositPaid,
		&o.DeliveredAt,
		&o.Version,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
}
