package earlypay

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no request exists for the supplier and id.
var ErrNotFound = errors.New("earlypay: not found")

const columns = `id, supplier_id, order_id, invoice_number, amount, currency, delivered_confirmed, buyer_invoice_approved, expected_days, discount, net_payout, status::text, created_at, updated_at`

// PGRepository implements Store backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Insert(ctx context.Context, req Request) (Request, error) {
	query := fmt.Sprintf(`
        INSERT INTO earlypay_requests (supplier_id, order_id, invoice_number, amount, currency, delivered_confirmed, buyer_invoice_approved, expected_days, discount, net_payout, status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::earlypay_status)
        RETURNING %s`, columns)

	created, err := scanRequest(r.pool.QueryRow(ctx, query,
		req.SupplierID,
		req.OrderID,
		req.InvoiceNumber,
		req.Amount,
		req.Currency,
		req.DeliveredConfirmed,
		req.BuyerInvoiceApproved,
		req.ExpectedDays,
		req.Discount,
		req.NetPayout,
		req.Status,
	))
	if err != nil {
		return Request{}, fmt.Errorf("earlypay: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) Get(ctx context.Context, supplierID, id string) (Request, error) {
	query := fmt.Sprintf(`SELECT %s FROM earlypay_requests WHERE id = $1 AND supplier_id = $2`, columns)
	req, err := scanRequest(r.pool.QueryRow(ctx, query, id, supplierID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, fmt.Errorf("earlypay: get: %w", err)
	}
	return req, nil
}

func (r *PGRepository) ListForSupplier(ctx context.Context, supplierID string, limit int) ([]Request, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := fmt.Sprintf(`SELECT %s FROM earlypay_requests WHERE supplier_id = $1 ORDER BY created_at DESC LIMIT $2`, columns)
	rows, err := r.pool.Query(ctx, query, supplierID, limit)
	if err != nil {
		return nil, fmt.Errorf("earlypay: list: %w", err)
	}
	defer rows.Close()

	out := make([]Request, 0, limit)
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("earlypay: scan: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("earlypay: iterate: %w", err)
	}
	return out, nil
}

func scanRequest(row pgx.Row) (Request, error) {
	var req Request
	return req, row.Scan(
		&req.ID,
		&req.SupplierID,
		&req.OrderID,
		&req.InvoiceNumber,
		&req.Amount,
		&req.Currency,
		&req.DeliveredConfirmed,
		&req.BuyerInvoiceApproved,
		&req.ExpectedDays,
		&req.Discount,
		&req.NetPayout,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
}
