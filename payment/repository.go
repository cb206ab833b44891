package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	errRefNotFound  = errors.New("payment: transaction ref not found")
	errDuplicateRef = errors.New("payment: duplicate transaction ref")
)

const txnColumns = `id, transaction_ref, order_id, curated_offer_id, amount, fees, net_amount, currency, status::text, tx_type::text, created_at, updated_at`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// GetByRefForUpdate locks the ledger entry for the given ref so concurrent
// replays of the same webhook serialize on the row.
func (r *PGRepository) GetByRefForUpdate(ctx context.Context, tx pgx.Tx, ref string) (Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM payment_transactions WHERE transaction_ref = $1 FOR UPDATE`, txnColumns)
	txn, err := scanTransaction(tx.QueryRow(ctx, query, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, errRefNotFound
		}
		return Transaction{}, fmt.Errorf("payment: get by ref: %w", err)
	}
	return txn, nil
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, txn Transaction) (Transaction, error) {
	query := fmt.Sprintf(`
        INSERT INTO payment_transactions (transaction_ref, order_id, curated_offer_id, amount, fees, net_amount, currency, status, tx_type)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8::payment_tx_status, $9::payment_tx_type)
        RETURNING %s`, txnColumns)

	inserted, err := scanTransaction(tx.QueryRow(ctx, query,
		txn.TransactionRef,
		txn.OrderID,
		txn.CuratedOfferID,
		txn.Amount,
		txn.Fees,
		txn.NetAmount,
		txn.Currency,
		txn.Status,
		txn.Type,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Transaction{}, errDuplicateRef
		}
		return Transaction{}, fmt.Errorf("payment: insert transaction: %w", err)
	}
	return inserted, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, status Status) (Transaction, error) {
	query := fmt.Sprintf(`
        UPDATE payment_transactions
        SET status = $2::payment_tx_status,
            updated_at = get_tx_timestamp()
        WHERE id = $1
        RETURNING %s`, txnColumns)

	updated, err := scanTransaction(tx.QueryRow(ctx, query, id, status))
	if err != nil {
		return Transaction{}, fmt.Errorf("payment: update status: %w", err)
	}
	return updated, nil
}

func (r *PGRepository) OrderTotal(ctx context.Context, orderID string) (decimal.Decimal, string, error) {
	var (
		total    decimal.Decimal
		currency string
	)
	err := r.pool.QueryRow(ctx, `SELECT total_amount, currency FROM orders WHERE id = $1`, orderID).
		Scan(&total, &currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, "", ErrOrderNotFound
		}
		return decimal.Decimal{}, "", fmt.Errorf("payment: order total: %w", err)
	}
	return total, currency, nil
}

// OfferCurrency resolves the currency for events that carry only a curated
// offer reference.
func (r *PGRepository) OfferCurrency(ctx context.Context, offerID string) (string, error) {
	var currency string
	err := r.pool.QueryRow(ctx, `SELECT currency FROM curated_offers WHERE id = $1`, offerID).Scan(&currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOfferNotFound
		}
		return "", fmt.Errorf("payment: offer currency: %w", err)
	}
	return currency, nil
}

// CompletedNet sums net amounts over completed entries; refund entries
// subtract. Entries keyed only by the curated offer, recorded from its payment
// link before the order existed, settle against the order created from it.
func (r *PGRepository) CompletedNet(ctx context.Context, orderID string) (decimal.Decimal, error) {
	const query = `
        SELECT COALESCE(SUM(CASE WHEN tx_type = 'refund' THEN -net_amount ELSE net_amount END), 0)
        FROM payment_transactions
        WHERE (order_id = $1
               OR curated_offer_id = (SELECT curated_offer_id FROM orders WHERE id = $1))
          AND status = 'completed'
    `
	var paid decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, orderID).Scan(&paid); err != nil {
		return decimal.Decimal{}, fmt.Errorf("payment: sum completed: %w", err)
	}
	return paid, nil
}

func (r *PGRepository) HasOpenTransactions(ctx context.Context, orderID string) (bool, error) {
	const query = `
        SELECT EXISTS (
            SELECT 1 FROM payment_transactions
            WHERE (order_id = $1
                   OR curated_offer_id = (SELECT curated_offer_id FROM orders WHERE id = $1))
              AND status IN ('pending','processing')
        )
    `
	var open bool
	if err := r.pool.QueryRow(ctx, query, orderID).Scan(&open); err != nil {
		return false, fmt.Errorf("payment: check open transactions: %w", err)
	}
	return open, nil
}

func (r *PGRepository) OrderParties(ctx context.Context, orderID string) (string, string, error) {
	var (
		buyerID    string
		supplierID *string
	)
	err := r.pool.QueryRow(ctx, `SELECT buyer_id, supplier_id FROM orders WHERE id = $1`, orderID).
		Scan(&buyerID, &supplierID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrOrderNotFound
		}
		return "", "", fmt.Errorf("payment: order parties: %w", err)
	}
	if supplierID == nil {
		return buyerID, "", nil
	}
	return buyerID, *supplierID, nil
}

// ListForOrder returns the full ledger for an order, oldest first, including
// entries recorded against the offer it was created from.
func (r *PGRepository) ListForOrder(ctx context.Context, orderID string) ([]Transaction, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM payment_transactions
        WHERE order_id = $1
           OR curated_offer_id = (SELECT curated_offer_id FROM orders WHERE id = $1)
        ORDER BY created_at`, txnColumns)
	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("payment: list for order: %w", err)
	}
	defer rows.Close()

	out := make([]Transaction, 0, 8)
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("payment: scan transaction: %w", err)
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payment: iterate transactions: %w", err)
	}
	return out, nil
}

func scanTransaction(row pgx.Row) (Transaction, error) {
	var txn Transaction
	return txn, row.Scan(
		&txn.ID,
		&txn.TransactionRef,
		&txn.OrderID,
		&txn.CuratedOfferID,
		&txn.Amount,
		&txn.Fees,
		&txn.NetAmount,
		&txn.Currency,
		&txn.Status,
		&txn.Type,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
}
