package rfq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no RFQ row exists for the identifier.
	ErrNotFound = errors.New("rfq: not found")
	// ErrConcurrentModification signals the version condition on a status
	// write failed; the caller should re-read and reapply.
	ErrConcurrentModification = errors.New("rfq: concurrent modification")
)

const rfqColumns = `id, buyer_id, status::text, details, budget_min, budget_max, currency, nda_required, confidential, cancel_reason, version, created_at, updated_at`

// Repository defines the data access the RFQ service needs.
type Repository interface {
	Create(ctx context.Context, tx pgx.Tx, r RFQ) (RFQ, error)
	Get(ctx context.Context, id string) (RFQ, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (RFQ, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, id string, version int, status Status, cancelReason *string) (RFQ, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, tx pgx.Tx, rfq RFQ) (RFQ, error) {
	details, err := marshalDetails(rfq.Details)
	if err != nil {
		return RFQ{}, err
	}

	query := fmt.Sprintf(`
        INSERT INTO rfqs (id, buyer_id, status, details, budget_min, budget_max, currency, nda_required, confidential)
        VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3::rfq_status, $4::jsonb, $5, $6, $7, $8, $9)
        RETURNING %s`, rfqColumns)

	created, err := scanRFQ(tx.QueryRow(ctx, query,
		rfq.ID,
		rfq.BuyerID,
		rfq.Status,
		details,
		rfq.BudgetMin,
		rfq.BudgetMax,
		rfq.Currency,
		rfq.NDARequired,
		rfq.Confidential,
	))
	if err != nil {
		return RFQ{}, fmt.Errorf("rfq: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (RFQ, error) {
	query := fmt.Sprintf(`SELECT %s FROM rfqs WHERE id = $1`, rfqColumns)
	rfq, err := scanRFQ(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RFQ{}, ErrNotFound
		}
		return RFQ{}, fmt.Errorf("rfq: get: %w", err)
	}
	return rfq, nil
}

func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (RFQ, error) {
	query := fmt.Sprintf(`SELECT %s FROM rfqs WHERE id = $1 FOR UPDATE`, rfqColumns)
	rfq, err := scanRFQ(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RFQ{}, ErrNotFound
		}
		return RFQ{}, fmt.Errorf("rfq: get for update: %w", err)
	}
	return rfq, nil
}

// UpdateStatus writes the new status conditionally on the version read. A
// version miss on an existing row surfaces as ErrConcurrentModification.
func (r *PGRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id string, version int, status Status, cancelReason *string) (RFQ, error) {
	query := fmt.Sprintf(`
        UPDATE rfqs
        SET status = $3::rfq_status,
            cancel_reason = COALESCE($4, cancel_reason),
            version = version + 1,
            updated_at = get_tx_timestamp()
        WHERE id = $1 AND version = $2
        RETURNING %s`, rfqColumns)

	updated, err := scanRFQ(tx.QueryRow(ctx, query, id, version, status, cancelReason))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return RFQ{}, fmt.Errorf("rfq: update status: %w", err)
	}

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rfqs WHERE id = $1)`, id).Scan(&exists); err != nil {
		return RFQ{}, fmt.Errorf("rfq: update status check: %w", err)
	}
	if exists {
		return RFQ{}, ErrConcurrentModification
	}
	return RFQ{}, ErrNotFound
}

// ListForBuyer returns the buyer's RFQs, newest first.
func (r *PGRepository) ListForBuyer(ctx context.Context, buyerID string, limit int) ([]RFQ, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM rfqs WHERE buyer_id = $1 ORDER BY created_at DESC LIMIT $2`, rfqColumns)
	rows, err := r.pool.Query(ctx, query, buyerID, limit)
	if err != nil {
		return nil, fmt.Errorf("rfq: list for buyer: %w", err)
	}
	defer rows.Close()

	out := make([]RFQ, 0, limit)
	for rows.Next() {
		rfq, err := scanRFQ(rows)
		if err != nil {
			return nil, fmt.Errorf("rfq: scan: %w", err)
		}
		out = append(out, rfq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rfq: iterate: %w", err)
	}
	return out, nil
}

func scanRFQ(row pgx.Row) (RFQ, error) {
	var (
		rfq RFQ
		raw []byte
	)
	err := row.Scan(
		&rfq.ID,
		&rfq.BuyerID,
		&rfq.Status,
		&raw,
		&rfq.BudgetMin,
		&rfq.BudgetMax,
		&rfq.Currency,
		&rfq.NDARequired,
		&rfq.Confidential,
		&rfq.CancelReason,
		&rfq.Version,
		&rfq.CreatedAt,
		&rfq.UpdatedAt,
	)
	if err != nil {
		return RFQ{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &rfq.Details); err != nil {
			return RFQ{}, fmt.Errorf("unmarshal details: %w", err)
		}
	}
	return rfq, nil
}

func marshalDetails(details map[string]any) (string, error) {
	if details == nil {
		return "{}", nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("rfq: marshal details: %w", err)
	}
	return string(b), nil
}

// isUniqueViolation reports a unique-constraint failure (postgres 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
