package offer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no offer row exists for the identifier.
	ErrNotFound = errors.New("offer: not found")
	// ErrActiveOfferExists signals the one-active-offer invariant blocked an insert.
	ErrActiveOfferExists = errors.New("offer: rfq already has an active offer")
)

const offerColumns = `id, rfq_id, supplier_id, price, currency, terms, payment_link, advance_amount, final_amount, payment_deadline, status::text, published_at, expires_at, created_at, updated_at`

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Get(ctx context.Context, id string) (Offer, error) {
	query := fmt.Sprintf(`SELECT %s FROM curated_offers WHERE id = $1`, offerColumns)
	o, err := scanOffer(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, ErrNotFound
		}
		return Offer{}, fmt.Errorf("offer: get: %w", err)
	}
	return o, nil
}

func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Offer, error) {
	query := fmt.Sprintf(`SELECT %s FROM curated_offers WHERE id = $1 FOR UPDATE`, offerColumns)
	o, err := scanOffer(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, ErrNotFound
		}
		return Offer{}, fmt.Errorf("offer: get for update: %w", err)
	}
	return o, nil
}

// ExpireActive retires any currently active offer for the RFQ so a
// replacement can be published without violating the partial unique index.
func (r *Repository) ExpireActive(ctx context.Context, tx pgx.Tx, rfqID string) error {
	if _, err := tx.Exec(ctx, `
        UPDATE curated_offers
        SET status = 'expired', updated_at = get_tx_timestamp()
        WHERE rfq_id = $1 AND status = 'active'
    `, rfqID); err != nil {
		return fmt.Errorf("offer: expire active: %w", err)
	}
	return nil
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error) {
	query := fmt.Sprintf(`
        INSERT INTO curated_offers (rfq_id, supplier_id, price, currency, terms, payment_link, advance_amount, final_amount, payment_deadline, expires_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING %s`, offerColumns)

	created, err := scanOffer(tx.QueryRow(ctx, query,
		o.RFQID,
		o.SupplierID,
		o.Price,
		o.Currency,
		o.Terms,
		o.PaymentLink,
		o.AdvanceAmount,
		o.FinalAmount,
		o.PaymentDeadline,
		o.ExpiresAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Offer{}, ErrActiveOfferExists
		}
		return Offer{}, fmt.Errorf("offer: insert: %w", err)
	}
	return created, nil
}

// MarkAccepted flips an active offer to accepted inside the caller's
// transaction.
func (r *Repository) MarkAccepted(ctx context.Context, tx pgx.Tx, id string) (Offer, error) {
	query := fmt.Sprintf(`
        UPDATE curated_offers
        SET status = 'accepted', updated_at = get_tx_timestamp()
        WHERE id = $1 AND status = 'active'
        RETURNING %s`, offerColumns)

	o, err := scanOffer(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, ErrNotFound
		}
		return Offer{}, fmt.Errorf("offer: mark accepted: %w", err)
	}
	return o, nil
}

// ActiveForRFQ returns the single active offer for an RFQ, if any.
func (r *Repository) ActiveForRFQ(ctx context.Context, rfqID string) (Offer, error) {
	query := fmt.Sprintf(`SELECT %s FROM curated_offers WHERE rfq_id = $1 AND status = 'active'`, offerColumns)
	o, err := scanOffer(r.pool.QueryRow(ctx, query, rfqID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offer{}, ErrNotFound
		}
		return Offer{}, fmt.Errorf("offer: active for rfq: %w", err)
	}
	return o, nil
}

func scanOffer(row pgx.Row) (Offer, error) {
	var o Offer
	return o, row.Scan(
		&o.ID,
		&o.RFQID,
		&o.SupplierID,
		&o.Price,
		&o.Currency,
		&o.Terms,
		&o.PaymentLink,
		&o.AdvanceAmount,
		&o.FinalAmount,
		&o.PaymentDeadline,
		&o.Status,
		&o.PublishedAt,
		&o.ExpiresAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
}
