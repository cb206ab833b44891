package rfq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"rfqflow/notification"
)

var (
	// ErrDuplicateInvite signals the (rfq, supplier) pair already has an invite.
	ErrDuplicateInvite = errors.New("rfq: supplier already invited")
	// ErrInviteNotFound is returned when no invite row exists.
	ErrInviteNotFound = errors.New("rfq: invite not found")
	// ErrInviteClosed blocks quotes against declined invites or terminal RFQs.
	ErrInviteClosed = errors.New("rfq: invite no longer accepts quotes")
	// ErrDeadlinePassed blocks quote submission past the response deadline.
	ErrDeadlinePassed = errors.New("rfq: response deadline passed")
)

// InviteService manages supplier invites and their quote versions.
type InviteService struct {
	pool     *pgxpool.Pool
	notifier Notifier
	now      func() time.Time
}

func NewInviteService(pool *pgxpool.Pool, notifier Notifier) *InviteService {
	return &InviteService{
		pool:     pool,
		notifier: notifier,
		now:      time.Now,
	}
}

func (s *InviteService) WithClock(now func() time.Time) *InviteService {
	s.now = now
	return s
}

// Invite adds one supplier to an RFQ. A second invite for the same pair fails
// with ErrDuplicateInvite.
func (s *InviteService) Invite(ctx context.Context, rfqID, supplierID string, respondBy *time.Time) (Invite, error) {
	if rfqID == "" || supplierID == "" {
		return Invite{}, fmt.Errorf("rfq: invite requires rfq and supplier ids")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Invite{}, fmt.Errorf("rfq: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status Status
	if err := tx.QueryRow(ctx, `SELECT status::text FROM rfqs WHERE id = $1`, rfqID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invite{}, ErrNotFound
		}
		return Invite{}, fmt.Errorf("rfq: load rfq for invite: %w", err)
	}
	if Terminal(status) {
		return Invite{}, fmt.Errorf("%w: rfq is %s", ErrInvalidTransition, status)
	}

	const insertSQL = `
        INSERT INTO supplier_invites (rfq_id, supplier_id, respond_by)
        VALUES ($1, $2, $3)
        RETURNING id, rfq_id, supplier_id, status::text, respond_by, created_at, updated_at
    `
	inv, err := scanInvite(tx.QueryRow(ctx, insertSQL, rfqID, supplierID, respondBy))
	if err != nil {
		if isUniqueViolation(err) {
			return Invite{}, ErrDuplicateInvite
		}
		return Invite{}, fmt.Errorf("rfq: insert invite: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Invite{}, fmt.Errorf("rfq: commit invite: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, notification.Event{
			UserID:     supplierID,
			Type:       notification.TypeSupplierInvited,
			Title:      "New RFQ invitation",
			Message:    "You have been invited to quote on an RFQ",
			EntityID:   rfqID,
			EntityType: notification.EntityRFQ,
		})
	}

	return inv, nil
}

// QuoteParams is one supplier bid against an invite.
type QuoteParams struct {
	InviteID     string
	SupplierID   string
	Price        decimal.Decimal
	Currency     string
	LeadTimeDays int
	Terms        string
}

// SubmitQuote records a new quote version. Quotes are never edited in place: a
// resubmission inserts the next version and marks the invite responded.
func (s *InviteService) SubmitQuote(ctx context.Context, params QuoteParams) (Quote, error) {
	if params.InviteID == "" || params.SupplierID == "" {
		return Quote{}, fmt.Errorf("rfq: quote requires invite and supplier ids")
	}
	if !params.Price.IsPositive() {
		return Quote{}, fmt.Errorf("rfq: quote price must be positive")
	}
	if params.Currency == "" {
		return Quote{}, fmt.Errorf("rfq: quote currency required")
	}
	if params.LeadTimeDays <= 0 {
		return Quote{}, fmt.Errorf("rfq: quote lead time must be positive")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("rfq: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const inviteSQL = `
        SELECT id, rfq_id, supplier_id, status::text, respond_by, created_at, updated_at
        FROM supplier_invites
        WHERE id = $1
        FOR UPDATE
    `
	inv, err := scanInvite(tx.QueryRow(ctx, inviteSQL, params.InviteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, ErrInviteNotFound
		}
		return Quote{}, fmt.Errorf("rfq: load invite: %w", err)
	}
	if inv.SupplierID != params.SupplierID {
		return Quote{}, fmt.Errorf("rfq: invite does not belong to supplier")
	}
	if inv.Status == InviteStatusDeclined {
		return Quote{}, ErrInviteClosed
	}
	if inv.RespondBy != nil && s.now().After(*inv.RespondBy) {
		return Quote{}, ErrDeadlinePassed
	}

	const insertSQL = `
        INSERT INTO quotes (invite_id, price, currency, lead_time_days, terms, version)
        SELECT $1, $2, $3, $4, $5, COALESCE(MAX(version), 0) + 1
        FROM quotes
        WHERE invite_id = $1
        RETURNING id, invite_id, price, currency, lead_time_days, terms, version, created_at
    `
	var quote Quote
	err = tx.QueryRow(ctx, insertSQL,
		params.InviteID,
		params.Price,
		params.Currency,
		params.LeadTimeDays,
		params.Terms,
	).Scan(&quote.ID, &quote.InviteID, &quote.Price, &quote.Currency, &quote.LeadTimeDays, &quote.Terms, &quote.Version, &quote.CreatedAt)
	if err != nil {
		return Quote{}, fmt.Errorf("rfq: insert quote: %w", err)
	}

	if inv.Status != InviteStatusResponded {
		if _, err := tx.Exec(ctx, `
            UPDATE supplier_invites
            SET status = 'responded', updated_at = get_tx_timestamp()
            WHERE id = $1
        `, params.InviteID); err != nil {
			return Quote{}, fmt.Errorf("rfq: mark invite responded: %w", err)
		}
	}

	var buyerID string
	if err := tx.QueryRow(ctx, `SELECT buyer_id FROM rfqs WHERE id = $1`, inv.RFQID).Scan(&buyerID); err != nil {
		return Quote{}, fmt.Errorf("rfq: load buyer for quote: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Quote{}, fmt.Errorf("rfq: commit quote: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, notification.Event{
			UserID:     buyerID,
			Type:       notification.TypeQuoteReceived,
			Title:      "Quote received",
			Message:    "A supplier submitted a quote on your RFQ",
			EntityID:   quote.ID,
			EntityType: notification.EntityQuote,
		})
	}

	return quote, nil
}

// Decline marks an invite declined. Declining twice is a no-op.
func (s *InviteService) Decline(ctx context.Context, inviteID, supplierID string) (Invite, error) {
	const query = `
        UPDATE supplier_invites
        SET status = 'declined', updated_at = get_tx_timestamp()
        WHERE id = $1 AND supplier_id = $2 AND status <> 'responded'
        RETURNING id, rfq_id, supplier_id, status::text, respond_by, created_at, updated_at
    `
	inv, err := scanInvite(s.pool.QueryRow(ctx, query, inviteID, supplierID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invite{}, ErrInviteNotFound
		}
		return Invite{}, fmt.Errorf("rfq: decline invite: %w", err)
	}
	return inv, nil
}

// QuotesForInvite returns all quote versions for an invite, newest version first.
func (s *InviteService) QuotesForInvite(ctx context.Context, inviteID string) ([]Quote, error) {
	const query = `
        SELECT id, invite_id, price, currency, lead_time_days, terms, version, created_at
        FROM quotes
        WHERE invite_id = $1
        ORDER BY version DESC
    `
	rows, err := s.pool.Query(ctx, query, inviteID)
	if err != nil {
		return nil, fmt.Errorf("rfq: list quotes: %w", err)
	}
	defer rows.Close()

	out := make([]Quote, 0, 4)
	for rows.Next() {
		var q Quote
		if err := rows.Scan(&q.ID, &q.InviteID, &q.Price, &q.Currency, &q.LeadTimeDays, &q.Terms, &q.Version, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("rfq: scan quote: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rfq: iterate quotes: %w", err)
	}
	return out, nil
}

func scanInvite(row pgx.Row) (Invite, error) {
	var inv Invite
	return inv, row.Scan(
		&inv.ID,
		&inv.RFQID,
		&inv.SupplierID,
		&inv.Status,
		&inv.RespondBy,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
}
