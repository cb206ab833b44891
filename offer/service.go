package offer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"rfqflow/notification"
	"rfqflow/order"
	"rfqflow/rfq"
)

var (
	// ErrOfferNotActive blocks acceptance of expired or withdrawn offers.
	ErrOfferNotActive = errors.New("offer: not active")
	// ErrOfferExpired signals the offer's expiry passed before acceptance.
	ErrOfferExpired = errors.New("offer: expired")
	// ErrForbidden signals the actor is not the RFQ's buyer.
	ErrForbidden = errors.New("offer: forbidden")
	// ErrSplitMismatch signals advance + final does not equal the offer price.
	ErrSplitMismatch = errors.New("offer: advance and final amounts must sum to price")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the offer data access the service needs.
type Store interface {
	Get(ctx context.Context, id string) (Offer, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Offer, error)
	ExpireActive(ctx context.Context, tx pgx.Tx, rfqID string) error
	Insert(ctx context.Context, tx pgx.Tx, o Offer) (Offer, error)
	MarkAccepted(ctx context.Context, tx pgx.Tx, id string) (Offer, error)
}

// OrderCreator is the order-side surface used inside the acceptance
// transaction.
type OrderCreator interface {
	CreateFromOffer(ctx context.Context, tx pgx.Tx, params order.CreateFromOfferParams) (order.Order, error)
}

// Notifier delivers best-effort notifications after commit.
type Notifier interface {
	Dispatch(ctx context.Context, e notification.Event)
}

// Service owns curated-offer publication and acceptance. Acceptance is the
// only path that creates an order.
type Service struct {
	pool     TxBeginner
	repo     Store
	rfqs     rfq.Repository
	orders   OrderCreator
	notifier Notifier
	now      func() time.Time
}

func NewService(pool TxBeginner, repo Store, rfqs rfq.Repository, orders OrderCreator, notifier Notifier) *Service {
	return &Service{
		pool:     pool,
		repo:     repo,
		rfqs:     rfqs,
		orders:   orders,
		notifier: notifier,
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PublishParams is the admin-assembled package to put in front of the buyer.
type PublishParams struct {
	RFQID           string
	SupplierID      *string
	Price           decimal.Decimal
	Currency        string
	Terms           string
	PaymentLink     string
	AdvanceAmount   decimal.Decimal
	FinalAmount     decimal.Decimal
	PaymentDeadline *time.Time
	ExpiresAt       *time.Time
}

// Publish replaces any active offer for the RFQ with a new one and, when the
// RFQ is still in invited state, advances it to offers_published. The expire
// and insert happen in one transaction so the one-active invariant holds at
// every commit point.
func (s *Service) Publish(ctx context.Context, params PublishParams) (Offer, error) {
	if params.RFQID == "" {
		return Offer{}, fmt.Errorf("offer: missing rfq id")
	}
	if !params.Price.IsPositive() {
		return Offer{}, fmt.Errorf("offer: price must be positive")
	}
	if params.Currency == "" {
		return Offer{}, fmt.Errorf("offer: currency required")
	}
	if params.AdvanceAmount.IsNegative() || params.FinalAmount.IsNegative() {
		return Offer{}, fmt.Errorf("offer: split amounts must not be negative")
	}
	if !params.AdvanceAmount.Add(params.FinalAmount).Equal(params.Price) {
		return Offer{}, ErrSplitMismatch
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Offer{}, fmt.Errorf("offer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	r, err := s.rfqs.GetForUpdate(ctx, tx, params.RFQID)
	if err != nil {
		return Offer{}, err
	}
	switch r.Status {
	case rfq.StatusInvited, rfq.StatusOffersPublished:
		// publishable
	default:
		return Offer{}, fmt.Errorf("%w: rfq is %s", rfq.ErrInvalidTransition, r.Status)
	}

	if err := s.repo.ExpireActive(ctx, tx, params.RFQID); err != nil {
		return Offer{}, err
	}

	created, err := s.repo.Insert(ctx, tx, Offer{
		RFQID:           params.RFQID,
		SupplierID:      params.SupplierID,
		Price:           params.Price,
		Currency:        params.Currency,
		Terms:           params.Terms,
		PaymentLink:     params.PaymentLink,
		AdvanceAmount:   params.AdvanceAmount,
		FinalAmount:     params.FinalAmount,
		PaymentDeadline: params.PaymentDeadline,
		ExpiresAt:       params.ExpiresAt,
	})
	if err != nil {
		return Offer{}, err
	}

	if r.Status == rfq.StatusInvited {
		if _, err := s.rfqs.UpdateStatus(ctx, tx, r.ID, r.Version, rfq.StatusOffersPublished, nil); err != nil {
			return Offer{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Offer{}, fmt.Errorf("offer: commit publish: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, notification.Event{
			UserID:     r.BuyerID,
			Type:       notification.TypeRFQApproved,
			Title:      "Offer published",
			Message:    "A curated offer is ready for your RFQ",
			EntityID:   created.ID,
			EntityType: notification.EntityRFQ,
		})
	}

	return created, nil
}

// Accept books the buyer's acceptance: the RFQ moves to accepted, the offer is
// retired, and the order is created, all in one transaction. Retries are
// tolerated; accepting an already-accepted offer returns its existing order.
func (s *Service) Accept(ctx context.Context, offerID, actorID string) (order.Order, error) {
	if offerID == "" {
		return order.Order{}, fmt.Errorf("offer: missing offer id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return order.Order{}, fmt.Errorf("offer: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	off, err := s.repo.GetForUpdate(ctx, tx, offerID)
	if err != nil {
		return order.Order{}, err
	}

	r, err := s.rfqs.GetForUpdate(ctx, tx, off.RFQID)
	if err != nil {
		return order.Order{}, err
	}
	if actorID != "" && actorID != r.BuyerID {
		return order.Order{}, ErrForbidden
	}

	// Idempotency: a replayed acceptance finds the offer already flipped and
	// returns the order created by the first call.
	if off.Status == StatusAccepted {
		existing, err := s.orders.CreateFromOffer(ctx, tx, createParams(off, r))
		if err != nil {
			return order.Order{}, err
		}
		// Commit here too: if the first call crashed between flipping the
		// offer and inserting the order, this replay repairs the order row.
		if err := tx.Commit(ctx); err != nil {
			return order.Order{}, fmt.Errorf("offer: commit accept: %w", err)
		}
		return existing, nil
	}
	if off.Status != StatusActive {
		return order.Order{}, fmt.Errorf("%w: status is %s", ErrOfferNotActive, off.Status)
	}
	if off.ExpiresAt != nil && s.now().After(*off.ExpiresAt) {
		return order.Order{}, ErrOfferExpired
	}
	if r.Status != rfq.StatusOffersPublished {
		return order.Order{}, fmt.Errorf("%w: rfq is %s", rfq.ErrInvalidTransition, r.Status)
	}

	if _, err := s.rfqs.UpdateStatus(ctx, tx, r.ID, r.Version, rfq.StatusAccepted, nil); err != nil {
		return order.Order{}, err
	}
	if _, err := s.repo.MarkAccepted(ctx, tx, offerID); err != nil {
		return order.Order{}, err
	}

	created, err := s.orders.CreateFromOffer(ctx, tx, createParams(off, r))
	if err != nil {
		return order.Order{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return order.Order{}, fmt.Errorf("offer: commit accept: %w", err)
	}

	s.notifyOrderCreated(ctx, created)

	return created, nil
}

func (s *Service) Get(ctx context.Context, id string) (Offer, error) {
	return s.repo.Get(ctx, id)
}

func createParams(off Offer, r rfq.RFQ) order.CreateFromOfferParams {
	return order.CreateFromOfferParams{
		CuratedOfferID: off.ID,
		RFQID:          off.RFQID,
		BuyerID:        r.BuyerID,
		SupplierID:     off.SupplierID,
		TotalAmount:    off.Price,
		Currency:       off.Currency,
	}
}

func (s *Service) notifyOrderCreated(ctx context.Context, o order.Order) {
	if s.notifier == nil {
		return
	}
	ev := notification.Event{
		Type:       notification.TypeOrderCreated,
		Title:      "Order created",
		Message:    fmt.Sprintf("Order for %s %s created", o.TotalAmount.StringFixed(2), o.Currency),
		EntityID:   o.ID,
		EntityType: notification.EntityOrder,
	}
	ev.UserID = o.BuyerID
	s.notifier.Dispatch(ctx, ev)
	if o.SupplierID != nil && *o.SupplierID != "" {
		ev.UserID = *o.SupplierID
		s.notifier.Dispatch(ctx, ev)
	}
}
