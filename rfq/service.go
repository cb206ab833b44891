package rfq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"rfqflow/notification"
)

var (
	// ErrInvalidTransition signals a lifecycle move not adjacent in the DAG,
	// or one that must go through a dedicated flow instead of a status write.
	ErrInvalidTransition = errors.New("rfq: invalid transition")
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Notifier delivers best-effort notifications after commit.
type Notifier interface {
	Dispatch(ctx context.Context, e notification.Event)
}

// Service owns RFQ creation and lifecycle transitions.
type Service struct {
	pool        TxBeginner
	repo        Repository
	notifier    Notifier
	idGenerator func() string
	now         func() time.Time
}

func NewService(pool TxBeginner, repo Repository, notifier Notifier) *Service {
	return &Service{
		pool:        pool,
		repo:        repo,
		notifier:    notifier,
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// SubmitParams carries a buyer's RFQ draft.
type SubmitParams struct {
	BuyerID      string
	Details      map[string]any
	BudgetMin    *decimal.Decimal
	BudgetMax    *decimal.Decimal
	Currency     string
	NDARequired  bool
	Confidential bool
}

// Submit creates the RFQ in submitted state, ready for admin review.
func (s *Service) Submit(ctx context.Context, params SubmitParams) (RFQ, error) {
	if params.BuyerID == "" {
		return RFQ{}, fmt.Errorf("rfq: missing buyer id")
	}
	if params.Currency == "" {
		params.Currency = "INR"
	}

	if params.BudgetMin != nil && !params.BudgetMin.IsPositive() {
		return RFQ{}, fmt.Errorf("rfq: budget minimum must be positive")
	}
	if params.BudgetMin != nil && params.BudgetMax != nil && params.BudgetMin.GreaterThan(*params.BudgetMax) {
		return RFQ{}, fmt.Errorf("rfq: budget minimum exceeds maximum")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return RFQ{}, fmt.Errorf("rfq: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	created, err := s.repo.Create(ctx, tx, RFQ{
		ID:           s.idGenerator(),
		BuyerID:      params.BuyerID,
		Status:       StatusSubmitted,
		Details:      params.Details,
		BudgetMin:    params.BudgetMin,
		BudgetMax:    params.BudgetMax,
		Currency:     params.Currency,
		NDARequired:  params.NDARequired,
		Confidential: params.Confidential,
	})
	if err != nil {
		return RFQ{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return RFQ{}, fmt.Errorf("rfq: commit submit: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Dispatch(ctx, notification.Event{
			UserID:     created.BuyerID,
			Type:       notification.TypeRFQSubmitted,
			Title:      "RFQ submitted",
			Message:    "Your request for quotation was submitted for review",
			EntityID:   created.ID,
			EntityType: notification.EntityRFQ,
		})
	}

	return created, nil
}

// TransitionParams names one requested lifecycle move. ExpectedVersion, when
// non-zero, is the version the caller last read; a mismatch fails with
// ErrConcurrentModification instead of silently overwriting.
type TransitionParams struct {
	RFQID           string
	Target          Status
	ActorID         string
	ExpectedVersion int
	CancelReason    *string
}

// Transition applies one status move validated against the lifecycle DAG.
// Re-entering the current state is a no-op returning the unchanged row.
func (s *Service) Transition(ctx context.Context, params TransitionParams) (RFQ, error) {
	if params.RFQID == "" {
		return RFQ{}, fmt.Errorf("rfq: missing rfq id")
	}
	if !ValidStatus(params.Target) {
		return RFQ{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, params.Target)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return RFQ{}, fmt.Errorf("rfq: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := s.repo.GetForUpdate(ctx, tx, params.RFQID)
	if err != nil {
		return RFQ{}, err
	}
	if params.ExpectedVersion != 0 && params.ExpectedVersion != current.Version {
		return RFQ{}, ErrConcurrentModification
	}
	if current.Status == params.Target {
		return current, nil
	}
	if !CanTransition(current.Status, params.Target) {
		return RFQ{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, params.Target)
	}
	// Acceptance retires the winning offer and creates the order in the same
	// transaction; that flow is owned by offer acceptance, never a bare write.
	if params.Target == StatusAccepted {
		return RFQ{}, fmt.Errorf("%w: accepted is entered by accepting a curated offer", ErrInvalidTransition)
	}

	updated, err := s.repo.UpdateStatus(ctx, tx, params.RFQID, current.Version, params.Target, params.CancelReason)
	if err != nil {
		return RFQ{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return RFQ{}, fmt.Errorf("rfq: commit transition: %w", err)
	}

	s.notifyTransition(ctx, updated)

	return updated, nil
}

func (s *Service) Get(ctx context.Context, id string) (RFQ, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) notifyTransition(ctx context.Context, r RFQ) {
	if s.notifier == nil {
		return
	}
	if r.Status != StatusOffersPublished {
		return
	}
	s.notifier.Dispatch(ctx, notification.Event{
		UserID:     r.BuyerID,
		Type:       notification.TypeRFQApproved,
		Title:      "Offer published",
		Message:    "A curated offer is ready for your RFQ",
		EntityID:   r.ID,
		EntityType: notification.EntityRFQ,
	})
}