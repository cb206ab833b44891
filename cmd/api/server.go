package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rfqflow/auth"
	"rfqflow/earlypay"
	"rfqflow/notification"
	"rfqflow/offer"
	"rfqflow/order"
	"rfqflow/payment"
	"rfqflow/rfq"
)

type ctxKey string

const (
	ctxKeyUserID ctxKey = "userID"
	ctxKeyRole   ctxKey = "role"
)

type rfqService interface {
	Submit(ctx context.Context, params rfq.SubmitParams) (rfq.RFQ, error)
	Transition(ctx context.Context, params rfq.TransitionParams) (rfq.RFQ, error)
	Get(ctx context.Context, id string) (rfq.RFQ, error)
}

type inviteService interface {
	Invite(ctx context.Context, rfqID, supplierID string, respondBy *time.Time) (rfq.Invite, error)
	SubmitQuote(ctx context.Context, params rfq.QuoteParams) (rfq.Quote, error)
	Decline(ctx context.Context, inviteID, supplierID string) (rfq.Invite, error)
	QuotesForInvite(ctx context.Context, inviteID string) ([]rfq.Quote, error)
}

type offerService interface {
	Publish(ctx context.Context, params offer.PublishParams) (offer.Offer, error)
	Accept(ctx context.Context, offerID, actorID string) (order.Order, error)
	Get(ctx context.Context, id string) (offer.Offer, error)
}

type orderService interface {
	Transition(ctx context.Context, params order.TransitionParams) (order.Order, error)
	AppendProductionUpdate(ctx context.Context, orderID, stage, detail string) (order.ProductionUpdate, error)
	Get(ctx context.Context, id string) (order.Order, error)
}

type paymentService interface {
	RecordTransaction(ctx context.Context, ev payment.Event) (payment.Transaction, error)
	OrderBalance(ctx context.Context, orderID string) (payment.Balance, error)
	PaymentStatus(ctx context.Context, orderID string) (payment.RollupStatus, error)
}

type earlypayService interface {
	Submit(ctx context.Context, d earlypay.Draft) (earlypay.Request, error)
	ListForSupplier(ctx context.Context, supplierID string, limit int) ([]earlypay.Request, error)
}

type notificationService interface {
	List(ctx context.Context, userID string, limit int) ([]notification.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
}

type authService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (string, auth.Role, error)
	VerifySupplier(ctx context.Context, userID string) (*auth.User, error)
}

// Server routes HTTP requests to the domain services. Handlers parse paths by
// hand so each one can be exercised directly in tests.
type Server struct {
	authService         authService
	rfqService          rfqService
	inviteService       inviteService
	offerService        offerService
	orderService        orderService
	paymentService      paymentService
	earlypayService     earlypayService
	notificationService notificationService
	webhookSecret       string
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/rfqs", s.requireAuth(s.handleRFQs))
	mux.HandleFunc("/api/rfqs/", s.requireAuth(s.handleRFQDetail))
	mux.HandleFunc("/api/invites/", s.requireAuth(s.handleInviteDetail))
	mux.HandleFunc("/api/users/", s.requireAuth(s.handleUserDetail))
	mux.HandleFunc("/api/offers/", s.requireAuth(s.handleOfferDetail))
	mux.HandleFunc("/api/orders/", s.requireAuth(s.handleOrderDetail))
	mux.HandleFunc("/api/payments/events", s.handlePaymentEvent)
	mux.HandleFunc("/api/earlypay", s.requireAuth(s.handleEarlyPay))
	mux.HandleFunc("/api/notifications", s.requireAuth(s.handleNotifications))
	mux.HandleFunc("/api/notifications/", s.requireAuth(s.handleNotificationDetail))
	return mux
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		userID, role, err := s.authService.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next(w, r.WithContext(ctx))
	}
}

func requestUser(r *http.Request) (string, auth.Role) {
	userID, _ := r.Context().Value(ctxKeyUserID).(string)
	role, _ := r.Context().Value(ctxKeyRole).(auth.Role)
	return userID, role
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, auth.ErrWeakPassword), errors.Is(err, auth.ErrValidation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeInternalError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, userResponseFrom(*user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token: result.Token,
		User:  userResponseFrom(result.User),
	})
}

func (s *Server) handleRFQs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, role := requestUser(r)
	if role != auth.RoleBuyer && role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "only buyers create rfqs")
		return
	}

	var body createRFQRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	params := rfq.SubmitParams{
		BuyerID:      userID,
		Details:      body.Details,
		Currency:     body.Currency,
		NDARequired:  body.NDARequired,
		Confidential: body.Confidential,
	}
	var err error
	if params.BudgetMin, err = parseMoney(body.BudgetMin); err != nil {
		writeError(w, http.StatusBadRequest, "invalid budgetMin")
		return
	}
	if params.BudgetMax, err = parseMoney(body.BudgetMax); err != nil {
		writeError(w, http.StatusBadRequest, "invalid budgetMax")
		return
	}

	created, err := s.rfqService.Submit(r.Context(), params)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rfqResponseFrom(created))
}

func (s *Server) handleRFQDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/rfqs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		writeError(w, http.StatusBadRequest, "missing rfq id")
		return
	}
	rfqID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleGetRFQ(w, r, rfqID)
	case len(parts) == 1 && r.Method == http.MethodPatch:
		s.handleRFQTransition(w, r, rfqID)
	case len(parts) == 2 && parts[1] == "invites" && r.Method == http.MethodPost:
		s.handleCreateInvite(w, r, rfqID)
	case len(parts) == 2 && parts[1] == "offers" && r.Method == http.MethodPost:
		s.handlePublishOffer(w, r, rfqID)
	case len(parts) == 1 || len(parts) == 2:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleGetRFQ(w http.ResponseWriter, r *http.Request, rfqID string) {
	record, err := s.rfqService.Get(r.Context(), rfqID)
	if err != nil {
		if errors.Is(err, rfq.ErrNotFound) {
			writeError(w, http.StatusNotFound, "rfq not found")
			return
		}
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rfqResponseFrom(record))
}

func (s *Server) handleRFQTransition(w http.ResponseWriter, r *http.Request, rfqID string) {
	userID, _ := requestUser(r)
	var body transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	updated, err := s.rfqService.Transition(r.Context(), rfq.TransitionParams{
		RFQID:           rfqID,
		Target:          rfq.Status(body.Status),
		ActorID:         userID,
		ExpectedVersion: body.ExpectedVersion,
		CancelReason:    body.CancelReason,
	})
	if err != nil {
		switch {
		case errors.Is(err, rfq.ErrNotFound):
			writeError(w, http.StatusNotFound, "rfq not found")
		case errors.Is(err, rfq.ErrConcurrentModification):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, rfq.ErrInvalidTransition):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeInternalError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, rfqResponseFrom(updated))
}

func (s *Server) handleCreateInvite(w http.ResponseWriter, r *http.Request, rfqID string) {
	_, role := requestUser(r)
	if role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "only admins invite suppliers")
		return
	}
	var body struct {
		SupplierID string     `json:"supplierId"`
		RespondBy  *time.Time `json:"respondBy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	invite, err := s.inviteService.Invite(r.Context(), rfqID, body.SupplierID, body.RespondBy)
	if err != nil {
		switch {
		case errors.Is(err, rfq.ErrNotFound):
			writeError(w, http.StatusNotFound, "rfq not found")
		case errors.Is(err, rfq.ErrDuplicateInvite):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, rfq.ErrInvalidTransition):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeInternalError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, inviteResponseFrom(invite))
}

func (s *Server) handlePublishOffer(w http.ResponseWriter, r *http.Request, rfqID string) {
	_, role := requestUser(r)
	if role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "only admins publish offers")
		return
	}
	var body publishOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	params := offer.PublishParams{
		RFQID:           rfqID,
		SupplierID:      body.SupplierID,
		Currency:        body.Currency,
		Terms:           body.Terms,
		PaymentLink:     body.PaymentLink,
		PaymentDeadline: body.PaymentDeadline,
		ExpiresAt:       body.ExpiresAt,
	}
	var err error
	if params.Price, err = decimal.NewFromString(body.Price); err != nil {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}
	if params.AdvanceAmount, err = decimal.NewFromString(body.AdvanceAmount); err != nil {
		writeError(w, http.StatusBadRequest, "invalid advanceAmount")
		return
	}
	if params.FinalAmount, err = decimal.NewFromString(body.FinalAmount); err != nil {
		writeError(w, http.StatusBadRequest, "invalid finalAmount")
		return
	}

	published, err := s.offerService.Publish(r.Context(), params)
	if err != nil {
		switch {
		case errors.Is(err, rfq.ErrNotFound):
			writeError(w, http.StatusNotFound, "rfq not found")
		case errors.Is(err, offer.ErrSplitMismatch), errors.Is(err, rfq.ErrInvalidTransition):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeInternalError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, offerResponseFrom(published))
}

func (s *Server) handleInviteDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/invites/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		writeError(w, http.StatusBadRequest, "missing invite id")
		return
	}
	inviteID := parts[0]
	userID, role := requestUser(r)

	switch {
	case len(parts) == 2 && parts[1] == "quotes" && r.Method == http.MethodPost:
		if role != auth.RoleSupplier {
			writeError(w, http.StatusForbidden, "only suppliers quote")
			return
		}
		s.handleSubmitQuote(w, r, inviteID, userID)
	case len(parts) == 2 && parts[1] == "quotes" && r.Method == http.MethodGet:
		s.handleListQuotes(w, r, inviteID)
	case len(parts) == 2 && parts[1] == "decline" && r.Method == http.MethodPost:
		s.handleDeclineInvite(w, r, inviteID, userID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleUserDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/users/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}
	_, role := requestUser(r)

	switch {
	case len(parts) == 2 && parts[1] == "verify" && r.Method == http.MethodPost:
		if role != auth.RoleAdmin {
			writeError(w, http.StatusForbidden, "only admins verify suppliers")
			return
		}
		user, err := s.authService.VerifySupplier(r.Context(), parts[0])
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrUserNotFound):
				writeError(w, http.StatusNotFound, err.Error())
			case errors.Is(err, auth.ErrNotSupplier):
				writeError(w, http.StatusUnprocessableEntity, err.Error())
			default:
				writeInternalError(w, err)
			}
			return
		}
		writeJSON(w, http.StatusOK, userResponseFrom(*user))
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleSubmitQuote(w http.ResponseWriter, r *http.Request, inviteID, supplierID string) {
	var body quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	price, err := decimal.NewFromString(body.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid price")
		return
	}
	quote, err := s.inviteService.SubmitQuote(r.Context(), rfq.QuoteParams{
		InviteID:     inviteID,
		SupplierID:   supplierID,
		Price:        price,
		Currency:     body.Currency,
		LeadTimeDays: body.LeadTimeDays,
		Terms:        body.Terms,
	})
	if err != nil {
		switch {
		case errors.Is(err, rfq.ErrInviteNotFound):
			writeError(w, http.StatusNotFound, "invite not found")
		case errors.Is(err, rfq.ErrInviteClosed), errors.Is(err, rfq.ErrDeadlinePassed):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, quoteResponseFrom(quote))
}

func (s *Server) handleListQuotes(w http.ResponseWriter, r *http.Request, inviteID string) {
	quotes, err := s.inviteService.QuotesForInvite(r.Context(), inviteID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	items := make([]quoteResponse, 0, len(quotes))
	for _, q := range quotes {
		items = append(items, quoteResponseFrom(q))
	}
	writeJSON(w, http.StatusOK, listResponse[quoteResponse]{Items: items, Total: len(items)})
}

func (s *Server) handleDeclineInvite(w http.ResponseWriter, r *http.Request, inviteID, supplierID string) {
	invite, err := s.inviteService.Decline(r.Context(), inviteID, supplierID)
	if err != nil {
		if errors.Is(err, rfq.ErrInviteNotFound) {
			writeError(w, http.StatusNotFound, "invite not found")
			return
		}
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inviteResponseFrom(invite))
}

func (s *Server) handleOfferDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/offers/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		writeError(w, http.StatusBadRequest, "missing offer id")
		return
	}
	offerID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		record, err := s.offerService.Get(r.Context(), offerID)
		if err != nil {
			if errors.Is(err, offer.ErrNotFound) {
				writeError(w, http.StatusNotFound, "offer not found")
				return
			}
			writeInternalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, offerResponseFrom(record))
	case len(parts) == 2 && parts[1] == "accept" && r.Method == http.MethodPost:
		s.handleAcceptOffer(w, r, offerID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request, offerID string) {
	userID, _ := requestUser(r)
	created, err := s.offerService.Accept(r.Context(), offerID, userID)
	if err != nil {
		switch {
		case errors.Is(err, offer.ErrNotFound):
			writeError(w, http.StatusNotFound, "offer not found")
		case errors.Is(err, offer.ErrForbidden):
			writeError(w, http.StatusForbidden, err.Error())
		case errors.Is(err, offer.ErrOfferNotActive), errors.Is(err, offer.ErrOfferExpired),
			errors.Is(err, rfq.ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeInternalError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, orderResponseFrom(created))
}

func (s *Server) handleOrderDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/orders/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}
	orderID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleGetOrder(w, r, orderID)
	case len(parts) == 1 && r.Method == http.MethodPatch:
		s.handleOrderTransition(w, r, orderID)
	case len(parts) == 2 && parts[1] == "balance" && r.Method == http.MethodGet:
		s.handleOrderBalance(w, r, orderID)
	case len(parts) == 2 && parts[1] == "updates" && r.Method == http.MethodPost:
		s.handleProductionUpdate(w, r, orderID)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request, orderID string) {
	record, err := s.orderService.Get(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponseFrom(record))
}

func (s *Server) handleOrderTransition(w http.ResponseWriter, r *http.Request, orderID string) {
	userID, _ := requestUser(r)
	var body transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	updated, err := s.orderService.Transition(r.Context(), order.TransitionParams{
		OrderID:         orderID,
		Target:          order.Status(body.Status),
		ActorID:         userID,
		ExpectedVersion: body.ExpectedVersion,
	})
	if err != nil {
		switch {
		case errors.Is(err, order.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, order.ErrConcurrentModification):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, order.ErrInvalidTransition):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeInternalError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, orderResponseFrom(updated))
}

func (s *Server) handleOrderBalance(w http.ResponseWriter, r *http.Request, orderID string) {
	balance, err := s.paymentService.OrderBalance(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, payment.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeInternalError(w, err)
		return
	}
	status, err := s.paymentService.PaymentStatus(r.Context(), orderID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{
		TotalAmount:     balance.TotalAmount.String(),
		PaidAmount:      balance.PaidAmount.String(),
		RemainingAmount: balance.RemainingAmount.String(),
		Currency:        balance.Currency,
		IsFullyPaid:     balance.IsFullyPaid,
		Overpaid:        balance.Overpaid,
		PaymentStatus:   string(status),
	})
}

func (s *Server) handleProductionUpdate(w http.ResponseWriter, r *http.Request, orderID string) {
	_, role := requestUser(r)
	if role != auth.RoleSupplier && role != auth.RoleAdmin {
		writeError(w, http.StatusForbidden, "only suppliers post production updates")
		return
	}
	var body struct {
		Stage  string `json:"stage"`
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	update, err := s.orderService.AppendProductionUpdate(r.Context(), orderID, body.Stage, body.Detail)
	if err != nil {
		switch {
		case errors.Is(err, order.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, productionUpdateResponse{
		ID:        update.ID,
		OrderID:   update.OrderID,
		Stage:     update.Stage,
		Detail:    update.Detail,
		CreatedAt: update.CreatedAt.Format(time.RFC3339),
	})
}

// handlePaymentEvent ingests gateway webhooks. The gateway authenticates with
// a shared secret header instead of a user token, and replays of a delivered
// event are answered 200 with the stored transaction.
func (s *Server) handlePaymentEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.webhookSecret != "" && r.Header.Get("X-Webhook-Secret") != s.webhookSecret {
		writeError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}
	var body paymentEventRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	ev := payment.Event{
		TransactionRef: body.TransactionRef,
		OrderID:        body.OrderID,
		CuratedOfferID: body.CuratedOfferID,
		Currency:       body.Currency,
		Status:         payment.Status(body.Status),
		Type:           payment.Type(body.Type),
	}
	var err error
	if ev.Amount, err = decimal.NewFromString(body.Amount); err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	if body.Fees != "" {
		if ev.Fees, err = decimal.NewFromString(body.Fees); err != nil {
			writeError(w, http.StatusBadRequest, "invalid fees")
			return
		}
	}

	txn, err := s.paymentService.RecordTransaction(r.Context(), ev)
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		case errors.Is(err, payment.ErrValidation), errors.Is(err, payment.ErrCurrencyMismatch):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, payment.ErrImmutableTransaction), errors.Is(err, payment.ErrInvalidTransition):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeInternalError(w, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, transactionResponseFrom(txn))
}

func (s *Server) handleEarlyPay(w http.ResponseWriter, r *http.Request) {
	userID, role := requestUser(r)
	if role != auth.RoleSupplier {
		writeError(w, http.StatusForbidden, "only suppliers request early payout")
		return
	}

	switch r.Method {
	case http.MethodPost:
		var body earlyPayRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		amount, err := decimal.NewFromString(body.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid amount")
			return
		}
		req, err := s.earlypayService.Submit(r.Context(), earlypay.Draft{
			SupplierID:           userID,
			OrderID:              body.OrderID,
			InvoiceNumber:        body.InvoiceNumber,
			Amount:               amount,
			Currency:             body.Currency,
			DeliveredConfirmed:   body.DeliveredConfirmed,
			BuyerInvoiceApproved: body.BuyerInvoiceApproved,
			ExpectedDays:         body.ExpectedDays,
		})
		if err != nil {
			if errors.Is(err, earlypay.ErrIneligible) {
				writeError(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, earlyPayResponseFrom(req))
	case http.MethodGet:
		limit := parseLimit(r.URL.Query().Get("limit"), 50)
		requests, err := s.earlypayService.ListForSupplier(r.Context(), userID, limit)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		items := make([]earlyPayResponse, 0, len(requests))
		for _, req := range requests {
			items = append(items, earlyPayResponseFrom(req))
		}
		writeJSON(w, http.StatusOK, listResponse[earlyPayResponse]{Items: items, Total: len(items)})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, _ := requestUser(r)
	limit := parseLimit(r.URL.Query().Get("limit"), 50)
	notifications, err := s.notificationService.List(r.Context(), userID, limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	unread, err := s.notificationService.UnreadCount(r.Context(), userID)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	items := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		items = append(items, notificationResponseFrom(n))
	}
	writeJSON(w, http.StatusOK, notificationListResponse{Items: items, Total: len(items), Unread: unread})
}

func (s *Server) handleNotificationDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID, _ := requestUser(r)
	rest := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")

	switch {
	case len(parts) == 1 && parts[0] == "read-all":
		count, err := s.notificationService.MarkAllRead(r.Context(), userID)
		if err != nil {
			writeInternalError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"updated": count})
	case len(parts) == 2 && parts[1] == "read":
		if err := s.notificationService.MarkRead(r.Context(), userID, parts[0]); err != nil {
			if errors.Is(err, notification.ErrNotFound) {
				writeError(w, http.StatusNotFound, "notification not found")
				return
			}
			writeInternalError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func parseMoney(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Printf("internal error: %v", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
