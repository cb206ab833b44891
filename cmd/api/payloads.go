package main

import (
	"time"

	"rfqflow/auth"
	"rfqflow/earlypay"
	"rfqflow/notification"
	"rfqflow/offer"
	"rfqflow/order"
	"rfqflow/payment"
	"rfqflow/rfq"
)

// Request payloads. Money travels as decimal strings end to end.

type createRFQRequest struct {
	Details      map[string]any `json:"details"`
	BudgetMin    string         `json:"budgetMin"`
	BudgetMax    string         `json:"budgetMax"`
	Currency     string         `json:"currency"`
	NDARequired  bool           `json:"ndaRequired"`
	Confidential bool           `json:"confidential"`
}

type transitionRequest struct {
	Status          string  `json:"status"`
	ExpectedVersion int     `json:"expectedVersion"`
	CancelReason    *string `json:"cancelReason"`
}

type quoteRequest struct {
	Price        string `json:"price"`
	Currency     string `json:"currency"`
	LeadTimeDays int    `json:"leadTimeDays"`
	Terms        string `json:"terms"`
}

type publishOfferRequest struct {
	SupplierID      *string    `json:"supplierId"`
	Price           string     `json:"price"`
	Currency        string     `json:"currency"`
	Terms           string     `json:"terms"`
	PaymentLink     string     `json:"paymentLink"`
	AdvanceAmount   string     `json:"advanceAmount"`
	FinalAmount     string     `json:"finalAmount"`
	PaymentDeadline *time.Time `json:"paymentDeadline"`
	ExpiresAt       *time.Time `json:"expiresAt"`
}

type paymentEventRequest struct {
	TransactionRef string `json:"transactionRef"`
	OrderID        string `json:"orderId"`
	CuratedOfferID string `json:"curatedOfferId"`
	Amount         string `json:"amount"`
	Fees           string `json:"fees"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	Type           string `json:"type"`
}

type earlyPayRequest struct {
	OrderID              string `json:"orderId"`
	InvoiceNumber        string `json:"invoiceNumber"`
	Amount               string `json:"amount"`
	Currency             string `json:"currency"`
	DeliveredConfirmed   bool   `json:"deliveredConfirmed"`
	BuyerInvoiceApproved bool   `json:"buyerInvoiceApproved"`
	ExpectedDays         int    `json:"expectedDays"`
}

// Response payloads.

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

type userResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FullName    string `json:"fullName"`
	CompanyName string `json:"companyName,omitempty"`
	Role        string `json:"role"`
	Verified    bool   `json:"verified"`
	CreatedAt   string `json:"createdAt"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type rfqResponse struct {
	ID           string         `json:"id"`
	BuyerID      string         `json:"buyerId"`
	Status       string         `json:"status"`
	Details      map[string]any `json:"details"`
	BudgetMin    string         `json:"budgetMin,omitempty"`
	BudgetMax    string         `json:"budgetMax,omitempty"`
	Currency     string         `json:"currency"`
	NDARequired  bool           `json:"ndaRequired"`
	Confidential bool           `json:"confidential"`
	CancelReason string         `json:"cancelReason,omitempty"`
	Version      int            `json:"version"`
	CreatedAt    string         `json:"createdAt"`
	UpdatedAt    string         `json:"updatedAt"`
}

type inviteResponse struct {
	ID         string `json:"id"`
	RFQID      string `json:"rfqId"`
	SupplierID string `json:"supplierId"`
	Status     string `json:"status"`
	RespondBy  string `json:"respondBy,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

type quoteResponse struct {
	ID           string `json:"id"`
	InviteID     string `json:"inviteId"`
	Version      int    `json:"version"`
	Price        string `json:"price"`
	Currency     string `json:"currency"`
	LeadTimeDays int    `json:"leadTimeDays"`
	Terms        string `json:"terms,omitempty"`
	CreatedAt    string `json:"createdAt"`
}

type offerResponse struct {
	ID              string `json:"id"`
	RFQID           string `json:"rfqId"`
	SupplierID      string `json:"supplierId,omitempty"`
	Price           string `json:"price"`
	Currency        string `json:"currency"`
	Terms           string `json:"terms,omitempty"`
	PaymentLink     string `json:"paymentLink,omitempty"`
	AdvanceAmount   string `json:"advanceAmount"`
	FinalAmount     string `json:"finalAmount"`
	PaymentDeadline string `json:"paymentDeadline,omitempty"`
	Status          string `json:"status"`
	PublishedAt     string `json:"publishedAt"`
	ExpiresAt       string `json:"expiresAt,omitempty"`
}

type orderResponse struct {
	ID             string `json:"id"`
	CuratedOfferID string `json:"curatedOfferId"`
	RFQID          string `json:"rfqId"`
	BuyerID        string `json:"buyerId"`
	SupplierID     string `json:"supplierId,omitempty"`
	TotalAmount    string `json:"totalAmount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	DepositPaid    bool   `json:"depositPaid"`
	DeliveredAt    string `json:"deliveredAt,omitempty"`
	Version        int    `json:"version"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

type productionUpdateResponse struct {
	ID        string `json:"id"`
	OrderID   string `json:"orderId"`
	Stage     string `json:"stage"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type transactionResponse struct {
	ID             string `json:"id"`
	TransactionRef string `json:"transactionRef"`
	OrderID        string `json:"orderId,omitempty"`
	Amount         string `json:"amount"`
	Fees           string `json:"fees"`
	NetAmount      string `json:"netAmount"`
	Currency       string `json:"currency"`
	Status         string `json:"status"`
	Type           string `json:"type"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

type balanceResponse struct {
	TotalAmount     string `json:"totalAmount"`
	PaidAmount      string `json:"paidAmount"`
	RemainingAmount string `json:"remainingAmount"`
	Currency        string `json:"currency"`
	IsFullyPaid     bool   `json:"isFullyPaid"`
	Overpaid        bool   `json:"overpaid"`
	PaymentStatus   string `json:"paymentStatus"`
}

type earlyPayResponse struct {
	ID            string `json:"id"`
	SupplierID    string `json:"supplierId"`
	OrderID       string `json:"orderId,omitempty"`
	InvoiceNumber string `json:"invoiceNumber"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	ExpectedDays  int    `json:"expectedDays"`
	Discount      string `json:"discount"`
	NetPayout     string `json:"netPayout"`
	Status        string `json:"status"`
	CreatedAt     string `json:"createdAt"`
}

type notificationResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Title      string         `json:"title"`
	Message    string         `json:"message"`
	IsRead     bool           `json:"isRead"`
	EntityID   string         `json:"entityId,omitempty"`
	EntityType string         `json:"entityType,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  string         `json:"createdAt"`
}

type notificationListResponse struct {
	Items  []notificationResponse `json:"items"`
	Total  int                    `json:"total"`
	Unread int                    `json:"unread"`
}

func userResponseFrom(u auth.User) userResponse {
	resp := userResponse{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Role:      string(u.Role),
		Verified:  u.Verified,
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
	if u.CompanyName != nil {
		resp.CompanyName = *u.CompanyName
	}
	return resp
}

func rfqResponseFrom(r rfq.RFQ) rfqResponse {
	resp := rfqResponse{
		ID:           r.ID,
		BuyerID:      r.BuyerID,
		Status:       string(r.Status),
		Details:      r.Details,
		Currency:     r.Currency,
		NDARequired:  r.NDARequired,
		Confidential: r.Confidential,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    r.UpdatedAt.Format(time.RFC3339),
	}
	if r.BudgetMin != nil {
		resp.BudgetMin = r.BudgetMin.String()
	}
	if r.BudgetMax != nil {
		resp.BudgetMax = r.BudgetMax.String()
	}
	if r.CancelReason != nil {
		resp.CancelReason = *r.CancelReason
	}
	return resp
}

func inviteResponseFrom(i rfq.Invite) inviteResponse {
	resp := inviteResponse{
		ID:         i.ID,
		RFQID:      i.RFQID,
		SupplierID: i.SupplierID,
		Status:     string(i.Status),
		CreatedAt:  i.CreatedAt.Format(time.RFC3339),
	}
	if i.RespondBy != nil {
		resp.RespondBy = i.RespondBy.Format(time.RFC3339)
	}
	return resp
}

func quoteResponseFrom(q rfq.Quote) quoteResponse {
	return quoteResponse{
		ID:           q.ID,
		InviteID:     q.InviteID,
		Version:      q.Version,
		Price:        q.Price.String(),
		Currency:     q.Currency,
		LeadTimeDays: q.LeadTimeDays,
		Terms:        q.Terms,
		CreatedAt:    q.CreatedAt.Format(time.RFC3339),
	}
}

func offerResponseFrom(o offer.Offer) offerResponse {
	resp := offerResponse{
		ID:            o.ID,
		RFQID:         o.RFQID,
		Price:         o.Price.String(),
		Currency:      o.Currency,
		Terms:         o.Terms,
		PaymentLink:   o.PaymentLink,
		AdvanceAmount: o.AdvanceAmount.String(),
		FinalAmount:   o.FinalAmount.String(),
		Status:        string(o.Status),
		PublishedAt:   o.PublishedAt.Format(time.RFC3339),
	}
	if o.SupplierID != nil {
		resp.SupplierID = *o.SupplierID
	}
	if o.PaymentDeadline != nil {
		resp.PaymentDeadline = o.PaymentDeadline.Format(time.RFC3339)
	}
	if o.ExpiresAt != nil {
		resp.ExpiresAt = o.ExpiresAt.Format(time.RFC3339)
	}
	return resp
}

func orderResponseFrom(o order.Order) orderResponse {
	resp := orderResponse{
		ID:             o.ID,
		CuratedOfferID: o.CuratedOfferID,
		RFQID:          o.RFQID,
		BuyerID:        o.BuyerID,
		TotalAmount:    o.TotalAmount.String(),
		Currency:       o.Currency,
		Status:         string(o.Status),
		DepositPaid:    o.DepositPaid,
		Version:        o.Version,
		CreatedAt:      o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      o.UpdatedAt.Format(time.RFC3339),
	}
	if o.SupplierID != nil {
		resp.SupplierID = *o.SupplierID
	}
	if o.DeliveredAt != nil {
		resp.DeliveredAt = o.DeliveredAt.Format(time.RFC3339)
	}
	return resp
}

func transactionResponseFrom(t payment.Transaction) transactionResponse {
	resp := transactionResponse{
		ID:             t.ID,
		TransactionRef: t.TransactionRef,
		Amount:         t.Amount.String(),
		Fees:           t.Fees.String(),
		NetAmount:      t.NetAmount.String(),
		Currency:       t.Currency,
		Status:         string(t.Status),
		Type:           string(t.Type),
		CreatedAt:      t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      t.UpdatedAt.Format(time.RFC3339),
	}
	if t.OrderID != nil {
		resp.OrderID = *t.OrderID
	}
	return resp
}

func earlyPayResponseFrom(req earlypay.Request) earlyPayResponse {
	resp := earlyPayResponse{
		ID:            req.ID,
		SupplierID:    req.SupplierID,
		InvoiceNumber: req.InvoiceNumber,
		Amount:        req.Amount.String(),
		Currency:      req.Currency,
		ExpectedDays:  req.ExpectedDays,
		Discount:      req.Discount.String(),
		NetPayout:     req.NetPayout.String(),
		Status:        string(req.Status),
		CreatedAt:     req.CreatedAt.Format(time.RFC3339),
	}
	if req.OrderID != nil {
		resp.OrderID = *req.OrderID
	}
	return resp
}

func notificationResponseFrom(n notification.Notification) notificationResponse {
	resp := notificationResponse{
		ID:        n.ID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		IsRead:    n.IsRead,
		Metadata:  n.Metadata,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
	if n.EntityID != nil {
		resp.EntityID = *n.EntityID
	}
	if n.EntityType != nil {
		resp.EntityType = *n.EntityType
	}
	return resp
}
