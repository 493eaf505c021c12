package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	paymentapp "github.com/payably/backend/internal/application/payment"
	"github.com/payably/backend/internal/domain/payment"
	"github.com/payably/backend/internal/domain/shared/valueobject"
	"github.com/payably/backend/internal/interfaces/http/dto"
)

// PaymentHandler handles payment settlement API endpoints
type PaymentHandler struct {
	BaseHandler
	paymentService *paymentapp.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(paymentService *paymentapp.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

// PayNowRequest represents a one-shot payment submission
// @Description Request body for submitting an interactive payment
type PayNowRequest struct {
	TransactionID     string   `json:"transaction_id" binding:"omitempty,max=100" example:"txn-a1b2c3"`
	ClientRef         string   `json:"client_ref" binding:"required,max=100" example:"CUST-001"`
	Method            string   `json:"method" binding:"required,oneof=card ach" example:"card"`
	MethodToken       string   `json:"method_token" binding:"required,max=100" example:"tok_visa"`
	AmountCents       int64    `json:"amount_cents" binding:"required,gt=0" example:"10000"`
	Currency          string   `json:"currency" binding:"omitempty,len=3" example:"USD"`
	AmountIncludesFee bool     `json:"amount_includes_fee" example:"false"`
	InvoiceKeys       []string `json:"invoice_keys" example:"INV-001,INV-002"`
	Unapplied         bool     `json:"unapplied" example:"false"`
}

// PayNowResponse wraps the settled record with the charge outcome
// @Description Settlement outcome; charged is false when the submission was a duplicate
type PayNowResponse struct {
	Payment PaymentResponse `json:"payment"`
	Charged bool            `json:"charged" example:"true"`
}

// SettlementEventRequest represents an external settlement notification
// @Description Terminal settlement update for an ACH payment in processing
type SettlementEventRequest struct {
	TransactionID string `json:"transaction_id" binding:"required,max=100" example:"txn-a1b2c3"`
	Confirmed     bool   `json:"confirmed" example:"true"`
	Reason        string `json:"reason" binding:"max=500" example:"R01 insufficient funds"`
}

// PayNow godoc
// @ID           payNow
// @Summary      Submit a one-shot payment
// @Description  Charges the payment method and mirrors the settled payment into the ledger. The transaction id (body or Idempotency-Key header) deduplicates repeat submissions.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key header string false "Client-generated transaction id"
// @Param        request body PayNowRequest true "Payment submission"
// @Success      200 {object} APIResponse[PayNowResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Router       /payments [post]
func (h *PaymentHandler) PayNow(c *gin.Context) {
	var req PayNowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	// The Idempotency-Key header wins over the body field so that clients
	// retrying at the HTTP layer reuse the same transaction id
	transactionID := c.GetHeader("Idempotency-Key")
	if transactionID == "" {
		transactionID = req.TransactionID
	}
	if transactionID == "" {
		h.BadRequest(c, "transaction_id (or Idempotency-Key header) is required")
		return
	}

	currency := valueobject.DefaultCurrency
	if req.Currency != "" {
		currency = valueobject.Currency(req.Currency)
	}

	result, err := h.paymentService.PayNow(c.Request.Context(), paymentapp.PayNowRequest{
		TransactionID:     transactionID,
		ClientRef:         req.ClientRef,
		Method:            payment.PaymentMethod(req.Method),
		MethodToken:       req.MethodToken,
		Amount:            valueobject.NewMoneyFromCents(req.AmountCents, currency),
		AmountIncludesFee: req.AmountIncludesFee,
		InvoiceKeys:       req.InvoiceKeys,
		Unapplied:         req.Unapplied,
	})
	if err != nil {
		h.handleSettlementError(c, err)
		return
	}

	h.Success(c, PayNowResponse{
		Payment: toPaymentResponse(result.Payment),
		Charged: result.Charged,
	})
}

// handleSettlementError maps gateway and domain failures to HTTP responses
func (h *PaymentHandler) handleSettlementError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, payment.ErrGatewayUnavailable), errors.Is(err, payment.ErrGatewayTimeout):
		h.BadGateway(c, "settlement gateway is unavailable, try again later")
	case errors.Is(err, payment.ErrDuplicateCharge):
		h.Error(c, 409, dto.ErrCodeDuplicateTransaction, "this charge was already submitted to the gateway")
	case errors.Is(err, payment.ErrReversalNotSupported):
		h.UnprocessableEntity(c, dto.ErrCodeInvalidState, err.Error())
	default:
		var settlementErr *payment.SettlementError
		if errors.As(err, &settlementErr) {
			h.UnprocessableEntity(c, dto.ErrCodePaymentDeclined, settlementErr.Message)
			return
		}
		h.HandleDomainError(c, err)
	}
}

// GetByID godoc
// @ID           getPaymentById
// @Summary      Get payment by ID
// @Description  Retrieve a payment record by its ID
// @Tags         payments
// @Produce      json
// @Param        id path string true "Payment ID" format(uuid)
// @Success      200 {object} APIResponse[PaymentResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /payments/{id} [get]
func (h *PaymentHandler) GetByID(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid payment ID format")
		return
	}

	record, err := h.paymentService.GetPayment(c.Request.Context(), paymentID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toPaymentResponse(record))
}

// GetByTransactionID godoc
// @ID           getPaymentByTransactionId
// @Summary      Get payment by transaction ID
// @Description  Retrieve a payment record by its client-generated transaction id
// @Tags         payments
// @Produce      json
// @Param        transaction_id path string true "Transaction ID"
// @Success      200 {object} APIResponse[PaymentResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /payments/transaction/{transaction_id} [get]
func (h *PaymentHandler) GetByTransactionID(c *gin.Context) {
	record, err := h.paymentService.GetPaymentByTransactionID(c.Request.Context(), c.Param("transaction_id"))
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toPaymentResponse(record))
}

// List godoc
// @ID           listPayments
// @Summary      List payments
// @Description  List payment records with pagination and optional filters
// @Tags         payments
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Param        status query string false "Filter by status"
// @Param        method query string false "Filter by method"
// @Param        client_ref query string false "Filter by client reference"
// @Success      200 {object} APIResponse[[]PaymentResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	filter, err := bindListFilter(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	for _, key := range []string{"status", "method", "client_ref", "ledger_status"} {
		if v := c.Query(key); v != "" {
			filter.Filters[key] = v
		}
	}

	records, total, err := h.paymentService.ListPayments(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, toPaymentResponses(records), total, filter.Page, filter.PageSize)
}

// ApplySettlementEvent godoc
// @ID           applySettlementEvent
// @Summary      Apply an external settlement event
// @Description  Accepts the external collaborator's terminal update for an ACH payment in processing: confirmation or return
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        request body SettlementEventRequest true "Settlement event"
// @Success      200 {object} APIResponse[PaymentResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /payments/settlement-events [post]
func (h *PaymentHandler) ApplySettlementEvent(c *gin.Context) {
	var req SettlementEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	record, err := h.paymentService.ApplySettlementEvent(c.Request.Context(), req.TransactionID, req.Confirmed, req.Reason)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toPaymentResponse(record))
}

// Void godoc
// @ID           voidPayment
// @Summary      Void an accepted ACH payment
// @Description  Cancels an accepted ACH payment before it settles
// @Tags         payments
// @Produce      json
// @Param        id path string true "Payment ID" format(uuid)
// @Success      200 {object} APIResponse[PaymentResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /payments/{id}/void [post]
func (h *PaymentHandler) Void(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid payment ID format")
		return
	}

	record, err := h.paymentService.VoidPayment(c.Request.Context(), paymentID)
	if err != nil {
		h.handleSettlementError(c, err)
		return
	}

	h.Success(c, toPaymentResponse(record))
}

// Refund godoc
// @ID           refundPayment
// @Summary      Refund a settled card payment
// @Description  Reverses a settled card payment in full
// @Tags         payments
// @Produce      json
// @Param        id path string true "Payment ID" format(uuid)
// @Success      200 {object} APIResponse[PaymentResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /payments/{id}/refund [post]
func (h *PaymentHandler) Refund(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid payment ID format")
		return
	}

	record, err := h.paymentService.RefundPayment(c.Request.Context(), paymentID)
	if err != nil {
		h.handleSettlementError(c, err)
		return
	}

	h.Success(c, toPaymentResponse(record))
}
