package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	paymentapp "github.com/payably/backend/internal/application/payment"
	"github.com/payably/backend/internal/domain/payment"
)

// ReconciliationHandler handles the ledger reconciliation backlog endpoints.
// These are operator-facing: the backlog lists settled payments whose ledger
// mirror failed, and retry re-drives the write by hand.
type ReconciliationHandler struct {
	BaseHandler
	reconciliationService *paymentapp.ReconciliationService
}

// NewReconciliationHandler creates a new ReconciliationHandler
func NewReconciliationHandler(reconciliationService *paymentapp.ReconciliationService) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciliationService: reconciliationService,
	}
}

// Backlog godoc
// @ID           listReconciliationBacklog
// @Summary      List the reconciliation backlog
// @Description  Lists settled payments still waiting for their external ledger mirror, oldest first
// @Tags         reconciliation
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} APIResponse[[]PaymentResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /reconciliation/backlog [get]
func (h *ReconciliationHandler) Backlog(c *gin.Context) {
	filter, err := bindListFilter(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	page, err := h.reconciliationService.Backlog(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, toPaymentResponses(page.Items), page.Total, page.Page, page.PageSize)
}

// Retry godoc
// @ID           retryLedgerWrite
// @Summary      Retry a failed ledger write
// @Description  Re-attempts the external ledger mirror for one backlog record. The charge itself is never re-run.
// @Tags         reconciliation
// @Produce      json
// @Param        id path string true "Payment ID" format(uuid)
// @Success      200 {object} APIResponse[PaymentResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Router       /reconciliation/{id}/retry [post]
func (h *ReconciliationHandler) Retry(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid payment ID format")
		return
	}

	record, err := h.reconciliationService.RetryLedgerWrite(c.Request.Context(), paymentID)
	if err != nil {
		if errors.Is(err, payment.ErrLedgerUnavailable) || errors.Is(err, payment.ErrLedgerWriteFailed) {
			h.BadGateway(c, "ledger write failed, the payment remains in the backlog")
			return
		}
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toPaymentResponse(record))
}
