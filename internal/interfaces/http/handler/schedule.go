package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	paymentapp "github.com/payably/backend/internal/application/payment"
	"github.com/payably/backend/internal/domain/payment"
	"github.com/payably/backend/internal/domain/shared/valueobject"
)

// ScheduleHandler handles recurring schedule API endpoints
type ScheduleHandler struct {
	BaseHandler
	scheduleService *paymentapp.ScheduleService
}

// NewScheduleHandler creates a new ScheduleHandler
func NewScheduleHandler(scheduleService *paymentapp.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{
		scheduleService: scheduleService,
	}
}

// CreateScheduleRequest represents a request to create a recurring schedule
// @Description Request body for creating a recurring payment schedule
type CreateScheduleRequest struct {
	ClientRef       string     `json:"client_ref" binding:"required,max=100" example:"CUST-001"`
	Method          string     `json:"method" binding:"omitempty,oneof=card ach" example:"card"`
	MethodToken     string     `json:"method_token" binding:"max=100" example:"tok_visa"`
	BaseAmountCents int64      `json:"base_amount_cents" binding:"required,gt=0" example:"5000"`
	Currency        string     `json:"currency" binding:"omitempty,len=3" example:"USD"`
	Frequency       string     `json:"frequency" binding:"required,oneof=weekly biweekly monthly quarterly yearly" example:"monthly"`
	FirstDueDate    time.Time  `json:"first_due_date" binding:"required" example:"2026-09-01T00:00:00Z"`
	MaxOccurrences  int        `json:"max_occurrences" binding:"min=0" example:"12"`
	EndDate         *time.Time `json:"end_date,omitempty"`
}

// AdjustNextDateRequest represents a request to move the next due date
// @Description Request body for adjusting a schedule's next due date
type AdjustNextDateRequest struct {
	NextDueDate time.Time `json:"next_due_date" binding:"required" example:"2026-10-15T00:00:00Z"`
}

// SetPaymentMethodRequest represents a request to attach a payment method
// @Description Request body for attaching a vaulted payment method to a schedule
type SetPaymentMethodRequest struct {
	Method      string `json:"method" binding:"required,oneof=card ach" example:"card"`
	MethodToken string `json:"method_token" binding:"required,max=100" example:"tok_visa"`
}

// Create godoc
// @ID           createSchedule
// @Summary      Create a recurring schedule
// @Description  Create a recurring payment schedule. Without a payment method the schedule starts in pending_method and is skipped by the due-date processor.
// @Tags         schedules
// @Accept       json
// @Produce      json
// @Param        request body CreateScheduleRequest true "Schedule creation request"
// @Success      201 {object} APIResponse[ScheduleResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	currency := valueobject.DefaultCurrency
	if req.Currency != "" {
		currency = valueobject.Currency(req.Currency)
	}

	schedule, err := h.scheduleService.CreateSchedule(c.Request.Context(), paymentapp.CreateScheduleRequest{
		ClientRef:      req.ClientRef,
		Method:         payment.PaymentMethod(req.Method),
		MethodToken:    req.MethodToken,
		BaseAmount:     valueobject.NewMoneyFromCents(req.BaseAmountCents, currency),
		Frequency:      payment.Frequency(req.Frequency),
		FirstDueDate:   req.FirstDueDate,
		MaxOccurrences: req.MaxOccurrences,
		EndDate:        req.EndDate,
	})
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, toScheduleResponse(schedule))
}

// GetByID godoc
// @ID           getScheduleById
// @Summary      Get schedule by ID
// @Description  Retrieve a recurring schedule by its ID
// @Tags         schedules
// @Produce      json
// @Param        id path string true "Schedule ID" format(uuid)
// @Success      200 {object} APIResponse[ScheduleResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /schedules/{id} [get]
func (h *ScheduleHandler) GetByID(c *gin.Context) {
	scheduleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid schedule ID format")
		return
	}

	schedule, err := h.scheduleService.GetSchedule(c.Request.Context(), scheduleID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toScheduleResponse(schedule))
}

// List godoc
// @ID           listSchedules
// @Summary      List schedules
// @Description  List recurring schedules with pagination and optional filters
// @Tags         schedules
// @Produce      json
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Param        status query string false "Filter by status"
// @Param        client_ref query string false "Filter by client reference"
// @Success      200 {object} APIResponse[[]ScheduleResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	filter, err := bindListFilter(c)
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	for _, key := range []string{"status", "client_ref", "method"} {
		if v := c.Query(key); v != "" {
			filter.Filters[key] = v
		}
	}

	schedules, total, err := h.scheduleService.ListSchedules(c.Request.Context(), filter)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, toScheduleResponses(schedules), total, filter.Page, filter.PageSize)
}

// mutate runs one schedule state transition and renders the result
func (h *ScheduleHandler) mutate(c *gin.Context, fn func(ctx *gin.Context, id uuid.UUID) (*payment.RecurringSchedule, error)) {
	scheduleID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid schedule ID format")
		return
	}

	schedule, err := fn(c, scheduleID)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, toScheduleResponse(schedule))
}

// Pause godoc
// @ID           pauseSchedule
// @Summary      Pause a schedule
// @Description  Suspends charging without losing the schedule position
// @Tags         schedules
// @Produce      json
// @Param        id path string true "Schedule ID" format(uuid)
// @Success      200 {object} APIResponse[ScheduleResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /schedules/{id}/pause [post]
func (h *ScheduleHandler) Pause(c *gin.Context) {
	h.mutate(c, func(ctx *gin.Context, id uuid.UUID) (*payment.RecurringSchedule, error) {
		return h.scheduleService.PauseSchedule(ctx.Request.Context(), id)
	})
}

// Resume godoc
// @ID           resumeSchedule
// @Summary      Resume a paused schedule
// @Description  Reactivates a paused schedule
// @Tags         schedules
// @Produce      json
// @Param        id path string true "Schedule ID" format(uuid)
// @Success      200 {object} APIResponse[ScheduleResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /schedules/{id}/resume [post]
func (h *ScheduleHandler) Resume(c *gin.Context) {
	h.mutate(c, func(ctx *gin.Context, id uuid.UUID) (*payment.RecurringSchedule, error) {
		return h.scheduleService.ResumeSchedule(ctx.Request.Context(), id)
	})
}

// Cancel godoc
// @ID           cancelSchedule
// @Summary      Cancel a schedule
// @Description  Terminates a schedule permanently
// @Tags         schedules
// @Produce      json
// @Param        id path string true "Schedule ID" format(uuid)
// @Success      200 {object} APIResponse[ScheduleResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /schedules/{id}/cancel [post]
func (h *ScheduleHandler) Cancel(c *gin.Context) {
	h.mutate(c, func(ctx *gin.Context, id uuid.UUID) (*payment.RecurringSchedule, error) {
		return h.scheduleService.CancelSchedule(ctx.Request.Context(), id)
	})
}

// Skip godoc
// @ID           skipScheduleOccurrence
// @Summary      Skip the next occurrence
// @Description  Advances the schedule past its current due date without charging. The skipped occurrence counts toward max_occurrences.
// @Tags         schedules
// @Produce      json
// @Param        id path string true "Schedule ID" format(uuid)
// @Success      200 {object} APIResponse[ScheduleResponse]
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /schedules/{id}/skip [post]
func (h *ScheduleHandler) Skip(c *gin.Context) {
	h.mutate(c, func(ctx *gin.Context, id uuid.UUID) (*payment.RecurringSchedule, error) {
		return h.scheduleService.SkipOccurrence(ctx.Request.Context(), id)
	})
}

// AdjustNextDate godoc
// @ID           adjustScheduleNextDate
// @Summary      Adjust the next due date
// @Description  Moves the next due date to a future date
// @Tags         schedules
// @Accept       json
// @Produce      json
// @Param        id path string true "Schedule ID" format(uuid)
// @Param        request body AdjustNextDateRequest true "New due date"
// @Success      200 {object} APIResponse[ScheduleResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /schedules/{id}/next-date [put]
func (h *ScheduleHandler) AdjustNextDate(c *gin.Context) {
	var req AdjustNextDateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	h.mutate(c, func(ctx *gin.Context, id uuid.UUID) (*payment.RecurringSchedule, error) {
		return h.scheduleService.AdjustNextDate(ctx.Request.Context(), id, req.NextDueDate)
	})
}

// SetPaymentMethod godoc
// @ID           setSchedulePaymentMethod
// @Summary      Attach a payment method
// @Description  Attaches a vaulted payment method to the schedule; a pending_method schedule becomes active
// @Tags         schedules
// @Accept       json
// @Produce      json
// @Param        id path string true "Schedule ID" format(uuid)
// @Param        request body SetPaymentMethodRequest true "Payment method"
// @Success      200 {object} APIResponse[ScheduleResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /schedules/{id}/payment-method [put]
func (h *ScheduleHandler) SetPaymentMethod(c *gin.Context) {
	var req SetPaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	h.mutate(c, func(ctx *gin.Context, id uuid.UUID) (*payment.RecurringSchedule, error) {
		return h.scheduleService.SetPaymentMethod(ctx.Request.Context(), id, payment.PaymentMethod(req.Method), req.MethodToken)
	})
}
