package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	paymentapp "github.com/payably/backend/internal/application/payment"
	"github.com/payably/backend/internal/domain/payment"
	"github.com/payably/backend/internal/domain/shared"
	"github.com/payably/backend/internal/interfaces/http/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newScheduleTestRouter(t *testing.T) (*gin.Engine, *MockScheduleRepository) {
	t.Helper()

	repo := new(MockScheduleRepository)
	svc := paymentapp.NewScheduleService(repo, zap.NewNop())
	h := NewScheduleHandler(svc)

	router := gin.New()
	router.POST("/schedules", h.Create)
	router.GET("/schedules", h.List)
	router.GET("/schedules/:id", h.GetByID)
	router.POST("/schedules/:id/pause", h.Pause)
	router.POST("/schedules/:id/resume", h.Resume)
	router.POST("/schedules/:id/cancel", h.Cancel)
	router.POST("/schedules/:id/skip", h.Skip)
	router.PUT("/schedules/:id/next-date", h.AdjustNextDate)
	router.PUT("/schedules/:id/payment-method", h.SetPaymentMethod)
	return router, repo
}

func postPutJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("PUT", path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func newActiveSchedule(t *testing.T) *payment.RecurringSchedule {
	t.Helper()
	schedule, err := payment.NewRecurringSchedule(
		"CUST-1", payment.MethodCard, "tok_visa", usdCents(5000),
		payment.FrequencyMonthly, time.Now().AddDate(0, 0, 7), 12, nil,
	)
	require.NoError(t, err)
	return schedule
}

func TestScheduleHandlerCreate(t *testing.T) {
	t.Run("creates an active schedule", func(t *testing.T) {
		router, repo := newScheduleTestRouter(t)

		repo.On("Save", mock.Anything, mock.Anything).Return(nil)

		w := postJSON(t, router, "/schedules", gin.H{
			"client_ref":        "CUST-1",
			"method":            "card",
			"method_token":      "tok_visa",
			"base_amount_cents": 5000,
			"frequency":         "monthly",
			"first_due_date":    time.Now().AddDate(0, 0, 7).Format(time.RFC3339),
			"max_occurrences":   12,
		}, nil)

		assert.Equal(t, http.StatusCreated, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)

		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "active", data["status"])
		assert.Equal(t, "monthly", data["frequency"])
		assert.Equal(t, float64(5000), data["base_amount_cents"])
	})

	t.Run("starts in pending_method without a payment method", func(t *testing.T) {
		router, repo := newScheduleTestRouter(t)

		repo.On("Save", mock.Anything, mock.Anything).Return(nil)

		w := postJSON(t, router, "/schedules", gin.H{
			"client_ref":        "CUST-2",
			"base_amount_cents": 5000,
			"frequency":         "weekly",
			"first_due_date":    time.Now().AddDate(0, 0, 7).Format(time.RFC3339),
		}, nil)

		assert.Equal(t, http.StatusCreated, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "pending_method", data["status"])
	})

	t.Run("rejects an unknown frequency", func(t *testing.T) {
		router, repo := newScheduleTestRouter(t)

		w := postJSON(t, router, "/schedules", gin.H{
			"client_ref":        "CUST-1",
			"base_amount_cents": 5000,
			"frequency":         "fortnightly",
			"first_due_date":    time.Now().AddDate(0, 0, 7).Format(time.RFC3339),
		}, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestScheduleHandlerGetByID(t *testing.T) {
	t.Run("returns the schedule", func(t *testing.T) {
		router, repo := newScheduleTestRouter(t)

		schedule := newActiveSchedule(t)
		repo.On("FindByID", mock.Anything, schedule.ID).Return(schedule, nil)

		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/schedules/"+schedule.ID.String(), nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "CUST-1", data["client_ref"])
	})

	t.Run("returns 404 for an unknown schedule", func(t *testing.T) {
		router, repo := newScheduleTestRouter(t)

		repo.On("FindByID", mock.Anything, mock.Anything).Return(nil, shared.ErrNotFound)

		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/schedules/b2c3d4e5-f607-4819-a2b3-c4d5e6f70819", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestScheduleHandlerList(t *testing.T) {
	router, repo := newScheduleTestRouter(t)

	schedule := newActiveSchedule(t)
	repo.On("FindAll", mock.Anything, mock.MatchedBy(func(f shared.Filter) bool {
		return f.Filters["status"] == "active"
	})).Return([]payment.RecurringSchedule{*schedule}, nil)
	repo.On("Count", mock.Anything, mock.Anything).Return(int64(1), nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/schedules?status=active", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(1), resp.Meta.Total)
}

func TestScheduleHandlerLifecycle(t *testing.T) {
	t.Run("pause suspends an active schedule", func(t *testing.T) {
		router, repo := newScheduleTestRouter(t)

		schedule := newActiveSchedule(t)
		repo.On("FindByID", mock.Anything, schedule.ID).Return(schedule, nil)
		repo.On("SaveWithLock", mock.Anything, schedule).Return(nil)

		w := postJSON(t, router, "/schedules/"+schedule.ID.String()+"/pause", nil, nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "paused", data["status"])
	})

	t.Run("resume reactivates a paused schedule", func(t *testing.T) {
		router, repo := newScheduleTestRouter(t)

		schedule := newActiveSchedule(t)
		require.NoError(t, schedule.Pause())
		repo.On("FindByID", mock.Anything, schedule.ID).Return(schedule, nil)
		repo.On("SaveWithLock", mock.Anything, schedule).Return(nil)

		w := postJSON(t, router, "/schedules/"+schedule.ID.String()+"/resume", nil, nil)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "active", data["status"])
	})

	t.Run("cancel is rejected for a cancelled schedule", func(t *testing.T) {
		router, repo := newScheduleTestRouter(t)

		schedule := newActiveSchedule(t)
		require.NoError(t, schedule.Cancel())
		repo.On("FindByID", mock.Anything, schedule.ID).Return(schedule, nil)

		w := postJSON(t, router, "/schedules/"+schedule.ID.String()+"/cancel", nil, nil)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		repo.AssertNotCalled(t, "SaveWithLock", mock.Anything, mock.Anything)
	})

	t.Run("skip advances the due date and counts the occurrence", func(t *testing.T) {
		router, repo := newScheduleTestRouter(t)

		schedule := newActiveSchedule(t)
		before := *schedule.NextDueDate
		repo.On("FindByID", mock.Anything, schedule.ID).Return(schedule, nil)
		repo.On("SaveWithLock", mock.Anything, schedule).Return(nil)

		w := postJSON(t, router, "/schedules/"+schedule.ID.String()+"/skip", nil, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, schedule.OccurrencesCompleted)
		assert.True(t, schedule.NextDueDate.After(before))
	})

	t.Run("rejects a malformed schedule id", func(t *testing.T) {
		router, _ := newScheduleTestRouter(t)

		w := postJSON(t, router, "/schedules/nope/pause", nil, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestScheduleHandlerAdjustNextDate(t *testing.T) {
	router, repo := newScheduleTestRouter(t)

	schedule := newActiveSchedule(t)
	newDate := time.Now().AddDate(0, 1, 0)
	repo.On("FindByID", mock.Anything, schedule.ID).Return(schedule, nil)
	repo.On("SaveWithLock", mock.Anything, schedule).Return(nil)

	w := postPutJSON(t, router, "/schedules/"+schedule.ID.String()+"/next-date", gin.H{
		"next_due_date": newDate.Format(time.RFC3339),
	})

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, schedule.NextDueDate)
	assert.WithinDuration(t, newDate, *schedule.NextDueDate, time.Second)
}

func TestScheduleHandlerSetPaymentMethod(t *testing.T) {
	router, repo := newScheduleTestRouter(t)

	schedule, err := payment.NewRecurringSchedule(
		"CUST-3", "", "", usdCents(5000),
		payment.FrequencyMonthly, time.Now().AddDate(0, 0, 7), 0, nil,
	)
	require.NoError(t, err)
	require.Equal(t, payment.SchedulePendingMethod, schedule.Status)

	repo.On("FindByID", mock.Anything, schedule.ID).Return(schedule, nil)
	repo.On("SaveWithLock", mock.Anything, schedule).Return(nil)

	w := postPutJSON(t, router, "/schedules/"+schedule.ID.String()+"/payment-method", gin.H{
		"method":       "ach",
		"method_token": "bank_1",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "active", data["status"])
	assert.Equal(t, "ach", data["method"])
}
