package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	syncengine "example.com/shop-backend/internal/payment/sync"
	"example.com/shop-backend/pkg/scheduler"
)

// SyncHandler — административный API движка сверки платежей.
type SyncHandler struct {
	engine *syncengine.Engine
	sched  *scheduler.Scheduler
}

// NewSyncHandler создаёт обработчик управления сверкой.
func NewSyncHandler(engine *syncengine.Engine, sched *scheduler.Scheduler) *SyncHandler {
	return &SyncHandler{engine: engine, sched: sched}
}

// ReconcileRangeRequest — запрос сверки за произвольный период.
type ReconcileRangeRequest struct {
	From time.Time `json:"from" binding:"required"`
	To   time.Time `json:"to" binding:"required"`
}

// TriggerJob немедленно запускает одну итерацию задачи.
// POST /api/v1/admin/reconcile/trigger/:job
func (h *SyncHandler) TriggerJob(c *gin.Context) {
	job := c.Param("job")

	if err := h.sched.TriggerNow(c.Request.Context(), job); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrJobNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "job_not_found",
				Message: "Задача не зарегистрирована",
			})
		case errors.Is(err, scheduler.ErrJobRunning):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error:   "job_running",
				Message: "Задача уже выполняется",
			})
		default:
			HandleError(c, err, "TriggerJob")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "job": job})
}

// StartJobs запускает периодические циклы: одной задачи (?job=) или всех.
// POST /api/v1/admin/reconcile/start
func (h *SyncHandler) StartJobs(c *gin.Context) {
	ctx := c.Request.Context()

	if job := c.Query("job"); job != "" {
		if err := h.sched.Start(ctx, job); err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "job_not_found",
				Message: "Задача не зарегистрирована",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "job": job})
		return
	}

	h.sched.StartAll(ctx)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// StopJobs останавливает периодические циклы: одной задачи (?job=) или всех.
// POST /api/v1/admin/reconcile/stop
func (h *SyncHandler) StopJobs(c *gin.Context) {
	if job := c.Query("job"); job != "" {
		if err := h.sched.Stop(job); err != nil {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "job_not_found",
				Message: "Задача не зарегистрирована",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "job": job})
		return
	}

	for _, st := range h.sched.Status() {
		_ = h.sched.Stop(st.Name)
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Status возвращает состояние всех зарегистрированных задач.
// GET /api/v1/admin/reconcile/status
func (h *SyncHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.sched.Status()})
}

// Health возвращает отчёт о здоровье конвейера платежей.
// GET /api/v1/admin/reconcile/health
func (h *SyncHandler) Health(c *gin.Context) {
	report, err := h.engine.HealthCheck(c.Request.Context())
	if err != nil {
		HandleError(c, err, "ReconcileHealth")
		return
	}

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Statistics возвращает распределение платежей по статусам за период.
// GET /api/v1/admin/reconcile/stats?since=2026-08-01T00:00:00Z
func (h *SyncHandler) Statistics(c *gin.Context) {
	since := time.Now().Add(-24 * time.Hour)
	if sinceStr := c.Query("since"); sinceStr != "" {
		parsed, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: "Параметр since должен быть в формате RFC3339",
			})
			return
		}
		since = parsed
	}

	stats, err := h.engine.Statistics(c.Request.Context(), since)
	if err != nil {
		HandleError(c, err, "ReconcileStatistics")
		return
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "stats": stats})
}

// ReconcileRange запускает сверку за произвольный период.
// POST /api/v1/admin/reconcile/range
func (h *SyncHandler) ReconcileRange(c *gin.Context) {
	var req ReconcileRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Поля from и to обязательны и должны быть в формате RFC3339",
		})
		return
	}

	report, err := h.engine.ReconcileRange(c.Request.Context(), req.From, req.To)
	if err != nil {
		if errors.Is(err, syncengine.ErrInvalidPeriod) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: "Начало периода должно быть раньше конца",
			})
			return
		}
		HandleError(c, err, "ReconcileRange")
		return
	}
	c.JSON(http.StatusOK, report)
}
