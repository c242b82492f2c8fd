package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/shop-backend/pkg/scheduler"
)

// setupSyncRouter создаёт router с реальным планировщиком и одной задачей.
func setupSyncRouter(t *testing.T, run func(ctx context.Context) error) (*gin.Engine, *scheduler.Scheduler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sched := scheduler.New()
	if run == nil {
		run = func(ctx context.Context) error { return nil }
	}
	require.NoError(t, sched.Register(scheduler.Job{
		Name:     "pending_sync",
		Interval: time.Minute,
		Run:      run,
	}))

	h := NewSyncHandler(nil, sched)
	r := gin.New()
	r.POST("/api/v1/admin/reconcile/trigger/:job", h.TriggerJob)
	r.POST("/api/v1/admin/reconcile/start", h.StartJobs)
	r.POST("/api/v1/admin/reconcile/stop", h.StopJobs)
	r.GET("/api/v1/admin/reconcile/status", h.Status)
	r.POST("/api/v1/admin/reconcile/range", h.ReconcileRange)

	return r, sched
}

func TestSyncHandler_TriggerJob_Success(t *testing.T) {
	ran := false
	r, _ := setupSyncRouter(t, func(ctx context.Context) error {
		ran = true
		return nil
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconcile/trigger/pending_sync", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, ran)
}

func TestSyncHandler_TriggerJob_NotFound(t *testing.T) {
	r, _ := setupSyncRouter(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconcile/trigger/unknown_job", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSyncHandler_StartStop(t *testing.T) {
	r, sched := setupSyncRouter(t, nil)
	defer sched.Shutdown()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconcile/start?job=pending_sync", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, sched.Status()[0].Scheduled)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconcile/stop", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, sched.Status()[0].Scheduled)
}

func TestSyncHandler_Status(t *testing.T) {
	r, _ := setupSyncRouter(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/reconcile/status", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Jobs []scheduler.JobStatus `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Jobs, 1)
	assert.Equal(t, "pending_sync", resp.Jobs[0].Name)
	assert.False(t, resp.Jobs[0].Scheduled)
}

func TestSyncHandler_ReconcileRange_BadRequest(t *testing.T) {
	r, _ := setupSyncRouter(t, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconcile/range", bytes.NewReader([]byte(`{"from":"not-a-date"}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
