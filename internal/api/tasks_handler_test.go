package api

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

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/logger"
	"github.com/jonesrussell/goharvest/internal/pool"
	"github.com/jonesrussell/goharvest/internal/scheduler"
	"github.com/jonesrussell/goharvest/internal/session"
	"github.com/jonesrussell/goharvest/internal/store"
)

func newTestRouter(t *testing.T) (*gin.Engine, *scheduler.Scheduler, *store.MemoryStore) {
	t.Helper()
	log := logger.NewNoOp()

	sched, err := scheduler.New(scheduler.DefaultConfig(), log)
	require.NoError(t, err)

	p, err := pool.New([]string{"10.0.0.1:8080"}, pool.DefaultConfig(), log)
	require.NoError(t, err)

	sessions, err := session.NewManager(session.DefaultConfig(), nil, log)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	router := SetupRouter(log,
		NewTasksHandler(sched, st),
		NewStatusHandler(p, sessions, sched),
	)
	return router, sched, st
}

func postTask(t *testing.T, router *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateTaskAccepted(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := postTask(t, router, `{"entity_type":"company","entity_id":"42","url":"https://example.com/company/42"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp scheduler.Accepted
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "company:42", resp.TaskID)
	assert.Equal(t, 3, resp.Priority)
}

func TestCreateTaskDuplicateConflict(t *testing.T) {
	router, _, _ := newTestRouter(t)

	body := `{"entity_type":"profile","entity_id":"p1","url":"https://example.com/p1"}`
	require.Equal(t, http.StatusAccepted, postTask(t, router, body).Code)

	w := postTask(t, router, body)
	require.Equal(t, http.StatusConflict, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "profile:p1", resp["task_id"])
	assert.Equal(t, "duplicate-in-flight", resp["reason"])
}

func TestCreateTaskBadRequest(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := postTask(t, router, `{"entity_type":"company"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postTask(t, router, `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTask(t *testing.T) {
	router, _, st := newTestRouter(t)

	rec := store.Record{
		TaskID:    "company:42",
		Status:    domain.StatusCompleted,
		Attempt:   1,
		UpdatedAt: time.Now(),
		ResultRef: "goharvest_company/doc-1",
	}
	require.NoError(t, st.Upsert(context.Background(), rec))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/company:42", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got store.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, "goharvest_company/doc-1", got.ResultRef)
}

func TestGetTaskNotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/missing:1", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTasks(t *testing.T) {
	router, _, st := newTestRouter(t)
	base := time.Now()

	for i, rec := range []store.Record{
		{TaskID: "job:1", Status: domain.StatusCompleted},
		{TaskID: "job:2", Status: domain.StatusFailed},
		{TaskID: "job:3", Status: domain.StatusCompleted},
	} {
		rec.UpdatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, st.Upsert(context.Background(), rec))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks?status=completed", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Tasks []store.Record `json:"tasks"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)

	// Unknown status values are rejected rather than silently empty.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/tasks?status=bogus", http.NoBody)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	router, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
