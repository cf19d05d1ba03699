package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/scheduler"
	"github.com/jonesrussell/goharvest/internal/store"
)

const (
	defaultLimit  = 50
	defaultOffset = 0
)

// CreateTaskRequest is the body for POST /api/v1/tasks.
type CreateTaskRequest struct {
	Type       string `json:"type"`
	EntityType string `json:"entity_type" binding:"required"`
	EntityID   string `json:"entity_id"   binding:"required"`
	URL        string `json:"url"         binding:"required"`
}

// TasksHandler handles task submission and polling.
type TasksHandler struct {
	scheduler *scheduler.Scheduler
	store     store.TaskStore
}

// NewTasksHandler creates a new tasks handler.
func NewTasksHandler(sched *scheduler.Scheduler, st store.TaskStore) *TasksHandler {
	return &TasksHandler{
		scheduler: sched,
		store:     st,
	}
}

// Create handles POST /api/v1/tasks.
func (h *TasksHandler) Create(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	if req.Type == "" {
		req.Type = "extract"
	}

	accepted, err := h.scheduler.Schedule(req.Type, req.EntityType, req.EntityID, req.URL)
	if err != nil {
		if conflict, ok := domain.AsConflict(err); ok {
			c.JSON(http.StatusConflict, gin.H{
				"error":   conflict.Error(),
				"task_id": conflict.TaskID,
				"reason":  string(conflict.Reason),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to schedule task",
		})
		return
	}

	c.JSON(http.StatusAccepted, accepted)
}

// Get handles GET /api/v1/tasks/:id.
func (h *TasksHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if id == "" || id == "undefined" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid task ID",
		})
		return
	}

	rec, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Task not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve task",
		})
		return
	}

	c.JSON(http.StatusOK, rec)
}

// List handles GET /api/v1/tasks.
func (h *TasksHandler) List(c *gin.Context) {
	status := c.Query("status")
	limitStr := c.DefaultQuery("limit", strconv.Itoa(defaultLimit))
	offsetStr := c.DefaultQuery("offset", strconv.Itoa(defaultOffset))

	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}

	offset, err := strconv.Atoi(offsetStr)
	if err != nil || offset < 0 {
		offset = defaultOffset
	}

	if status != "" && !domain.Status(status).IsValid() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown status: " + status,
		})
		return
	}

	records, err := h.store.List(c.Request.Context(), domain.Status(status), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve tasks",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": records,
		"count": len(records),
	})
}
