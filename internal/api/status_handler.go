package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/goharvest/internal/pool"
	"github.com/jonesrussell/goharvest/internal/scheduler"
	"github.com/jonesrussell/goharvest/internal/session"
)

// StatusHandler exposes point-in-time snapshots of the orchestrator state.
type StatusHandler struct {
	pool      *pool.Pool
	sessions  *session.Manager
	scheduler *scheduler.Scheduler
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(p *pool.Pool, sessions *session.Manager, sched *scheduler.Scheduler) *StatusHandler {
	return &StatusHandler{
		pool:      p,
		sessions:  sessions,
		scheduler: sched,
	}
}

// Pool handles GET /api/v1/pool.
func (h *StatusHandler) Pool(c *gin.Context) {
	c.JSON(http.StatusOK, h.pool.Status())
}

// Sessions handles GET /api/v1/sessions.
func (h *StatusHandler) Sessions(c *gin.Context) {
	accounts := h.sessions.Status()
	c.JSON(http.StatusOK, gin.H{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// Scheduler handles GET /api/v1/scheduler.
func (h *StatusHandler) Scheduler(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Status())
}
