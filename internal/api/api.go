// Package api implements the HTTP API for the orchestrator: task
// submission and polling, plus pool, session, and scheduler status
// surfaces.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/goharvest/internal/logger"
)

// readHeaderTimeout bounds header reads on incoming connections.
const readHeaderTimeout = 10 * time.Second

// SetupRouter creates and configures the Gin router with all routes.
func SetupRouter(log logger.Interface, tasks *TasksHandler, status *StatusHandler) *gin.Engine {
	// Disable Gin's default logging.
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	v1.POST("/tasks", tasks.Create)
	v1.GET("/tasks", tasks.List)
	v1.GET("/tasks/:id", tasks.Get)
	v1.GET("/pool", status.Pool)
	v1.GET("/sessions", status.Sessions)
	v1.GET("/scheduler", status.Scheduler)

	return router
}

// loggingMiddleware creates a middleware that logs HTTP requests.
func loggingMiddleware(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		log.Info("HTTP Request",
			"method", c.Request.Method,
			"path", path,
			"query", query,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
		)
	}
}
