package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// runningTasksHandler handles GET /api/running-tasks. The snapshot covers
// this process only; the running registry is never persisted.
func (s *Server) runningTasksHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, RunningTasksResponse{Running: s.sched.RunningSnapshot()})
}
