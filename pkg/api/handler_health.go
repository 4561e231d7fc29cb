package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/tayfa-dev/tayfa/pkg/version"
)

// healthHandler handles GET /api/health. The reply is minimal and safe for
// unauthenticated access: no agent names, no task content.
func (s *Server) healthHandler(c *echo.Context) error {
	running := 0
	if s.sched != nil {
		running = len(s.sched.RunningSnapshot())
	}
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version.Full(),
		Project: s.cfg.Project.Root,
		Running: running,
	})
}

// metricsHandler handles GET /metrics in prometheus text format.
func (s *Server) metricsHandler(c *echo.Context) error {
	s.metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}
