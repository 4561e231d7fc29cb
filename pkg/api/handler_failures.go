package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
)

// listFailuresHandler handles GET /api/agent-failures.
func (s *Server) listFailuresHandler(c *echo.Context) error {
	var resolved *bool
	if v := c.QueryParam("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid resolved: must be true or false")
		}
		resolved = &b
	}

	failures, err := s.failures.List(resolved)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, FailuresResponse{Failures: failures})
}

// resolveFailureHandler handles DELETE /api/agent-failures/:id. Failures
// are never removed from the log, only marked resolved.
func (s *Server) resolveFailureHandler(c *echo.Context) error {
	failureID := c.Param("id")
	if failureID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "failure id is required")
	}

	if err := s.failures.Resolve(failureID); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}
