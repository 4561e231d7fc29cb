package api

import (
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"
)

// chatHistoryHandler handles GET /api/chat-history/:agent. limit bounds the
// reply to the most recent entries; unset returns the whole retained log.
func (s *Server) chatHistoryHandler(c *echo.Context) error {
	agent := c.Param("agent")
	if agent == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent name is required")
	}

	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit: must be a non-negative integer")
		}
		limit = n
	}

	entries, err := s.history.List(agent, limit)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, entries)
}
