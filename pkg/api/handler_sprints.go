package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/tayfa-dev/tayfa/pkg/models"
)

// listSprintsHandler handles GET /api/sprints.
func (s *Server) listSprintsHandler(c *echo.Context) error {
	sprints, err := s.board.ListSprints()
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, sprints)
}

// createSprintHandler handles POST /api/sprints. The finalize task is
// created in the same commit and shows up on the tasks list.
func (s *Server) createSprintHandler(c *echo.Context) error {
	var req models.CreateSprintRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sprint, _, err := s.board.CreateSprint(req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, sprint)
}

// updateSprintHandler handles PUT /api/sprints/:id.
func (s *Server) updateSprintHandler(c *echo.Context) error {
	sprintID := c.Param("id")
	if sprintID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "sprint id is required")
	}

	var req models.UpdateSprintRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	sprint, err := s.board.UpdateSprint(sprintID, req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, sprint)
}
