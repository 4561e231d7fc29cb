package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/tayfa-dev/tayfa/pkg/models"
)

// triggerTaskHandler handles POST /api/tasks-list/:id/trigger. It blocks
// until the run reaches a terminal state, so the response carries the final
// outcome. An optional body overrides the runtime for this run.
func (s *Server) triggerTaskHandler(c *echo.Context) error {
	taskID := c.Param("id")
	if taskID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task id is required")
	}

	var req TriggerTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Runtime != "" && !req.Runtime.IsValid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid runtime: must be claude or cursor")
	}

	result, err := s.sched.Trigger(c.Request().Context(), taskID, req.Runtime)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// listTasksHandler handles GET /api/tasks-list.
func (s *Server) listTasksHandler(c *echo.Context) error {
	var filters models.TaskFilters

	if v := c.QueryParam("status"); v != "" {
		status := models.TaskStatus(v).Normalize()
		if !status.IsValid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid status: "+v)
		}
		filters.Status = status
	}
	filters.SprintID = c.QueryParam("sprint_id")
	if v := c.QueryParam("task_type"); v != "" {
		taskType := models.TaskType(v)
		if !taskType.IsValid() {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid task_type: must be task or bug")
		}
		filters.TaskType = taskType
	}

	tasks, err := s.board.GetTasks(filters)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, tasks)
}

// createTasksHandler handles POST /api/tasks-list. The body is either one
// task object or an array; an array is created atomically in one board
// commit.
func (s *Server) createTasksHandler(c *echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "request body is required")
	}

	if body[0] == '[' {
		var reqs []models.CreateTaskRequest
		if err := json.Unmarshal(body, &reqs); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid task array: "+err.Error())
		}
		tasks, err := s.board.CreateTasks(reqs)
		if err != nil {
			return mapServiceError(err)
		}
		return c.JSON(http.StatusCreated, tasks)
	}

	var req models.CreateTaskRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid task: "+err.Error())
	}
	task, err := s.board.CreateTask(req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, task)
}

// updateTaskStatusHandler handles PUT /api/tasks-list/:id/status.
func (s *Server) updateTaskStatusHandler(c *echo.Context) error {
	taskID := c.Param("id")
	if taskID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task id is required")
	}

	var req UpdateTaskStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Status == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "status field is required")
	}

	status := req.Status.Normalize()
	if _, err := s.board.UpdateTaskStatus(taskID, status); err != nil {
		return mapServiceError(err)
	}

	// Cancelling also aborts the in-flight run on this process; the trigger
	// observes the persisted status at its next boundary either way.
	if status == models.TaskStatusCancelled && s.sched != nil {
		if s.sched.CancelTask(taskID) {
			slog.Info("Aborted in-flight run", "task_id", taskID)
		}
	}

	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

// deleteTaskHandler handles DELETE /api/tasks-list/:id.
func (s *Server) deleteTaskHandler(c *echo.Context) error {
	taskID := c.Param("id")
	if taskID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task id is required")
	}

	if err := s.board.DeleteTask(taskID); err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, OKResponse{OK: true})
}

// createBugHandler handles POST /api/bugs.
func (s *Server) createBugHandler(c *echo.Context) error {
	var req models.CreateBugRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	bug, err := s.board.CreateBug(req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, bug)
}
