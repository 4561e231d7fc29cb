package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tayfa-dev/tayfa/pkg/api"
	"github.com/tayfa-dev/tayfa/pkg/models"
	"github.com/tayfa-dev/tayfa/pkg/services"
)

// do performs one request against the running server and returns the
// status code and raw body.
func (app *TestApp) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, app.BaseURL+path, rd)
	require.NoError(t, err)
	if rd != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decodeAs[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), "body: %s", data)
	return v
}

// CreateSprint posts a sprint and returns it. Its finalize task appears on
// the tasks list, assigned to the sprint's creator.
func (app *TestApp) CreateSprint(t *testing.T, req models.CreateSprintRequest) models.Sprint {
	t.Helper()
	code, body := app.do(t, http.MethodPost, "/api/sprints", req)
	require.Equal(t, http.StatusCreated, code, "body: %s", body)
	return decodeAs[models.Sprint](t, body)
}

// CreateTask posts a single task and returns it.
func (app *TestApp) CreateTask(t *testing.T, req models.CreateTaskRequest) models.Task {
	t.Helper()
	code, body := app.do(t, http.MethodPost, "/api/tasks-list", req)
	require.Equal(t, http.StatusCreated, code, "body: %s", body)
	return decodeAs[models.Task](t, body)
}

// ListTasks fetches tasks, optionally filtered ("status=done").
func (app *TestApp) ListTasks(t *testing.T, query string) []models.Task {
	t.Helper()
	path := "/api/tasks-list"
	if query != "" {
		path += "?" + query
	}
	code, body := app.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, code, "body: %s", body)
	return decodeAs[[]models.Task](t, body)
}

// GetTask fetches one task off the unfiltered list.
func (app *TestApp) GetTask(t *testing.T, id string) models.Task {
	t.Helper()
	for _, task := range app.ListTasks(t, "") {
		if task.ID == id {
			return task
		}
	}
	t.Fatalf("task %s not on the board", id)
	return models.Task{}
}

// ListSprints fetches all sprints.
func (app *TestApp) ListSprints(t *testing.T) []models.Sprint {
	t.Helper()
	code, body := app.do(t, http.MethodGet, "/api/sprints", nil)
	require.Equal(t, http.StatusOK, code, "body: %s", body)
	return decodeAs[[]models.Sprint](t, body)
}

// GetSprint fetches one sprint.
func (app *TestApp) GetSprint(t *testing.T, id string) models.Sprint {
	t.Helper()
	for _, sprint := range app.ListSprints(t) {
		if sprint.ID == id {
			return sprint
		}
	}
	t.Fatalf("sprint %s not on the board", id)
	return models.Sprint{}
}

// TriggerTask triggers a task and requires a successful run.
func (app *TestApp) TriggerTask(t *testing.T, id string) models.TriggerResult {
	t.Helper()
	code, body := app.do(t, http.MethodPost, "/api/tasks-list/"+id+"/trigger", nil)
	require.Equal(t, http.StatusOK, code, "body: %s", body)
	return decodeAs[models.TriggerResult](t, body)
}

// TriggerTaskExpectError triggers a task and returns the error status and
// detail.
func (app *TestApp) TriggerTaskExpectError(t *testing.T, id string) (int, string) {
	t.Helper()
	code, body := app.do(t, http.MethodPost, "/api/tasks-list/"+id+"/trigger", nil)
	require.GreaterOrEqual(t, code, 400, "expected an error, body: %s", body)
	return code, decodeAs[api.ErrorResponse](t, body).Detail
}

// ListFailures fetches the failure log, optionally filtered
// ("resolved=false").
func (app *TestApp) ListFailures(t *testing.T, query string) []models.AgentFailure {
	t.Helper()
	path := "/api/agent-failures"
	if query != "" {
		path += "?" + query
	}
	code, body := app.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, code, "body: %s", body)
	return decodeAs[api.FailuresResponse](t, body).Failures
}

// ChatHistory fetches an agent's invocation log.
func (app *TestApp) ChatHistory(t *testing.T, agentName string) []models.ChatHistoryEntry {
	t.Helper()
	code, body := app.do(t, http.MethodGet, "/api/chat-history/"+agentName, nil)
	require.Equal(t, http.StatusOK, code, "body: %s", body)
	return decodeAs[[]models.ChatHistoryEntry](t, body)
}

// RunningTasks fetches the in-flight run snapshot.
func (app *TestApp) RunningTasks(t *testing.T) map[string]models.RunningTaskInfo {
	t.Helper()
	code, body := app.do(t, http.MethodGet, "/api/running-tasks", nil)
	require.Equal(t, http.StatusOK, code, "body: %s", body)
	return decodeAs[api.RunningTasksResponse](t, body).Running
}

// WaitForRunning polls until the task shows up in the running snapshot.
func (app *TestApp) WaitForRunning(t *testing.T, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := app.RunningTasks(t)[id]
		return ok
	}, 5*time.Second, 10*time.Millisecond, "task %s never started running", id)
}

// MarkDone flips a task to done the way an agent process would: through a
// separate store handle on the shared board file. Gateway hooks call it off
// the test goroutine, so failures are recorded without FailNow.
func (app *TestApp) MarkDone(t *testing.T, board *services.BoardService, id, result string) {
	t.Helper()
	if result != "" {
		_, err := board.SetTaskResult(id, result)
		assert.NoError(t, err)
	}
	_, err := board.UpdateTaskStatus(id, models.TaskStatusDone)
	assert.NoError(t, err)
}
