package e2e

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tayfa-dev/tayfa/pkg/models"
)

type triggerReply struct {
	code int
	body string
}

// triggerAsync fires a trigger from a goroutine and reports on the channel.
// Plain HTTP, no require: failures must not FailNow off the test goroutine.
func (app *TestApp) triggerAsync(id string) <-chan triggerReply {
	ch := make(chan triggerReply, 1)
	go func() {
		resp, err := http.Post(app.BaseURL+"/api/tasks-list/"+id+"/trigger", "application/json", nil)
		if err != nil {
			ch <- triggerReply{code: 0, body: err.Error()}
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		ch <- triggerReply{code: resp.StatusCode, body: string(body)}
	}()
	return ch
}

// TestSingleFlightConcurrentTriggers fires two triggers for the same task;
// the second is rejected while the first still runs.
func TestSingleFlightConcurrentTriggers(t *testing.T) {
	app := NewTestApp(t)
	agentBoard := app.AgentBoard()

	task := app.CreateTask(t, models.CreateTaskRequest{
		Title:    "Long build",
		Executor: "alice",
	})

	release := make(chan struct{})
	app.Gateway.Script(GatewayReply{
		Before: func(call GatewayCall) {
			<-release
			app.MarkDone(t, agentBoard, task.ID, "built")
		},
		Frames: []string{ResultFrame("built", "sess-1", false)},
	})

	first := app.triggerAsync(task.ID)
	app.WaitForRunning(t, task.ID)

	code, detail := app.TriggerTaskExpectError(t, task.ID)
	assert.Equal(t, http.StatusConflict, code)
	assert.Contains(t, detail, "already running")

	close(release)

	select {
	case reply := <-first:
		require.Equal(t, http.StatusOK, reply.code, "body: %s", reply.body)
		assert.Contains(t, reply.body, `"success":true`)
	case <-time.After(5 * time.Second):
		t.Fatal("first trigger never returned")
	}

	// Only the first trigger reached the gateway.
	assert.Equal(t, 1, app.Gateway.CallCount())
	assert.Empty(t, app.RunningTasks(t))
}

// TestRetryAfterOverload drives a run through two 529 replies before the
// gateway recovers. The trigger succeeds and no failure is recorded.
func TestRetryAfterOverload(t *testing.T) {
	app := NewTestApp(t)
	agentBoard := app.AgentBoard()

	task := app.CreateTask(t, models.CreateTaskRequest{
		Title:    "Flaky upstream",
		Executor: "alice",
	})

	app.Gateway.Script(
		GatewayReply{Status: 529, Body: "upstream overloaded"},
		GatewayReply{Status: 529, Body: "upstream overloaded"},
		GatewayReply{
			Before: func(call GatewayCall) {
				app.MarkDone(t, agentBoard, task.ID, "made it through")
			},
			Frames: []string{ResultFrame("made it through", "sess-2", false)},
		},
	)

	res := app.TriggerTask(t, task.ID)
	assert.True(t, res.Success)
	assert.Equal(t, "made it through", res.Result)
	assert.Empty(t, res.Note)

	assert.Equal(t, 3, app.Gateway.CallCount())
	assert.Empty(t, app.ListFailures(t, ""))

	// Both failed attempts and the success are in the agent's history.
	history := app.ChatHistory(t, "alice")
	require.Len(t, history, 3)
	assert.Equal(t, models.ErrorTypeOverloaded, history[0].ErrorType)
	assert.True(t, history[2].Success)
}

// TestAttemptBudgetExhausted runs retryable failures into the attempt cap:
// the trigger reports the terminal failure and the log records it.
func TestAttemptBudgetExhausted(t *testing.T) {
	app := NewTestApp(t, WithMaxAttempts(2))

	task := app.CreateTask(t, models.CreateTaskRequest{
		Title:    "Permanently overloaded",
		Executor: "alice",
	})

	app.Gateway.Script(GatewayReply{Status: 529, Body: "upstream overloaded"})

	code, detail := app.TriggerTaskExpectError(t, task.ID)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, detail, "overloaded")

	assert.Equal(t, 2, app.Gateway.CallCount())

	failures := app.ListFailures(t, "resolved=false")
	require.Len(t, failures, 1)
	assert.Equal(t, task.ID, failures[0].TaskID)
	assert.Equal(t, models.ErrorTypeOverloaded, failures[0].ErrorType)

	// The task is untouched and can be retried by the operator; the next
	// trigger resolves the pending failure record.
	assert.Equal(t, models.TaskStatusNew, app.GetTask(t, task.ID).Status)
}

// TestNonRetryableFailsFast stops after one attempt on an authentication
// error.
func TestNonRetryableFailsFast(t *testing.T) {
	app := NewTestApp(t)

	task := app.CreateTask(t, models.CreateTaskRequest{
		Title:    "Bad credentials",
		Executor: "alice",
	})

	app.Gateway.Script(GatewayReply{Status: 401, Body: "invalid api key"})

	code, detail := app.TriggerTaskExpectError(t, task.ID)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Contains(t, detail, "401")

	assert.Equal(t, 1, app.Gateway.CallCount())
}

// TestPostCompletionSuppression covers the agent committing its work before
// the stream fails: the persisted status wins and the trigger reports
// success with a note.
func TestPostCompletionSuppression(t *testing.T) {
	app := NewTestApp(t)
	agentBoard := app.AgentBoard()

	task := app.CreateTask(t, models.CreateTaskRequest{
		Title:    "Finishes then breaks",
		Executor: "alice",
	})

	app.Gateway.Script(GatewayReply{
		Before: func(call GatewayCall) {
			app.MarkDone(t, agentBoard, task.ID, "hotfix shipped")
		},
		Status: 500,
		Body:   "stream exploded",
	})

	res := app.TriggerTask(t, task.ID)
	assert.True(t, res.Success)
	assert.Equal(t, "Completed despite stream error", res.Note)
	assert.Equal(t, "hotfix shipped", res.Result)

	assert.Equal(t, 1, app.Gateway.CallCount())
	assert.Empty(t, app.ListFailures(t, "resolved=false"))
	assert.Equal(t, models.TaskStatusDone, app.GetTask(t, task.ID).Status)
}
