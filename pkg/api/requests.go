package api

import "github.com/tayfa-dev/tayfa/pkg/models"

// TriggerTaskRequest is the optional HTTP request body for
// POST /api/tasks-list/:id/trigger.
type TriggerTaskRequest struct {
	// Runtime overrides the executor's invocation path for this run.
	Runtime models.Runtime `json:"runtime,omitempty"`
}

// UpdateTaskStatusRequest is the HTTP request body for
// PUT /api/tasks-list/:id/status.
type UpdateTaskStatusRequest struct {
	Status models.TaskStatus `json:"status"`
}
