package api

import "github.com/tayfa-dev/tayfa/pkg/models"

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// OKResponse acknowledges a mutation with no payload.
type OKResponse struct {
	OK bool `json:"ok"`
}

// RunningTasksResponse is returned by GET /api/running-tasks.
type RunningTasksResponse struct {
	Running map[string]models.RunningTaskInfo `json:"running"`
}

// FailuresResponse is returned by GET /api/agent-failures.
type FailuresResponse struct {
	Failures []models.AgentFailure `json:"failures"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Project string `json:"project"`
	Running int    `json:"running"`
}
