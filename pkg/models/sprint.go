package models

import (
	"fmt"
	"time"
)

// SprintStatus defines the sprint lifecycle states.
type SprintStatus string

const (
	// SprintStatusActive is the initial state of every sprint
	SprintStatusActive SprintStatus = "active"
	// SprintStatusCompleted is set when the sprint's finalize task reaches done
	SprintStatusCompleted SprintStatus = "completed"
	// SprintStatusReleased is set only by the external release collaborator
	SprintStatusReleased SprintStatus = "released"
)

// IsValid checks if the sprint status is valid.
func (s SprintStatus) IsValid() bool {
	switch s {
	case SprintStatusActive, SprintStatusCompleted, SprintStatusReleased:
		return true
	default:
		return false
	}
}

// Sprint groups tasks and carries a synthetic finalize task whose completion
// marks the sprint completed.
type Sprint struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	CreatedBy      string       `json:"created_by,omitempty"`
	Status         SprintStatus `json:"status"`
	Version        string       `json:"version,omitempty"` // release tag, set by the release collaborator
	ReadyToExecute bool         `json:"ready_to_execute"`  // advisory flag for the UI auto-run loop
	CreatedAt      time.Time    `json:"created_at"`
}

// SprintID formats a sprint id from a counter value.
func SprintID(n int) string { return fmt.Sprintf("S%03d", n) }

// CreateSprintRequest contains fields for creating a new sprint.
type CreateSprintRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	CreatedBy      string `json:"created_by,omitempty"`
	ReadyToExecute bool   `json:"ready_to_execute,omitempty"`
}

// UpdateSprintRequest contains the mutable sprint fields for operator updates.
// Nil fields are left unchanged.
type UpdateSprintRequest struct {
	Status         *SprintStatus `json:"status,omitempty"`
	ReadyToExecute *bool         `json:"ready_to_execute,omitempty"`
	Version        *string       `json:"version,omitempty"`
}
