package models

// RunningTask describes one in-flight invocation. The running map lives in
// memory only; a restart starts from an empty map.
type RunningTask struct {
	Agent     string  `json:"agent"`
	Role      string  `json:"role"`
	Runtime   Runtime `json:"runtime"`
	StartedAt int64   `json:"started_at"` // epoch seconds
}

// RunningTaskInfo is the API view of a running task, with elapsed time
// computed at snapshot time.
type RunningTaskInfo struct {
	Agent          string  `json:"agent"`
	Role           string  `json:"role"`
	Runtime        Runtime `json:"runtime"`
	StartedAt      int64   `json:"started_at"`
	ElapsedSeconds int64   `json:"elapsed_seconds"`
}

// TriggerResult is the terminal outcome of one trigger call.
type TriggerResult struct {
	TaskID  string  `json:"task_id"`
	Agent   string  `json:"agent"`
	Role    string  `json:"role"`
	Runtime Runtime `json:"runtime"`
	Success bool    `json:"success"`
	Result  string  `json:"result,omitempty"`
	Note    string  `json:"note,omitempty"`
}
