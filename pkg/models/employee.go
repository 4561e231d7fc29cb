package models

// Runtime selects which invocation path executes an agent.
type Runtime string

const (
	// RuntimeClaude invokes the model through the local HTTP gateway
	RuntimeClaude Runtime = "claude"
	// RuntimeCursor invokes the alternate CLI directly via the shell
	RuntimeCursor Runtime = "cursor"
)

// IsValid checks if the runtime is valid.
func (r Runtime) IsValid() bool {
	return r == RuntimeClaude || r == RuntimeCursor
}

// Employee is one named agent configuration from the external registry.
// The engine only ever reads these records.
type Employee struct {
	Role           string   `json:"role"`
	Model          string   `json:"model"`
	Workdir        string   `json:"workdir"`
	ProjectPath    string   `json:"project_path,omitempty"`
	AllowedTools   []string `json:"allowed_tools,omitempty"`
	PermissionMode string   `json:"permission_mode,omitempty"`
	MaxBudgetUSD   float64  `json:"max_budget_usd,omitempty"`
	FallbackModel  string   `json:"fallback_model,omitempty"`
}

// gatewayModels are served by the local HTTP gateway; everything else
// (composer variants, "cursor") runs through the alternate CLI.
var gatewayModels = map[string]bool{
	"opus":   true,
	"sonnet": true,
	"haiku":  true,
}

// RuntimeForModel maps a model name onto its invocation path.
func RuntimeForModel(model string) Runtime {
	if gatewayModels[model] {
		return RuntimeClaude
	}
	return RuntimeCursor
}
