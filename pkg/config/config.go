// Package config loads and validates the orchestrator configuration.
//
// Configuration comes from tayfa.yaml merged over built-in defaults:
// user-provided values override, unset values keep their defaults. YAML
// content may reference environment variables with {{.VAR}} template
// syntax. A missing config file is not an error; the defaults describe a
// complete single-project setup.
package config

import (
	"path/filepath"
	"time"
)

// Config is the root configuration for one orchestrator process.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Project   ProjectConfig   `yaml:"project"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Agent     AgentConfig     `yaml:"agent"`
	Events    EventsConfig    `yaml:"events"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	// ListenAddr is the host:port the API binds to. Local-only by default.
	ListenAddr string `yaml:"listen_addr"`
	// ShutdownTimeout bounds graceful shutdown on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProjectConfig locates the project this process orchestrates.
type ProjectConfig struct {
	// Root is the project directory containing the .tayfa tree.
	Root string `yaml:"root"`
}

// CommonDir is the shared state directory of the project.
func (p ProjectConfig) CommonDir() string {
	return filepath.Join(p.Root, ".tayfa", "common")
}

// TasksFile is the board document path.
func (p ProjectConfig) TasksFile() string {
	return filepath.Join(p.CommonDir(), "tasks.json")
}

// EmployeesFile is the read-only agent registry path.
func (p ProjectConfig) EmployeesFile() string {
	return filepath.Join(p.CommonDir(), "employees.json")
}

// FailuresFile is the persisted failure log path.
func (p ProjectConfig) FailuresFile() string {
	return filepath.Join(p.CommonDir(), "agent_failures.json")
}

// SessionsFile persists the last session id per (agent, model).
func (p ProjectConfig) SessionsFile() string {
	return filepath.Join(p.CommonDir(), "chat_sessions.json")
}

// ChatHistoryFile is the per-agent invocation log path.
func (p ProjectConfig) ChatHistoryFile(agent string) string {
	return filepath.Join(p.CommonDir(), "chat_history", agent+".json")
}

// DiscussionFile is the per-task handoff log path.
func (p ProjectConfig) DiscussionFile(taskID string) string {
	return filepath.Join(p.CommonDir(), "discussions", taskID+".md")
}

// GatewayConfig points at the local LLM gateway and the alternate CLI.
type GatewayConfig struct {
	// URL is the base address of the gateway; runs POST to <URL>/run.
	URL string `yaml:"url"`
	// CursorCommand is the alternate-runtime CLI invoked via the shell.
	CursorCommand string `yaml:"cursor_command"`
}

// SchedulerConfig tunes the trigger path.
type SchedulerConfig struct {
	// MaxConcurrentTasks caps simultaneously running invocations.
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`
	// MaxAttempts bounds invocations per trigger, retries included.
	MaxAttempts int `yaml:"max_attempts"`
	// RetryDelay separates consecutive attempts.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// AgentConfig tunes individual agent invocations.
type AgentConfig struct {
	// Timeout is the per-invocation deadline.
	Timeout time.Duration `yaml:"timeout"`
	// DrainGrace is the extra output drain window after the deadline.
	DrainGrace time.Duration `yaml:"drain_grace"`
	// GatewayExtraTimeout is added to Timeout for the HTTP deadline so the
	// gateway's own graceful timeout fires first.
	GatewayExtraTimeout time.Duration `yaml:"gateway_extra_timeout"`
	// HistoryCap is the number of chat-history entries kept per agent.
	HistoryCap int `yaml:"history_cap"`
	// MemoryEntries is the number of memory sections kept per agent.
	MemoryEntries int `yaml:"memory_entries"`
}

// EventsConfig tunes the in-process buses.
type EventsConfig struct {
	// ReplaySize caps the retained events of an agent's last stream.
	ReplaySize int `yaml:"replay_size"`
	// StreamBuffer is the per-subscriber FIFO depth on agent streams.
	StreamBuffer int `yaml:"stream_buffer"`
	// BoardBuffer is the per-subscriber FIFO depth on the board bus.
	BoardBuffer int `yaml:"board_buffer"`
	// KeepaliveInterval spaces SSE keepalive comments on idle streams.
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
}

// StoreConfig tunes the file lock protocol.
type StoreConfig struct {
	// LockAcquireTimeout bounds waiting for a sidecar lock.
	LockAcquireTimeout time.Duration `yaml:"lock_acquire_timeout"`
	// LockPollInterval spaces acquisition attempts.
	LockPollInterval time.Duration `yaml:"lock_poll_interval"`
	// LockStaleAfter is the age past which a lock is considered abandoned.
	LockStaleAfter time.Duration `yaml:"lock_stale_after"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}
