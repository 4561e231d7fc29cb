package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads the configuration at path and resolves it against the
// defaults. A missing file yields the pure defaults; an unreadable or
// unparsable file is an error. User values override defaults field by
// field, so a config file only needs the knobs it changes.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, validate(cfg)
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	data = ExpandEnv(data)

	var user Config
	if err := yaml.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
	}

	if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("merge config %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects configurations the engine cannot run with.
func validate(cfg *Config) error {
	if cfg.Server.ListenAddr == "" {
		return newValidationError("server.listen_addr", "must not be empty")
	}
	if cfg.Project.Root == "" {
		return newValidationError("project.root", "must not be empty")
	}
	if cfg.Gateway.URL == "" {
		return newValidationError("gateway.url", "must not be empty")
	}
	if cfg.Scheduler.MaxConcurrentTasks < 1 {
		return newValidationError("scheduler.max_concurrent_tasks", "must be at least 1, got %d", cfg.Scheduler.MaxConcurrentTasks)
	}
	if cfg.Scheduler.MaxAttempts < 1 {
		return newValidationError("scheduler.max_attempts", "must be at least 1, got %d", cfg.Scheduler.MaxAttempts)
	}
	if cfg.Agent.Timeout <= 0 {
		return newValidationError("agent.timeout", "must be positive, got %s", cfg.Agent.Timeout)
	}
	if cfg.Agent.HistoryCap < 1 {
		return newValidationError("agent.history_cap", "must be at least 1, got %d", cfg.Agent.HistoryCap)
	}
	if cfg.Agent.MemoryEntries < 1 {
		return newValidationError("agent.memory_entries", "must be at least 1, got %d", cfg.Agent.MemoryEntries)
	}
	if cfg.Events.ReplaySize < 1 {
		return newValidationError("events.replay_size", "must be at least 1, got %d", cfg.Events.ReplaySize)
	}
	if cfg.Events.StreamBuffer < 1 {
		return newValidationError("events.stream_buffer", "must be at least 1, got %d", cfg.Events.StreamBuffer)
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return newValidationError("logging.level", "must be one of debug, info, warn, error; got %q", cfg.Logging.Level)
	}
	return nil
}
