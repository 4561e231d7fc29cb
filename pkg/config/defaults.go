package config

import "time"

// DefaultConfig returns the complete built-in configuration. Every knob has
// a working value so an empty or missing tayfa.yaml runs a single project
// out of the current directory.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      "127.0.0.1:8766",
			ShutdownTimeout: 15 * time.Second,
		},
		Project: ProjectConfig{
			Root: ".",
		},
		Gateway: GatewayConfig{
			URL:           "http://127.0.0.1:8765",
			CursorCommand: "cursor-agent",
		},
		Scheduler: SchedulerConfig{
			MaxConcurrentTasks: 3,
			MaxAttempts:        3,
			RetryDelay:         5 * time.Second,
		},
		Agent: AgentConfig{
			Timeout:             20 * time.Minute,
			DrainGrace:          30 * time.Second,
			GatewayExtraTimeout: 60 * time.Second,
			HistoryCap:          1000,
			MemoryEntries:       5,
		},
		Events: EventsConfig{
			ReplaySize:        500,
			StreamBuffer:      256,
			BoardBuffer:       16,
			KeepaliveInterval: 30 * time.Second,
		},
		Store: StoreConfig{
			LockAcquireTimeout: 10 * time.Second,
			LockPollInterval:   50 * time.Millisecond,
			LockStaleAfter:     60 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
