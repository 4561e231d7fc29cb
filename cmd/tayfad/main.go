// tayfad is the orchestrator daemon: it serves the board API, runs the
// trigger scheduler, and relays board and agent-stream events.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tayfa-dev/tayfa/pkg/agent"
	"github.com/tayfa-dev/tayfa/pkg/api"
	"github.com/tayfa-dev/tayfa/pkg/config"
	"github.com/tayfa-dev/tayfa/pkg/events"
	"github.com/tayfa-dev/tayfa/pkg/metrics"
	"github.com/tayfa-dev/tayfa/pkg/scheduler"
	"github.com/tayfa-dev/tayfa/pkg/services"
	"github.com/tayfa-dev/tayfa/pkg/store"
	"github.com/tayfa-dev/tayfa/pkg/version"
	"github.com/tayfa-dev/tayfa/pkg/watch"
)

// failureLogCap bounds the persisted agent failure log.
const failureLogCap = 500

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	configPath := flag.String("config",
		getEnv("TAYFA_CONFIG", "tayfa.yaml"),
		"Path to the configuration file")
	flag.Parse()

	// Load .env before the config so {{.VAR}} expansion sees it.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file, continuing with existing environment", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	})))

	slog.Info("Starting tayfa",
		"version", version.Full(),
		"project", cfg.Project.Root,
		"listen_addr", cfg.Server.ListenAddr)

	ctx := context.Background()

	// 1. Shared state: locked JSON store and in-process event bus
	st := store.New(store.Options{
		AcquireTimeout: cfg.Store.LockAcquireTimeout,
		PollInterval:   cfg.Store.LockPollInterval,
		StaleAfter:     cfg.Store.LockStaleAfter,
	})
	bus := events.NewBus(events.Options{
		ReplaySize:   cfg.Events.ReplaySize,
		StreamBuffer: cfg.Events.StreamBuffer,
		BoardBuffer:  cfg.Events.BoardBuffer,
	})

	// 2. Domain services over the project's .tayfa tree
	project := cfg.Project
	board := services.NewBoardService(st, project.TasksFile(), bus)
	employees := services.NewEmployeeService(st, project.EmployeesFile())
	failures := services.NewFailureService(st, project.FailuresFile(), failureLogCap)
	history := services.NewHistoryService(st, project.ChatHistoryFile, cfg.Agent.HistoryCap)
	sessions := services.NewSessionService(st, project.SessionsFile())
	memory := agent.NewMemory(st, cfg.Agent.MemoryEntries)
	slog.Info("Services initialized")

	// 3. Agent runtimes and the scheduler driving them
	gateway := agent.NewGatewayClient(cfg.Gateway, cfg.Agent)
	cursor := agent.NewCursorCLI(cfg.Gateway, cfg.Agent)
	runner := agent.NewRunner(bus, history, sessions, memory, gateway, cursor)

	m := metrics.New()
	sched := scheduler.New(cfg.Scheduler, project, st, board, employees, failures, runner, bus, m)

	// 4. Board file watcher, so out-of-process writes reach SSE subscribers
	watcher := watch.New(project.TasksFile(), bus)
	if err := watcher.Start(ctx); err != nil {
		slog.Error("Failed to start board watcher", "error", err)
		os.Exit(1)
	}

	// 5. HTTP server (non-blocking)
	httpServer := api.NewServer(cfg, board, employees, failures, history, sched, bus, m)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.Start(cfg.Server.ListenAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	// 6. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 7. Graceful shutdown. Cancelled runs unwind their blocked trigger
	// handlers; the server shutdown waits for handlers within the timeout.
	sched.Shutdown()

	if err := watcher.Close(); err != nil {
		slog.Error("Error closing board watcher", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
