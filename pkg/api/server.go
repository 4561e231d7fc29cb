// Package api exposes the orchestrator over HTTP: board CRUD, trigger,
// failure log, chat history and the two SSE feeds (board changes and
// per-agent output streams).
//
// Handlers stay thin: bind, validate, call the service, map the error.
// Every error body is {"detail": <message>} with the status produced by
// mapServiceError.
package api

import (
	"context"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/tayfa-dev/tayfa/pkg/config"
	"github.com/tayfa-dev/tayfa/pkg/events"
	"github.com/tayfa-dev/tayfa/pkg/metrics"
	"github.com/tayfa-dev/tayfa/pkg/scheduler"
	"github.com/tayfa-dev/tayfa/pkg/services"
)

// Server is the HTTP front of one orchestrator process.
type Server struct {
	cfg       *config.Config
	board     *services.BoardService
	employees *services.EmployeeService
	failures  *services.FailureService
	history   *services.HistoryService
	sched     *scheduler.Scheduler
	bus       *events.Bus
	metrics   *metrics.Metrics

	echo *echo.Echo
	http *http.Server
}

// NewServer wires the HTTP server. The metrics handle may be nil.
func NewServer(
	cfg *config.Config,
	board *services.BoardService,
	employees *services.EmployeeService,
	failures *services.FailureService,
	history *services.HistoryService,
	sched *scheduler.Scheduler,
	bus *events.Bus,
	m *metrics.Metrics,
) *Server {
	s := &Server{
		cfg:       cfg,
		board:     board,
		employees: employees,
		failures:  failures,
		history:   history,
		sched:     sched,
		bus:       bus,
		metrics:   m,
	}

	e := echo.New()
	e.Use(securityHeaders())
	e.Use(errorDetail())
	s.registerRoutes(e)
	s.echo = e

	// Triggers block for whole agent runs and SSE connections stay open
	// indefinitely, so the server sets no write timeout.
	s.http = &http.Server{Handler: e}
	return s
}

func (s *Server) registerRoutes(e *echo.Echo) {
	g := e.Group("/api")

	g.GET("/health", s.healthHandler)

	g.GET("/tasks-list", s.listTasksHandler)
	g.POST("/tasks-list", s.createTasksHandler)
	g.POST("/tasks-list/:id/trigger", s.triggerTaskHandler)
	g.PUT("/tasks-list/:id/status", s.updateTaskStatusHandler)
	g.DELETE("/tasks-list/:id", s.deleteTaskHandler)

	g.POST("/bugs", s.createBugHandler)

	g.GET("/sprints", s.listSprintsHandler)
	g.POST("/sprints", s.createSprintHandler)
	g.PUT("/sprints/:id", s.updateSprintHandler)

	g.GET("/running-tasks", s.runningTasksHandler)
	g.GET("/agent-failures", s.listFailuresHandler)
	g.DELETE("/agent-failures/:id", s.resolveFailureHandler)
	g.GET("/chat-history/:agent", s.chatHistoryHandler)

	g.GET("/board-events", s.boardEventsHandler)
	g.GET("/agent-stream/:name", s.agentStreamHandler)

	e.GET("/metrics", s.metricsHandler)
}

// Handler exposes the routed handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.http.Addr = addr
	return s.http.ListenAndServe()
}

// StartWithListener serves on an existing listener. Tests use it to bind
// port 0.
func (s *Server) StartWithListener(ln net.Listener) error {
	return s.http.Serve(ln)
}

// Shutdown stops accepting connections and waits for in-flight handlers
// within the context's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
