// Package api is the HTTP transport boundary described in §6: a thin
// gin wrapper over the task queue, agent registry, and workflow engine.
// None of the core packages (task, agentregistry, dispatch, workflow)
// import this package — the core stays transport-neutral and is usable
// headless, exactly as the dispatcher and sweeper already run in
// cmd/orchestrator without it.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/aosanya/agentorch/internal/agentregistry"
	"github.com/aosanya/agentorch/internal/task"
	"github.com/aosanya/agentorch/internal/workflow"
)

// ServerConfig holds HTTP server tuning.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	Environment  string
}

// DefaultServerConfig returns sane defaults for local development.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		Environment:  "development",
	}
}

// Services bundles the core components the API exposes over HTTP.
type Services struct {
	Tasks    task.Repo
	Registry *agentregistry.Registry
	Engine   *workflow.Engine
}

// Server is the REST API server.
type Server struct {
	router   *gin.Engine
	server   *http.Server
	config   ServerConfig
	services *Services
}

// NewServer builds a Server with routes and middleware wired, but does
// not start listening.
func NewServer(cfg ServerConfig, services *Services) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	s := &Server{router: router, config: cfg, services: services}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(RecoveryMiddleware())
	s.router.Use(RequestIDMiddleware())
	s.router.Use(LoggingMiddleware())
	s.router.Use(ValidateContentTypeMiddleware())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.healthCheck)
		s.setupTaskRoutes(v1)
		s.setupAgentRoutes(v1)
		s.setupWorkflowRoutes(v1)
	}
}

func (s *Server) setupTaskRoutes(rg *gin.RouterGroup) {
	tasks := rg.Group("/tasks")
	{
		tasks.POST("", s.enqueueTask)
		tasks.GET("", s.listTasks)
		tasks.GET("/:id", s.getTask)
		tasks.POST("/:id/cancel", s.cancelTask)
	}
}

func (s *Server) setupAgentRoutes(rg *gin.RouterGroup) {
	agents := rg.Group("/agents")
	{
		agents.POST("", s.registerAgent)
		agents.GET("", s.listAgents)
		agents.GET("/:id", s.getAgent)
		agents.POST("/:id/heartbeat", s.heartbeatAgent)
	}
}

func (s *Server) setupWorkflowRoutes(rg *gin.RouterGroup) {
	workflows := rg.Group("/workflows")
	{
		workflows.POST("/execute", s.executeWorkflow)
		workflows.GET("/executions/:id", s.getExecution)
		workflows.POST("/executions/:id/pause", s.pauseExecution)
		workflows.POST("/executions/:id/resume", s.resumeExecution)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	SuccessResponse(c, gin.H{"status": "ok"})
}

// Start begins serving; it blocks until the listener returns an error.
func (s *Server) Start() error {
	log.WithField("addr", s.server.Addr).Info("api server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
