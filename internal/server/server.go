package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"todotracker/internal/query"
	"todotracker/internal/service"
)

// Server provides HTTP handlers for the todo and task service.
type Server struct {
	engine *gin.Engine
	svc    *service.Service
	logger *slog.Logger
}

// New constructs the HTTP server with routes and middleware configured.
func New(svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/api/healthz"))

	srv := &Server{
		engine: router,
		svc:    svc,
		logger: logger,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)

		tasks := api.Group("/tasks")
		{
			tasks.GET("", s.handleExpiringTasks)
			tasks.POST("", s.handleCreateTask)
			tasks.GET(":id", s.handleGetTask)
			tasks.POST(":id", s.handleUpsertTask)
			tasks.DELETE(":id", s.handleDeleteTask)
		}
		api.GET("/search/tasks", s.handleSearchTasks)

		todos := api.Group("/todos")
		{
			todos.POST("", s.handleCreateTodo)
			todos.GET(":id", s.handleGetTodo)
			todos.POST(":id", s.handleUpsertTodo)
			todos.DELETE(":id", s.handleDeleteTodo)
		}
	}

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError classifies err: malformed input is the caller's to fix and gets
// a 400 with the message, anything else is reported as a generic failure.
// Store failures were already logged where they happened.
func (s *Server) respondError(c *gin.Context, err error) {
	var malformed *query.MalformedInputError
	if errors.As(err, &malformed) {
		c.JSON(http.StatusBadRequest, gin.H{"error": malformed.Message, "param": malformed.Param})
		return
	}
	s.logger.Debug("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "request failed"})
}

// respondBadRequest reports an undecodable request body.
func (s *Server) respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// respondSuccess writes payload as the JSON response body.
func respondSuccess(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}
