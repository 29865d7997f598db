// Package apistub serves the transactions REST API over an in-memory
// collection, for local development and acceptance tests.
package apistub

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"caixa/internal/core"
	"caixa/internal/log"
	"caixa/internal/remote"
	"caixa/internal/remote/memory"
)

// Server exposes a memory.Store as the remote API.
type Server struct {
	engine *gin.Engine
	store  *memory.Store
	logger *log.Logger

	mu       sync.Mutex
	failures []int
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// New builds the gin engine. Callers pick the gin mode beforehand.
func New(store *memory.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	s := &Server{
		engine: gin.New(),
		store:  store,
		logger: logger.WithComponent(log.ComponentStub),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger(), s.injectFailures())

	s.engine.GET("/health", s.health)
	api := s.engine.Group("/api")
	api.GET("/:kind", s.list)
	api.POST("/:kind", s.create)
	api.PUT("/:kind/:id", s.update)
	api.DELETE("/:kind/:id", s.delete)
	return s
}

// Handler returns the engine as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// FailNext makes the next request answer with status instead of being served.
// Calls queue up.
func (s *Server) FailNext(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, status)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"gastos":    s.store.Len(core.Expenses),
		"lucros":    s.store.Len(core.Profits),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// list handles GET /api/:kind. The collection is wrapped in an object keyed by kind.
func (s *Server) list(c *gin.Context) {
	kind, ok := s.kind(c)
	if !ok {
		return
	}
	items, err := s.store.List(c.Request.Context(), kind)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{kind.String(): items})
}

func (s *Server) create(c *gin.Context) {
	kind, ok := s.kind(c)
	if !ok {
		return
	}
	var d core.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	t, err := s.store.Create(c.Request.Context(), kind, d)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *Server) update(c *gin.Context) {
	kind, ok := s.kind(c)
	if !ok {
		return
	}
	var d core.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	t, err := s.store.Update(c.Request.Context(), kind, core.ID(c.Param("id")), d)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *Server) delete(c *gin.Context) {
	kind, ok := s.kind(c)
	if !ok {
		return
	}
	if err := s.store.Delete(c.Request.Context(), kind, core.ID(c.Param("id"))); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) kind(c *gin.Context) (core.Kind, bool) {
	kind, err := core.ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return "", false
	}
	return kind, true
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, remote.ErrNotFound), errors.Is(err, core.ErrInvalidKind):
		status = http.StatusNotFound
	case errors.Is(err, remote.ErrTransport):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

func (s *Server) injectFailures() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		var status int
		if len(s.failures) > 0 {
			status, s.failures = s.failures[0], s.failures[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			c.AbortWithStatusJSON(status, ErrorResponse{Error: http.StatusText(status)})
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.InfoContext(c.Request.Context(), "Stub request",
			log.NewFields().
				WithHTTPRequest(c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery, "", "").
				WithHTTPResponse(c.Writer.Status(), time.Since(start).Milliseconds(), c.Writer.Status() < 400).
				ToSlice()...)
	}
}
