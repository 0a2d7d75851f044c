// Package api serves the read-only manual lookup used by the chat-bot.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/IshaanNene/kitmanual/internal/catalog"
	"github.com/IshaanNene/kitmanual/internal/config"
	"github.com/IshaanNene/kitmanual/internal/observability"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Server exposes catalog records over HTTP.
type Server struct {
	engine  *gin.Engine
	addr    string
	store   catalog.Store
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewServer creates a new API server.
func NewServer(addr string, store catalog.Store, metrics *observability.Metrics, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:  gin.New(),
		addr:    addr,
		store:   store,
		metrics: metrics,
		logger:  logger.With("component", "api_server"),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.registerRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("API server starting", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("API server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(s.metrics))

	manuals := s.engine.Group("/manuals")
	manuals.GET("", s.handleList)
	manuals.GET("/:id", s.handleGet)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": config.Version,
		"store":   s.store.Name(),
	})
}

func (s *Server) handleList(c *gin.Context) {
	q := catalog.Query{
		Keyword:     strings.TrimSpace(c.Query("q")),
		Grades:      splitList(c.QueryArray("grade")),
		OnlyMissing: c.Query("missing") == "true",
		Limit:       parseInt(c.Query("limit"), defaultLimit),
		Offset:      parseInt(c.Query("offset"), 0),
	}
	if q.Limit <= 0 || q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	items, err := s.store.List(c.Request.Context(), q)
	if err != nil {
		s.logger.Error("list manuals failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	if items == nil {
		items = []catalog.Record{}
	}

	c.JSON(http.StatusOK, gin.H{
		"count":  len(items),
		"limit":  q.Limit,
		"offset": q.Offset,
		"items":  items,
	})
}

func (s *Server) handleGet(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	rec, err := s.store.Get(c.Request.Context(), id)
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		s.logger.Error("get manual failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get failed"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// splitList accepts both grade=MG&grade=RG and grade=MG,RG.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseInt(s string, def int) int {
	if strings.TrimSpace(s) == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
