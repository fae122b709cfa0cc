// Package health serves the liveness endpoints polled by the hosting
// platform.
package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NgigiN/ledgerbot/internal/log"
)

// Checks are the probes behind GET /health. Nil probes are skipped.
type Checks struct {
	Discord  func() bool
	Database func(ctx context.Context) error
	Events   func() bool
}

type Server struct {
	engine *gin.Engine
	srv    *http.Server
	checks Checks
	start  time.Time
	now    func() time.Time
	log    *log.Logger
}

func NewServer(addr string, checks Checks, lg *log.Logger) *Server {
	if lg == nil {
		lg = log.Nop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine: gin.New(),
		checks: checks,
		start:  time.Now(),
		now:    time.Now,
		log:    lg.WithComponent(log.ComponentHealth),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger)
	s.engine.GET("/", s.root)
	s.engine.GET("/health", s.health)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.InfoContext(ctx, "health server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("health server shutdown: %w", err)
	}
	return nil
}

// requestLogger puts a logger tagged with the request on the request context.
func (s *Server) requestLogger(c *gin.Context) {
	lg := s.log.With("method", c.Request.Method, "path", c.Request.URL.Path)
	c.Request = c.Request.WithContext(log.IntoContext(c.Request.Context(), lg))
	c.Next()
}

func (s *Server) root(c *gin.Context) {
	c.String(http.StatusOK, "Bot is running")
}

func (s *Server) health(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	body := gin.H{
		"uptime":    s.now().Sub(s.start).Round(time.Second).String(),
		"timestamp": s.now().UTC().Format(time.RFC3339),
	}

	if s.checks.Discord != nil {
		ok := s.checks.Discord()
		body["discord_connected"] = ok
		if !ok {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}
	if s.checks.Database != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		err := s.checks.Database(ctx)
		cancel()
		body["database_ok"] = err == nil
		if err != nil {
			log.FromContext(c.Request.Context()).WarnContext(c.Request.Context(),
				"database health check failed", log.FieldError, err)
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}
	if s.checks.Events != nil {
		// Events never make the bot unhealthy.
		body["events_connected"] = s.checks.Events()
	}

	body["status"] = status
	c.JSON(code, body)
}
