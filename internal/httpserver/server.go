package httpserver

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Server wraps the HTTP server setup.
type Server struct {
	httpServer *http.Server
	logger     *log.Logger
}

// New builds a Server with all API routes.
func New(addr string, logger *log.Logger, deps Deps, opts Options) (*Server, error) {
	router, err := buildRouter(logger, deps, opts)
	if err != nil {
		return nil, err
	}

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Server{
		httpServer: httpSrv,
		logger:     logger,
	}, nil
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server. Checkouts still waiting on a
// receipt keep the server open until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Check is one dependency consulted by /readyz.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

const defaultReadyTimeout = 2 * time.Second

func healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// readyHandler runs every check concurrently under one deadline. Any failure
// makes the service unavailable; the body names the failing dependency.
func readyHandler(checks []Check, timeout time.Duration, logger *log.Logger) gin.HandlerFunc {
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}
	return func(c *gin.Context) {
		if len(checks) == 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "reason": "no readiness checks configured"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		var (
			mu      sync.Mutex
			results = make(map[string]string, len(checks))
			ready   = true
		)
		var g errgroup.Group
		for _, check := range checks {
			g.Go(func() error {
				status := "ok"
				if err := check.Ping(ctx); err != nil {
					logger.Printf("readiness %s: %v", check.Name, err)
					status = "unreachable"
				}
				mu.Lock()
				results[check.Name] = status
				if status != "ok" {
					ready = false
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": results})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": results})
	}
}
