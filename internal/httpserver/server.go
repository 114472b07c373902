// Package httpserver serves front-end redirects, the admin JSON API and the
// Prometheus endpoint on a single gin engine.
package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"almaseo-go/internal/metrics"
	"almaseo-go/internal/seo"
)

// AdminPrefix is the path prefix of the admin API.
const AdminPrefix = "/admin/api/v1"

const shutdownTimeout = 10 * time.Second

// Options configures a Server.
type Options struct {
	Address    string
	AdminToken string // empty disables the admin API
	TestParam  string // query parameter that lets an admin bypass redirects
}

// Services are the collaborators the handlers call into.
type Services struct {
	Redirects *seo.RedirectService
	Matcher   *seo.Matcher
	History   *seo.HistoryService
	Exports   *seo.ExportService
	Metrics   *metrics.Metrics // optional
	Logger    seo.Logger
}

// Server wraps the gin engine with graceful shutdown helpers.
type Server struct {
	opts   Options
	svc    Services
	engine *gin.Engine
	logger seo.Logger
}

// New constructs the engine with middleware and routes registered.
func New(svc Services, opts Options) *Server {
	s := &Server{
		opts:   opts,
		svc:    svc,
		engine: gin.New(),
		logger: seo.WithComponent(svc.Logger, "http"),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestLogger())
	s.engine.Use(s.frontEndRedirects())

	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if svc.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(svc.Metrics.Handler()))
	}

	admin := s.engine.Group(AdminPrefix)
	admin.Use(s.requireAdmin())
	if svc.Metrics != nil {
		admin.Use(s.observeAdmin())
	}
	s.registerRedirectRoutes(admin)
	s.registerHistoryRoutes(admin)

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	return s
}

// Handler returns the engine as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run starts the listener and shuts it down gracefully when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.opts.Address)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
