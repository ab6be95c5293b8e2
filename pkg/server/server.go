// Package server exposes a catalog read-only over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dtnitsch/metawarc/pkg/catalog"
	"github.com/dtnitsch/metawarc/pkg/metrics"
	"github.com/dtnitsch/metawarc/pkg/query"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	readTimeout            = 30 * time.Second
	writeTimeout           = 5 * time.Minute // payload downloads can be large
)

// Server serves catalog listings, stats and record payloads.
type Server struct {
	router  *gin.Engine
	http    *http.Server
	store   *catalog.Store
	query   *query.Service
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New builds the router. m may be nil, in which case /metrics is not served.
func New(addr string, store *catalog.Store, svc *query.Service, m *metrics.Metrics, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(recovery(logger))
	router.Use(requestID())
	router.Use(requestLogger(logger, m))

	s := &Server{
		router:  router,
		store:   store,
		query:   svc,
		metrics: m,
		logger:  logger,
	}
	s.routes()

	s.http = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

func (s *Server) routes() {
	s.router.GET("/healthz", s.health)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api")
	api.GET("/files", s.listFiles)
	api.GET("/tables", s.listTables)
	api.GET("/stats", s.stats)
	api.GET("/records", s.listRecords)
	api.GET("/records/:id/payload", s.payload)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "address", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server", "timeout", defaultShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return <-errCh
}
