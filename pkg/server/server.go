// Package server exposes the pipeline over HTTP: job submission and
// inspection, transcript downloads, a WebSocket progress stream per job, and
// Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wavescribe/wavescribe/pkg/logger"
	"github.com/wavescribe/wavescribe/pkg/scheduler"
)

// Config tunes the HTTP listener.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// StreamIdleTimeout closes a progress stream that has seen no events.
	StreamIdleTimeout time.Duration `mapstructure:"stream_idle_timeout"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8585,
		StreamIdleTimeout: 300 * time.Second,
	}
}

func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.StreamIdleTimeout <= 0 {
		c.StreamIdleTimeout = def.StreamIdleTimeout
	}
}

// Server is the HTTP frontend over a scheduler.
type Server struct {
	cfg   Config
	echo  *echo.Echo
	sched *scheduler.Scheduler
	log   *logger.Logger
}

// New builds the server and registers its routes. gatherer may be nil to
// disable the /metrics endpoint.
func New(cfg Config, sched *scheduler.Scheduler, gatherer prometheus.Gatherer) *Server {
	cfg.normalize()
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		cfg:   cfg,
		echo:  e,
		sched: sched,
		log:   logger.WithComponent("server"),
	}

	e.GET("/healthz", s.handleHealth)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	api := e.Group("/api/v1")
	api.POST("/jobs", s.handleSubmitJob)
	api.GET("/jobs", s.handleListJobs)
	api.GET("/jobs/:id", s.handleGetJob)
	api.DELETE("/jobs/:id", s.handleCancelJob)
	api.GET("/jobs/:id/transcript", s.handleGetTranscript)
	api.GET("/jobs/:id/events", s.handleJobEvents)
	api.POST("/batches", s.handleSubmitBatch)
	api.GET("/batches/:id", s.handleGetBatch)
	api.DELETE("/batches/:id", s.handleCancelBatch)
	api.GET("/stats", s.handleStats)

	return s
}

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.log.Info().Str("addr", addr).Msg("HTTP server listening")
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
