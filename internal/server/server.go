// Package server exposes the query engine over HTTP: server-sent events and
// JSON on /ask, query cancellation, site listing, an MCP JSON-RPC endpoint and
// the health, readiness and metrics probes.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/core/stream"
	"nlweb-orchestrator/internal/models"
)

// Querier runs and cancels queries. The orchestrator implements it.
type Querier interface {
	Run(ctx context.Context, req models.QueryRequest, sink stream.Sink) (*models.Response, error)
	Cancel(queryID string) bool
}

type SiteLister interface {
	Sites(ctx context.Context) ([]string, error)
}

// Check reports whether a dependency is usable; /ready runs every check.
type Check func(ctx context.Context) error

type Options struct {
	Address         string
	EnableCORS      bool
	Heartbeat       time.Duration
	ShutdownTimeout time.Duration
	Version         string
	Checks          map[string]Check
}

type Server struct {
	engine  *gin.Engine
	http    *http.Server
	querier Querier
	sites   SiteLister
	opts    Options
	logger  logger.Logger
}

func New(q Querier, sites SiteLister, opts Options, log logger.Logger) *Server {
	if opts.Address == "" {
		opts.Address = ":8080"
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 15 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		engine:  engine,
		querier: q,
		sites:   sites,
		opts:    opts,
		logger:  logger.ForComponent(log, "http"),
	}

	engine.Use(gin.Recovery(), s.requestLogger())
	if opts.EnableCORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "Accept"}
		engine.Use(cors.New(corsConfig))
	}
	s.routes()

	s.http = &http.Server{
		Addr:              opts.Address,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/ask", s.handleAsk)
	s.engine.POST("/ask", s.handleAsk)
	s.engine.POST("/cancel/:query_id", s.handleCancel)
	s.engine.GET("/sites", s.handleSites)
	s.engine.POST("/mcp", s.handleMCP)

	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ready", s.handleReady)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{"address": s.opts.Address})
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request handled", map[string]interface{}{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}
