// Package server assembles the gin engine, the API route table and the
// real-time hub, and runs them behind an http.Server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/commlink/pkg/commlink/activity"
	"github.com/mikepea/commlink/pkg/commlink/auth"
	"github.com/mikepea/commlink/pkg/commlink/broadcast"
	"github.com/mikepea/commlink/pkg/commlink/config"
	"github.com/mikepea/commlink/pkg/commlink/dispatch"
	"github.com/mikepea/commlink/pkg/commlink/links"
	"github.com/mikepea/commlink/pkg/commlink/logging"
	"github.com/mikepea/commlink/pkg/commlink/metrics"
	"github.com/mikepea/commlink/pkg/commlink/preferences"
	"github.com/mikepea/commlink/pkg/commlink/ratelimit"
	"github.com/mikepea/commlink/pkg/commlink/sessions"
	"github.com/mikepea/commlink/pkg/commlink/users"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const readHeaderTimeout = 10 * time.Second

type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	engine  *gin.Engine
	routes  *dispatch.Table
	hub     *broadcast.Hub
	relay   *broadcast.RedisRelay
	rdb     *goredis.Client
	metrics *metrics.Metrics
}

// New wires every handler against db. When cfg.RedisURL is set, events and
// rate limit counters go through Redis.
func New(cfg *config.Config, db *gorm.DB, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		routes:  dispatch.NewTable(),
		metrics: metrics.New(),
	}
	s.hub = broadcast.NewHub(logger, s.metrics)

	var events broadcast.Publisher = s.hub
	if cfg.RedisURL != "" {
		rdb, err := broadcast.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		s.rdb = rdb
		s.relay = broadcast.NewRedisRelay(rdb, s.hub, logger)
		events = s.relay
	}

	activity.NewHandler(db).RegisterRoutes(s.routes)
	links.NewHandler(db, events).RegisterRoutes(s.routes)
	users.NewHandler(db, events).RegisterRoutes(s.routes)
	preferences.NewHandler(db, events).RegisterRoutes(s.routes)
	sessions.NewHandler(db, events).RegisterRoutes(s.routes)

	engine, err := s.buildEngine()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.engine = engine
	return s, nil
}

func (s *Server) buildEngine() (*gin.Engine, error) {
	r := gin.New()
	r.RedirectTrailingSlash = false
	r.Use(
		dispatch.Recovery(s.logger),
		logging.Middleware(s.logger),
		s.metrics.Middleware(),
		dispatch.CORS(),
		auth.Middleware(s.cfg.DefaultUserID, []byte(s.cfg.JWTSecret)),
	)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", s.metrics.Handler())

	// The real-time channel shares the port with the API.
	r.GET("/", s.hub.ServeWS)
	r.GET("/ws", s.hub.ServeWS)

	d := dispatch.New(s.routes, s.logger)
	api := r.Group("/api")
	if s.cfg.RateLimit != "" {
		limit, err := ratelimit.Middleware(s.cfg.RateLimit, s.rdb)
		if err != nil {
			return nil, err
		}
		api.Use(limit)
	}
	api.Any("/*path", d.Handle)
	r.NoRoute(d.Handle)

	return r, nil
}

// Handler exposes the engine, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Routes lists the API endpoints as "METHOD /path".
func (s *Server) Routes() []string {
	return s.routes.Routes()
}

// Hub is the local real-time hub.
func (s *Server) Hub() *broadcast.Hub {
	return s.hub
}

// Run serves until ctx is cancelled, then drains in-flight requests for at
// most cfg.ShutdownTimeout and disconnects real-time clients.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	if s.relay != nil {
		go s.relay.Run(ctx)
	}

	for _, route := range s.Routes() {
		s.logger.Info("Registered endpoint", "route", route)
	}
	s.logger.Info("WebSocket endpoint ready", "paths", []string{"/", "/ws"})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("Starting CommLink server", "addr", srv.Addr)

	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received, draining connections")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.hub.Close()
		if err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		s.logger.Info("Server stopped")
		return nil
	case err := <-errCh:
		s.hub.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	}
}

// Close releases the hub and the Redis client. The database is owned by the caller.
func (s *Server) Close() {
	s.hub.Close()
	if s.rdb != nil {
		if err := s.rdb.Close(); err != nil {
			s.logger.Warn("Failed to close redis client", "error", err)
		}
	}
}
