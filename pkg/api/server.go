// Package api provides the HTTP session bootstrap for the collaboration relay
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ZentaChain/zentalk-collab/pkg/credentials"
	"github.com/ZentaChain/zentalk-collab/pkg/metrics"
	"github.com/ZentaChain/zentalk-collab/pkg/server"
	"github.com/ZentaChain/zentalk-collab/pkg/storage"
)

// Config holds HTTP server configuration
type Config struct {
	Addr        string
	EnableCORS  bool
	RateLimit   int // Requests per minute
	ReadTimeout time.Duration

	// Advertised in the capabilities document
	Encodings   []string
	Compression []string
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Addr:        ":8080",
		EnableCORS:  true,
		RateLimit:   600,
		ReadTimeout: 30 * time.Second,
	}
}

// EventSource serves the audit trail of a room
type EventSource interface {
	RoomEvents(ctx context.Context, roomID string, limit int) ([]storage.Event, error)
}

// Server is the HTTP front of the relay
type Server struct {
	config     *Config
	creds      *credentials.Manager
	relay      *server.Server
	events     EventSource
	metrics    *metrics.Metrics
	log        *zap.Logger
	router     *gin.Engine
	limiter    *RateLimiter
	httpServer *http.Server
}

// NewServer wires the bootstrap routes. events and m may be nil.
func NewServer(config *Config, creds *credentials.Manager, relay *server.Server, events EventSource, m *metrics.Metrics, log *zap.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config:  config,
		creds:   creds,
		relay:   relay,
		events:  events,
		metrics: m,
		log:     log.Named("api"),
		router:  gin.New(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.router.Use(RecoveryMiddleware(s.log))

	if s.config.EnableCORS {
		s.router.Use(CORSMiddleware())
	}

	if s.config.RateLimit > 0 {
		s.limiter = NewRateLimiter(s.config.RateLimit)
		s.router.Use(RateLimitMiddleware(s.limiter))
	}

	s.router.Use(LoggingMiddleware(s.log))
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/capabilities", s.handleCapabilities)

		login := v1.Group("/login")
		{
			login.POST("", s.handleStartLogin)
			login.POST("/:token/confirm", s.handleConfirmLogin)
			login.GET("/:token", s.handlePollLogin)
		}

		rooms := v1.Group("/rooms")
		{
			rooms.POST("", s.requireUser, s.handleCreateRoom)
			rooms.POST("/:id/join", s.requireUser, s.handleJoin)
			rooms.GET("/:id/join/:token", s.handlePollJoin)
			rooms.GET("/:id/events", s.requireRoomSession, s.handleRoomEvents)
		}
	}

	s.router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	if s.relay != nil {
		s.router.GET("/ws", gin.WrapH(s.relay))
	}
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:        s.config.Addr,
		Handler:     s.router,
		ReadTimeout: s.config.ReadTimeout,
		IdleTimeout: 120 * time.Second,
		// no WriteTimeout: long polls and upgraded websockets outlive it
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.config.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down http server")
	return s.Stop()
}

// Stop stops the HTTP server
func (s *Server) Stop() error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
