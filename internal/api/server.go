package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"market-structure-bot/internal/auth"
	"market-structure-bot/internal/cache"
	"market-structure-bot/internal/database"
	"market-structure-bot/internal/engine"
	"market-structure-bot/internal/events"
	"market-structure-bot/internal/performance"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SessionAPI is the surface the running analysis session exposes to the API.
// Implementations must be safe for concurrent use; the engine itself is
// single-threaded, so the driver wraps it with a lock.
type SessionAPI interface {
	SessionID() string
	Snapshot() *engine.Snapshot
	Stats() performance.Stats
	Reset() error
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int
	Host            string
	AllowedOrigins  string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	ProductionMode  bool
	AuthEnabled     bool
}

// Operator is the single configured API user. Credentials come from config
// or Vault, never from the database.
type Operator struct {
	Email        string
	PasswordHash string
}

// Server represents the HTTP API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	cfg        ServerConfig
	logger     zerolog.Logger

	session  SessionAPI
	eventBus *events.EventBus
	hub      *WSHub

	repo      *database.Repository // nil when persistence is disabled
	snapshots *cache.SnapshotCache // nil when redis is disabled
	runID     string

	jwtManager *auth.JWTManager // nil when auth is disabled
	passwords  *auth.PasswordManager
	operator   Operator
}

// NewServer creates a new API server
func NewServer(
	cfg ServerConfig,
	session SessionAPI,
	eventBus *events.EventBus,
	repo *database.Repository, // Can be nil if persistence is disabled
	snapshots *cache.SnapshotCache, // Can be nil if redis is disabled
	jwtManager *auth.JWTManager, // Can be nil if auth is disabled
	passwords *auth.PasswordManager,
	operator Operator,
	logger zerolog.Logger,
) *Server {
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.AllowedOrigins, ",")
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:     router,
		cfg:        cfg,
		logger:     logger.With().Str("component", "APIServer").Logger(),
		session:    session,
		eventBus:   eventBus,
		repo:       repo,
		snapshots:  snapshots,
		jwtManager: jwtManager,
		passwords:  passwords,
		operator:   operator,
	}

	server.hub = NewWSHub(logger)
	go server.hub.Run()
	eventBus.SubscribeAll(server.hub.BroadcastEvent)

	server.setupRoutes()
	return server
}

// SetRunID associates the server with a persisted analysis run.
func (s *Server) SetRunID(id string) {
	s.runID = id
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	if s.cfg.AuthEnabled && s.jwtManager != nil {
		s.router.POST("/api/v1/auth/login", s.handleLogin)
	}

	v1 := s.router.Group("/api/v1")
	if s.cfg.AuthEnabled && s.jwtManager != nil {
		v1.Use(auth.Middleware(s.jwtManager))
	}
	{
		v1.GET("/state", s.handleState)
		v1.GET("/swings", s.handleSwings)
		v1.GET("/levels", s.handleLevels)
		v1.GET("/signals", s.handleSignals)
		v1.GET("/performance", s.handlePerformance)
		v1.POST("/session/reset", s.handleReset)
		v1.GET("/ws", s.handleWebSocket)
	}
}

// Start runs the HTTP server until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("api server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
