package server

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/themobileprof/ceepilot/internal/config"
	"github.com/themobileprof/ceepilot/internal/db"
	"github.com/themobileprof/ceepilot/internal/engine"
	"github.com/themobileprof/ceepilot/internal/fiches"
	"github.com/themobileprof/ceepilot/internal/history"
	"github.com/themobileprof/ceepilot/internal/journey"
	"github.com/themobileprof/ceepilot/internal/session"
	"github.com/themobileprof/ceepilot/server/auth"
	"github.com/themobileprof/ceepilot/server/handlers"
	"github.com/themobileprof/ceepilot/server/middleware"
)

// Server is the estimator HTTP server
type Server struct {
	router   *gin.Engine
	db       *db.DB
	fiches   *fiches.Loader
	sessions *session.Manager
	auth     *auth.Manager
	limiter  *middleware.RateLimiter
	stops    []func()
}

// New builds the server from cfg on an open database
func New(cfg *config.Config, database *db.DB) *Server {
	functions := engine.NewLoader(engine.DefaultSandbox(), engine.LoaderOptions{
		Strict:   cfg.StrictSandbox,
		MaxSteps: cfg.MaxSteps,
	})
	newEngine := func() *engine.Engine {
		return engine.New(
			engine.WithConversionRate(cfg.ConversionRate),
			engine.WithLoader(functions),
		)
	}

	sessions := session.NewManager(cfg.Server.SessionDuration(), newEngine)
	redirect := strings.TrimSuffix(cfg.Server.BaseURL, "/") + "/auth/callback"
	authMgr := auth.NewManager(auth.NewProvider(cfg.Auth, redirect), cfg.Server.SessionDuration(),
		strings.HasPrefix(cfg.Server.BaseURL, "https://"))
	if !authMgr.Enabled() {
		log.Printf("Warning: no identity provider configured, trusting the %s header", auth.DevUserHeader)
	}

	catalogue := fiches.NewLoader(database.Conn(), functions)
	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateInterval())

	s := &Server{
		router:   gin.New(),
		db:       database,
		fiches:   catalogue,
		sessions: sessions,
		auth:     authMgr,
		limiter:  limiter,
	}

	s.router.Use(gin.Logger(), gin.Recovery(), limiter.Middleware())

	h := handlers.New(handlers.Deps{
		Fiches:   catalogue,
		History:  history.NewStore(database.Conn()),
		Logs:     database,
		Sessions: sessions,
		Journeys: journey.NewLogger(cfg.JourneyLog),
		Auth:     authMgr,
	})
	h.RegisterRoutes(s.router)

	return s
}

// Router returns the HTTP handler
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Fiches returns the catalogue the server reads from
func (s *Server) Fiches() *fiches.Loader {
	return s.fiches
}

// Start launches the background session sweepers
func (s *Server) Start(interval time.Duration) {
	s.stops = append(s.stops, s.sessions.StartCleanup(interval), s.auth.StartCleanup(interval))
}

// Run serves HTTP on addr
func (s *Server) Run(addr string) error {
	if err := s.router.Run(addr); err != nil {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

// Close stops background routines. The database is owned by the caller.
func (s *Server) Close() {
	for _, stop := range s.stops {
		stop()
	}
	s.limiter.Close()
}
