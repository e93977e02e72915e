// Package server is duetask-server: the remote document service and the
// identity provider the CLI synchronizes with.
package server

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"

	"github.com/existflow/duetask/internal/logger"
	"github.com/existflow/duetask/internal/remote"
)

// DefaultTokenTTL is the lifetime of an access token
const DefaultTokenTTL = 30 * 24 * time.Hour

// Server is the document server
type Server struct {
	db       *sql.DB
	store    remote.Store
	accounts Accounts
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
	echo     *echo.Echo
}

// New connects to Postgres, runs migrations and creates a server
func New(dbURL string, secret []byte) (*Server, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := NewWithStore(NewDocStore(db, time.Now), NewPostgresAccounts(db), secret)
	s.db = db
	return s, nil
}

// NewWithStore creates a server over an existing store and account table
func NewWithStore(store remote.Store, accounts Accounts, secret []byte) *Server {
	s := &Server{
		store:    store,
		accounts: accounts,
		secret:   secret,
		tokenTTL: DefaultTokenTTL,
		now:      time.Now,
	}
	s.setupEcho()
	return s
}

func (s *Server) setupEcho() {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(requestLogger)
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORS())

	// Health check
	e.GET("/health", s.handleHealth)

	// API v1
	api := e.Group("/api/v1")

	// Auth endpoints (public)
	api.POST("/register", s.handleRegister)
	api.POST("/login", s.handleLogin)

	// Protected endpoints
	protected := api.Group("")
	protected.Use(s.authMiddleware)
	protected.GET("/me", s.handleMe)
	protected.GET("/docs", s.handleGetDoc)
	protected.PUT("/docs", s.handleSetDoc)
	protected.PATCH("/docs", s.handleUpdateDoc)
	protected.DELETE("/docs", s.handleDeleteDoc)
	protected.POST("/docs", s.handleCreateDoc)
	protected.POST("/query", s.handleQuery)
	protected.POST("/batch", s.handleBatch)

	s.echo = e
}

// Close closes the database connection
func (s *Server) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Router returns the HTTP handler
func (s *Server) Router() http.Handler {
	return s.echo
}

// Start starts the server
func (s *Server) Start(addr string) error {
	logger.Info("Server listening", logger.F("addr", addr))
	return s.echo.Start(addr)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
