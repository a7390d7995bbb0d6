package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-ask/internal/runtime"
)

// DefaultMaxUploadBytes caps a multipart upload body when Config leaves it unset
const DefaultMaxUploadBytes = 50 << 20

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	maxUploadBytes int64
	corsOrigins    []string

	// Services
	authService      driving.AuthService
	ingestionService driving.IngestionService
	chatService      driving.ChatService
	maintenance      driving.MaintenanceService

	// Infrastructure
	taskQueue driven.TaskQueue
	runtime   *runtime.Services
	db        Pinger // PostgreSQL health check
	redis     Pinger // Redis health check (optional)
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	Version        string
	CORSOrigins    []string
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		Version:        "dev",
		CORSOrigins:    []string{"*"},
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
}

// Dependencies are the services and backends the handlers call
type Dependencies struct {
	Auth      driving.AuthService
	Ingestion driving.IngestionService
	Chat      driving.ChatService
	Schedules driving.MaintenanceService // Optional; admin schedule routes answer 503 without it
	TaskQueue driven.TaskQueue
	Runtime   *runtime.Services // Optional; reported by /ready
	DB        Pinger
	Redis     Pinger // Optional
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, deps Dependencies) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUploadBytes
	}

	s := &Server{
		router:           http.NewServeMux(),
		version:          cfg.Version,
		logger:           logger.With("component", "http"),
		maxUploadBytes:   maxUpload,
		corsOrigins:      cfg.CORSOrigins,
		authService:      deps.Auth,
		ingestionService: deps.Ingestion,
		chatService:      deps.Chat,
		maintenance:      deps.Schedules,
		taskQueue:        deps.TaskQueue,
		runtime:          deps.Runtime,
		db:               deps.DB,
		redis:            deps.Redis,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 3 * time.Minute, // an ask may wait on the generation budget
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// Handler returns the router wrapped in the global middleware chain
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = NewCORSMiddleware(s.corsOrigins).Handler(h)
	h = NewLoggingMiddleware(s.logger).Handler(h)
	h = NewRecoveryMiddleware(s.logger).Handler(h)
	return RequestIDMiddleware(h)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.authService)
	authed := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.Authenticate(h)
	}
	admin := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.Authenticate(authMiddleware.RequireAdmin(h))
	}

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	s.router.HandleFunc("GET /swagger/doc.json", s.handleSwaggerDoc)

	// Auth endpoints (public)
	s.router.HandleFunc("POST /api/v1/auth/register", s.handleRegister)
	s.router.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	s.router.HandleFunc("POST /api/v1/auth/refresh", s.handleRefresh)

	// Auth endpoints (authenticated)
	s.router.Handle("POST /api/v1/auth/logout", authed(s.handleLogout))
	s.router.Handle("POST /api/v1/auth/logout-all", authed(s.handleLogoutAll))
	s.router.Handle("GET /api/v1/me", authed(s.handleGetMe))
	s.router.Handle("PUT /api/v1/me/password", authed(s.handleChangePassword))

	// Document endpoints
	s.router.Handle("POST /api/v1/documents", authed(s.handleUploadDocuments))
	s.router.Handle("GET /api/v1/documents", authed(s.handleListDocuments))
	s.router.Handle("GET /api/v1/documents/{id}", authed(s.handleGetDocument))
	s.router.Handle("DELETE /api/v1/documents/{id}", authed(s.handleDeleteDocument))
	s.router.Handle("POST /api/v1/documents/{id}/reprocess", authed(s.handleReprocessDocument))

	// Chat endpoints
	s.router.Handle("POST /api/v1/chat/ask", authed(s.handleAsk))
	s.router.Handle("GET /api/v1/chats", authed(s.handleListChats))
	s.router.Handle("POST /api/v1/chats", authed(s.handleCreateChat))
	s.router.Handle("GET /api/v1/chats/{id}", authed(s.handleGetChat))
	s.router.Handle("PUT /api/v1/chats/{id}/title", authed(s.handleRenameChat))
	s.router.Handle("DELETE /api/v1/chats/{id}", authed(s.handleDeleteChat))

	// Admin endpoints (admin-only)
	s.router.Handle("GET /api/v1/admin/queue", admin(s.handleQueueStats))
	s.router.Handle("GET /api/v1/admin/schedules", admin(s.handleListSchedules))
	s.router.Handle("POST /api/v1/admin/schedules/{id}/run", admin(s.handleRunSchedule))
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
