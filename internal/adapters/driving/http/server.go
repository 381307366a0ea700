package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/custodia-labs/docchat-core/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker is the health probe shape shared by the driven adapters
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string

	// Services
	chatService driving.ChatService
	docService  driving.DocumentService

	// Infrastructure
	jobQueue Pinger        // queue backend health check
	index    HealthChecker // vector index health check (optional)
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	Version        string
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		Version:        "dev",
		AllowedOrigins: []string{"*"},
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	chatService driving.ChatService,
	docService driving.DocumentService,
	jobQueue Pinger,
	index HealthChecker, // can be nil
) *Server {
	s := &Server{
		router:      http.NewServeMux(),
		version:     cfg.Version,
		chatService: chatService,
		docService:  docService,
		jobQueue:    jobQueue,
		index:       index,
	}

	s.setupRoutes()

	// Streaming responses must not be cut off by WriteTimeout, so it is
	// left unset and slow-client protection relies on ReadTimeout.
	handler := NewRecoveryMiddleware().Handler(
		NewCORSMiddleware(cfg.AllowedOrigins).Handler(
			NewLoggingMiddleware().Handler(s.router)))

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Chat endpoints
	s.router.HandleFunc("POST /api/v1/chat/stream", s.handleChatStream)
	s.router.HandleFunc("GET /api/v1/chat/history", s.handleGetHistory)
	s.router.HandleFunc("DELETE /api/v1/chat/history", s.handleResetHistory)

	// Document endpoints
	s.router.HandleFunc("POST /api/v1/chat/upload", s.handleUpload)
	s.router.HandleFunc("GET /api/v1/chat/document", s.handleListDocuments)
	s.router.HandleFunc("GET /api/v1/chat/document/{id}/status", s.handleDocumentStatus)
	s.router.HandleFunc("DELETE /api/v1/chat/document/{id}", s.handleDeleteDocument)
}

// Handler returns the root handler, including middleware.
// Used by tests to exercise routes without binding a port.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server with graceful shutdown
func (s *Server) Start() error {
	// Channel to listen for OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-stop
	log.Println("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
