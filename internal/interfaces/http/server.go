// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/garyjia/ticket-workflow/internal/application/service"
	"github.com/garyjia/ticket-workflow/internal/application/ticketcache"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxUploadBytes caps ticket image uploads
	MaxUploadBytes int64
	// CallbackToken authenticates the external OCR job
	CallbackToken string
	ServiceName   string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		MaxUploadBytes: 20 << 20,
		ServiceName:    "ticket-workflow",
	}
}

// Dependencies are the application services the server routes to
type Dependencies struct {
	Tickets  service.TicketService
	Review   service.ReviewService
	Approval service.ApprovalService
	OCR      service.OCRService
	Payroll  service.PayrollService
	Sessions SessionResolver
	Lookup   TicketLookup
	Files    SignedFileReader
	// Live is the realtime ticket cache; nil serves the stored row
	Live LiveTickets
	// Realtime serves the websocket endpoint; nil disables it
	Realtime http.Handler
}

// SessionResolver resolves bearer tokens
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*entity.Session, error)
}

// TicketLookup loads a ticket for organization scoping
type TicketLookup interface {
	GetByID(ctx context.Context, id string) (*entity.Ticket, error)
}

// LiveTickets reads the realtime ticket cache
type LiveTickets interface {
	Get(ticketID string) (ticketcache.Entry, bool)
}

// SignedFileReader serves objects behind signed URLs
type SignedFileReader interface {
	Verify(path, expires, sig string) error
	Read(ctx context.Context, path string) ([]byte, error)
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Dependencies
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps Dependencies, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	server := &Server{
		config: config,
		router: router,
		deps:   deps,
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.deps, s.config, s.logger)
	auth := s.authMiddleware()

	s.router.GET("/health", h.HealthCheck)
	s.router.GET("/storage/*path", h.DownloadObject)
	s.router.POST("/api/ocr/callback", s.callbackAuthMiddleware(), h.OCRCallback)

	if s.deps.Realtime != nil {
		s.router.GET("/realtime", auth, gin.WrapH(s.deps.Realtime))
	}

	api := s.router.Group("/api", auth)
	{
		api.GET("/pay-week", h.PayWeek)
		api.GET("/tickets", h.ListTickets)
		api.POST("/tickets", h.CreateTicket)
		api.GET("/review", h.ListReview)
		api.GET("/customers", h.ListCustomers)
		api.GET("/payroll/statement", h.PayrollStatement)

		ticket := api.Group("/tickets/:id", s.ticketScopeMiddleware())
		{
			ticket.GET("", h.GetTicket)
			ticket.GET("/live", h.LiveTicket)
			ticket.POST("/ocr", h.ResubmitOCR)
			ticket.PATCH("/review", h.UpdateReviewField)
			ticket.POST("/approve", h.ApproveTicket)
			ticket.POST("/transition", h.TransitionTicket)
		}
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	serviceName := s.config.ServiceName
	if serviceName == "" {
		serviceName = "ticket-workflow"
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(s.router, serviceName),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
