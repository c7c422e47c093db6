package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/ticket-workflow/internal/application/dispatcher"
	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/application/service"
	"github.com/garyjia/ticket-workflow/internal/application/session"
	"github.com/garyjia/ticket-workflow/internal/application/ticketcache"
	"github.com/garyjia/ticket-workflow/internal/application/workflow"
	"github.com/garyjia/ticket-workflow/internal/domain/payweek"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/storage"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/worker"
	httpapi "github.com/garyjia/ticket-workflow/internal/interfaces/http"
	"github.com/garyjia/ticket-workflow/internal/interfaces/websocket"
	"github.com/garyjia/ticket-workflow/pkg/database"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	conn         *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - External and storage
	external *ExternalBundle
	storage  *storage.BucketStorage

	// Application
	dispatcher dispatcher.Dispatcher
	realtime   *RealtimeBundle
	services   *ServiceBundle

	// Interfaces
	server *httpapi.Server

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Ticket    port.TicketRepository
	History   port.HistoryRepository
	DriverPay port.DriverPayRepository
	Load      port.LoadRepository
	Session   port.SessionRepository
	Reference port.ReferenceRepository
}

// ServiceBundle groups the workflow engine and all application services.
type ServiceBundle struct {
	Engine   workflow.Engine
	Gate     *payweek.Gate
	Ticket   service.TicketService
	OCR      service.OCRService
	Review   service.ReviewService
	Approval service.ApprovalService
	Payroll  service.PayrollService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. External clients (OCR, alerts) and storage
// 3. Event dispatcher and realtime hub
// 4. Workflow engine and application services
// 5. HTTP server
// 6. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize external clients and storage
	if err := c.initExternal(); err != nil {
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.logger.Info("External clients and storage initialized")

	// Step 3: Initialize dispatcher and realtime hub
	if err := c.initDispatcherAndRealtime(); err != nil {
		return fmt.Errorf("failed to initialize dispatcher and realtime: %w", err)
	}
	c.logger.Info("Dispatcher and realtime hub initialized")

	// Step 4: Initialize workflow engine and application services
	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	// Step 5: Build the HTTP server
	c.initServer()
	c.logger.Info("HTTP server configured", zap.String("address", c.server.Address()))

	// Step 6: Initialize and start workers
	if err := c.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop workers (reverse of step 6)
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		} else {
			c.logger.Info("Workers stopped")
		}
	}

	// Step 2: Stop HTTP server (reverse of step 5)
	if c.server != nil {
		if err := c.server.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop server: %w", err))
		}
	}

	// Step 3: Services hold no resources (reverse of step 4)

	// Step 4: Close realtime hub and dispatcher (reverse of step 3)
	if c.realtime != nil {
		if c.realtime.detach != nil {
			c.realtime.detach()
		}
		c.realtime.Hub.Close()
		c.logger.Info("Realtime hub closed")
	}
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 5: External clients and storage need no cleanup (reverse of step 2)

	// Step 6: Close database (reverse of step 1)
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}
	notInitialized := ComponentHealth{Healthy: false, Message: "not initialized"}

	// Check database
	if c.conn != nil {
		if err := c.conn.Ping(); err != nil {
			set("database", ComponentHealth{Healthy: false, Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true})
		}
	} else {
		set("database", notInitialized)
	}

	// Check workers
	if c.workers != nil {
		set("workers", ComponentHealth{
			Healthy: c.workers.IsRunning() || c.workers.GetWorkerCount() == 0,
			Message: fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()),
		})
	} else {
		set("workers", notInitialized)
	}

	// Check dispatcher
	if c.dispatcher != nil {
		set("dispatcher", ComponentHealth{Healthy: true})
	} else {
		set("dispatcher", notInitialized)
	}

	// Check realtime hub
	if c.realtime != nil {
		set("realtime", ComponentHealth{
			Healthy: true,
			Message: fmt.Sprintf("dropped messages: %d", c.realtime.Hub.Dropped()),
		})
	} else {
		set("realtime", notInitialized)
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.conn = dbBundle.Conn
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(dbBundle, c.logger)
	if err != nil {
		c.conn.Close()
		return err
	}

	c.repositories = repos
	return nil
}

// initExternal initializes the OCR extractor, the alerter and object storage.
func (c *Container) initExternal() error {
	external, err := ProvideExternal(&c.config.OCR, &c.config.Lark, c.logger)
	if err != nil {
		return err
	}
	c.external = external

	bucket, err := ProvideStorage(&c.config.Storage, c.logger)
	if err != nil {
		return err
	}
	c.storage = bucket
	return nil
}

// initDispatcherAndRealtime initializes the event dispatcher and the realtime hub.
func (c *Container) initDispatcherAndRealtime() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	rt, err := ProvideRealtime(c.repositories, &c.config.Session, c.logger)
	if err != nil {
		return err
	}
	c.realtime = rt
	return nil
}

// initServices initializes the workflow engine and all application services.
func (c *Container) initServices() error {
	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Storage:    c.storage,
		External:   c.external,
		Hub:        c.realtime.Hub,
		Dispatcher: c.dispatcher,
		Config:     c.config,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}

	c.services = services
	return nil
}

// initServer wires the HTTP and websocket adapters to the services.
func (c *Container) initServer() {
	ws := websocket.NewHandler(
		c.realtime.Sessions,
		websocket.Config{AllowedOrigins: c.config.Server.AllowedOrigins},
		c.logger.Named("websocket"),
		websocket.WithSnapshots(c.realtime.Cache),
	)

	c.server = httpapi.NewServer(httpapi.ServerConfig{
		Host:           c.config.Server.Host,
		Port:           c.config.Server.Port,
		ReadTimeout:    c.config.Server.ReadTimeout,
		WriteTimeout:   c.config.Server.WriteTimeout,
		MaxUploadBytes: c.config.Server.MaxUploadBytes,
		CallbackToken:  c.config.Server.CallbackToken,
		ServiceName:    c.config.Server.ServiceName,
	}, httpapi.Dependencies{
		Tickets:  c.services.Ticket,
		Review:   c.services.Review,
		Approval: c.services.Approval,
		OCR:      c.services.OCR,
		Payroll:  c.services.Payroll,
		Sessions: c.realtime.Sessions,
		Lookup:   c.repositories.Ticket,
		Files:    c.storage,
		Live:     c.realtime.Cache,
		Realtime: ws,
	}, &zapLoggerAdapter{logger: c.logger.Named("http")})
}

// initWorkers initializes and starts all background workers using providers.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Repos:     c.repositories,
		Realtime:  c.realtime,
		WorkerCfg: &c.config.Worker,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}
	c.workers = workers

	if err := c.workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Extractor returns the configured OCR extractor.
func (c *Container) Extractor() port.OCRExtractor {
	return c.external.Extractor
}

// Alerter returns the configured alert sink.
func (c *Container) Alerter() port.Alerter {
	return c.external.Alerter
}

// Storage returns the ticket image bucket.
func (c *Container) Storage() *storage.BucketStorage {
	return c.storage
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Sessions returns the session provider.
func (c *Container) Sessions() *session.Provider {
	return c.realtime.Sessions
}

// TicketCache returns the broadcast-fed ticket list cache.
func (c *Container) TicketCache() *ticketcache.Cache {
	return c.realtime.Cache
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Server returns the HTTP server. It is built by Start but not listening.
func (c *Container) Server() *httpapi.Server {
	return c.server
}

// Workers returns the worker manager.
func (c *Container) Workers() *worker.WorkerManager {
	return c.workers
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the key/value Logger interfaces
// used by services, the dispatcher, the hub and the HTTP adapter.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
