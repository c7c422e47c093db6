package container

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/ticket-workflow/internal/application/dispatcher"
	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/application/realtime"
	"github.com/garyjia/ticket-workflow/internal/application/service"
	"github.com/garyjia/ticket-workflow/internal/application/session"
	"github.com/garyjia/ticket-workflow/internal/application/ticketcache"
	"github.com/garyjia/ticket-workflow/internal/application/workflow"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
	"github.com/garyjia/ticket-workflow/internal/domain/event"
	"github.com/garyjia/ticket-workflow/internal/domain/payweek"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/export"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/external/lark"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/external/ocrfunc"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/external/openai"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/storage"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/worker"
	"github.com/garyjia/ticket-workflow/pkg/database"
	"go.uber.org/zap"
)

// ErrOCRDisabled is returned by the extractor when no OCR provider is configured
var ErrOCRDisabled = errors.New("ocr provider is not configured")

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// ExternalBundle holds the outbound integrations.
type ExternalBundle struct {
	Extractor port.OCRExtractor
	Alerter   port.Alerter
}

// RealtimeBundle holds the in-process broadcast components.
type RealtimeBundle struct {
	Hub      *realtime.Hub
	Sessions *session.Provider
	Cache    *ticketcache.Cache
	detach   func()
}

// ProvideDatabase opens the ticket store and runs pending migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.MigrationsDir != "" {
		migrator := database.NewMigrator(conn, logger)
		if err := migrator.RunMigrations(cfg.MigrationsDir); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories on top of the transaction manager.
func ProvideRepositories(db *DatabaseBundle, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil || db.TransactionMgr == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Ticket:    repository.NewTicketRepository(db.TransactionMgr, logger),
		History:   repository.NewHistoryRepository(db.TransactionMgr, logger),
		DriverPay: repository.NewDriverPayRepository(db.TransactionMgr, logger),
		Load:      repository.NewLoadRepository(db.TransactionMgr, logger),
		Session:   repository.NewSessionRepository(db.TransactionMgr, logger),
		Reference: repository.NewReferenceRepository(db.Conn.DB, logger),
	}, nil
}

// ProvideStorage creates the signed-URL ticket bucket.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (*storage.BucketStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	if cfg.SigningKey == "" {
		return nil, fmt.Errorf("storage signing key is required")
	}
	return storage.NewBucketStorage(cfg.BaseDir, cfg.Bucket, cfg.PublicURL, []byte(cfg.SigningKey), logger), nil
}

// ProvideExternal selects the OCR extractor and the alert sink.
func ProvideExternal(ocrCfg *OCRConfig, larkCfg *LarkConfig, logger *zap.Logger) (*ExternalBundle, error) {
	if ocrCfg == nil || larkCfg == nil {
		return nil, fmt.Errorf("external config is required")
	}

	bundle := &ExternalBundle{}

	switch ocrCfg.Provider {
	case OCRProviderFunction:
		bundle.Extractor = ocrfunc.NewClient(ocrfunc.Config{
			URL:     ocrCfg.FunctionURL,
			Token:   ocrCfg.FunctionToken,
			Timeout: ocrCfg.FunctionTimeout,
		}, logger)
	case OCRProviderOpenAI:
		prompts, err := openai.LoadPrompts(ocrCfg.OpenAIPromptsPath)
		if err != nil {
			return nil, fmt.Errorf("load prompts: %w", err)
		}
		bundle.Extractor = openai.NewVisionExtractor(openai.Config{
			APIKey:   ocrCfg.OpenAIAPIKey,
			BaseURL:  ocrCfg.OpenAIBaseURL,
			Model:    ocrCfg.OpenAIModel,
			MaxPages: ocrCfg.OpenAIMaxPages,
			Timeout:  ocrCfg.OpenAITimeout,
		}, prompts, logger)
	default:
		logger.Warn("No OCR provider configured, uploads will report OCR failures")
		bundle.Extractor = disabledExtractor{}
	}

	alertCfg := lark.Config{
		AppID:       larkCfg.AppID,
		AppSecret:   larkCfg.AppSecret,
		AlertChatID: larkCfg.AlertChatID,
		BaseURL:     larkCfg.BaseURL,
	}
	if alertCfg.Enabled() {
		bundle.Alerter = lark.NewAlerter(alertCfg, logger)
	} else {
		bundle.Alerter = lark.NewLogAlerter(logger)
	}

	return bundle, nil
}

// ProvideDispatcher creates the event dispatcher and registers the
// event log handler.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	d := dispatcher.NewDispatcher(dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}))
	d.Subscribe(dispatcher.AnyType, "event-log", createEventLogHandler(logger))
	return d, nil
}

// ProvideRealtime creates the hub, the session provider and the ticket cache.
// Channel subscriptions are admitted only for tickets owned by the caller's organization.
func ProvideRealtime(repos *RepositoryBundle, sessionCfg *SessionConfig, logger *zap.Logger) (*RealtimeBundle, error) {
	if repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}

	authorizer := &session.ChannelAuthorizer{Tickets: repos.Ticket}
	hub := realtime.NewHub(
		realtime.WithAuthorizer(authorizer.Authorize),
		realtime.WithLogger(&zapLoggerAdapter{logger: logger.Named("realtime")}),
	)

	cache := ticketcache.New()

	return &RealtimeBundle{
		Hub:      hub,
		Sessions: session.NewProvider(repos.Session, hub, sessionCfg.TTL),
		Cache:    cache,
		detach:   cache.Attach(hub),
	}, nil
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Storage    *storage.BucketStorage
	External   *ExternalBundle
	Hub        *realtime.Hub
	Dispatcher dispatcher.Dispatcher
	Config     *Config
	Logger     *zap.Logger
}

// ProvideServices creates the workflow engine and all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil || deps.TxManager == nil || deps.External == nil || deps.Hub == nil {
		return nil, fmt.Errorf("repositories, transaction manager, external clients and hub are required")
	}

	gate, err := payweek.NewGate(deps.Config.PayWeek.Timezone)
	if err != nil {
		return nil, fmt.Errorf("pay week gate: %w", err)
	}

	engine := workflow.NewEngine(
		deps.Repos.Ticket,
		deps.Repos.History,
		deps.TxManager,
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithBroadcaster(deps.Hub),
	)

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	ocr := service.NewOCRService(
		deps.Repos.Ticket,
		deps.TxManager,
		deps.Storage,
		deps.External.Extractor,
		engine,
		deps.Hub,
		deps.Dispatcher,
		deps.Config.Storage.URLTTL,
		serviceLogger,
	)

	retry := service.RetryPolicy{
		MaxAttempts: deps.Config.Approval.MaxAttempts,
		Backoff:     deps.Config.Approval.RetryBackoff,
		Transient:   sqlite.IsTransient,
	}

	return &ServiceBundle{
		Engine: engine,
		Gate:   gate,
		OCR:    ocr,
		Ticket: service.NewTicketService(
			deps.Repos.Ticket,
			deps.Repos.History,
			deps.TxManager,
			deps.Storage,
			ocr,
			engine,
			gate,
			deps.Dispatcher,
			serviceLogger,
		),
		Review: service.NewReviewService(
			deps.Repos.Ticket,
			deps.Repos.History,
			deps.Repos.Reference,
			deps.TxManager,
			deps.Hub,
			deps.Dispatcher,
			serviceLogger,
		),
		Approval: service.NewApprovalService(
			deps.Repos.Ticket,
			deps.Repos.DriverPay,
			deps.Repos.Load,
			deps.TxManager,
			engine,
			deps.Hub,
			deps.External.Alerter,
			deps.Dispatcher,
			retry,
			serviceLogger,
		),
		Payroll: service.NewPayrollService(
			deps.Repos.Ticket,
			deps.Repos.DriverPay,
			deps.Repos.Reference,
			export.NewXLSXWriter(deps.Logger),
			gate,
			serviceLogger,
		),
	}, nil
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Repos     *RepositoryBundle
	Realtime  *RealtimeBundle
	WorkerCfg *WorkerConfig
	Logger    *zap.Logger
}

// ProvideWorkers creates the worker manager with the cache refresher and
// the session purger. Workers are registered but not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil || deps.Repos == nil || deps.Realtime == nil || deps.WorkerCfg == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}

	manager := worker.NewWorkerManager(deps.Logger)

	if deps.WorkerCfg.CacheRefreshInterval > 0 {
		manager.Register(worker.NewCacheRefresher(
			deps.Repos.Ticket,
			deps.Realtime.Cache,
			deps.WorkerCfg.CacheRefreshInterval,
			deps.Logger,
		))
	}
	if deps.WorkerCfg.SessionPurgeInterval > 0 {
		manager.Register(worker.NewSessionPurger(
			deps.Realtime.Sessions,
			deps.WorkerCfg.SessionPurgeInterval,
			deps.Logger,
		))
	}

	return manager, nil
}

// createEventLogHandler records every domain event at info level.
func createEventLogHandler(logger *zap.Logger) dispatcher.Handler {
	return func(ctx context.Context, evt *event.Event) error {
		if evt == nil {
			return fmt.Errorf("event cannot be nil")
		}
		logger.Info("Domain event",
			zap.String("event_id", evt.ID),
			zap.String("type", string(evt.Type)),
			zap.String("ticket_id", evt.TicketID),
			zap.String("organization_id", evt.OrganizationID))
		return nil
	}
}

type disabledExtractor struct{}

func (disabledExtractor) Extract(context.Context, entity.OCRRequest) (*entity.OCRResponse, error) {
	return nil, ErrOCRDisabled
}
