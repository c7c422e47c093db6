// Package container provides dependency injection and lifecycle management
// for the ticket workflow service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// OCR providers
const (
	OCRProviderFunction = "function"
	OCRProviderOpenAI   = "openai"
	OCRProviderNone     = "none"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Storage configuration for ticket images
	Storage StorageConfig

	// OCR extractor configuration
	OCR OCRConfig

	// Lark alert configuration
	Lark LarkConfig

	// Server configuration
	Server ServerConfig

	// PayWeek holds the canonical business timezone
	PayWeek PayWeekConfig

	// Approval retry configuration
	Approval ApprovalConfig

	// Session configuration
	Session SessionConfig

	// Worker configuration
	Worker WorkerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// BusyTimeout is how long a writer waits for the database lock
	BusyTimeout time.Duration

	// MigrationsDir is the path to migration files
	MigrationsDir string
}

// StorageConfig holds ticket image storage settings.
type StorageConfig struct {
	// BaseDir is the local root the bucket lives under
	BaseDir string

	// Bucket name, "tickets" by default
	Bucket string

	// PublicURL is the externally reachable prefix for signed URLs
	PublicURL string

	// SigningKey signs time-limited image URLs
	SigningKey string

	// URLTTL is the lifetime of a signed URL
	URLTTL time.Duration
}

// OCRConfig selects the ticket extractor.
type OCRConfig struct {
	// Provider is one of function, openai or none
	Provider string

	// Function endpoint settings
	FunctionURL     string
	FunctionToken   string
	FunctionTimeout time.Duration

	// OpenAI vision settings
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAIMaxPages    int
	OpenAITimeout     time.Duration
	OpenAIPromptsPath string
}

// LarkConfig holds Lark alert settings. Alerts are logged when AppID is empty.
type LarkConfig struct {
	AppID       string
	AppSecret   string
	AlertChatID string
	BaseURL     string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration

	// MaxUploadBytes caps multipart ticket uploads
	MaxUploadBytes int64

	// CallbackToken authenticates the OCR callback
	CallbackToken string

	// AllowedOrigins for websocket upgrades
	AllowedOrigins []string

	// ServiceName names the otelhttp server span
	ServiceName string
}

// PayWeekConfig holds the pay-week clock settings.
type PayWeekConfig struct {
	Timezone string
}

// ApprovalConfig holds the approval retry policy.
type ApprovalConfig struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

// SessionConfig holds API session settings.
type SessionConfig struct {
	TTL time.Duration
}

// WorkerConfig holds background worker settings.
type WorkerConfig struct {
	// CacheRefreshInterval reloads the ticket list cache from the store
	CacheRefreshInterval time.Duration

	// SessionPurgeInterval deletes expired sessions
	SessionPurgeInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/tickets.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			BusyTimeout:     5 * time.Second,
			MigrationsDir:   "migrations",
		},
		Storage: StorageConfig{
			BaseDir:   "data/storage",
			Bucket:    "tickets",
			PublicURL: "http://localhost:8080",
			URLTTL:    15 * time.Minute,
		},
		OCR: OCRConfig{
			Provider:        OCRProviderNone,
			FunctionTimeout: 60 * time.Second,
			OpenAIModel:     "gpt-4o",
			OpenAIMaxPages:  3,
			OpenAITimeout:   60 * time.Second,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxUploadBytes: 20 << 20,
			ServiceName:    "ticket-workflow",
		},
		PayWeek: PayWeekConfig{
			Timezone: "America/Chicago",
		},
		Approval: ApprovalConfig{
			MaxAttempts:  3,
			RetryBackoff: 100 * time.Millisecond,
		},
		Session: SessionConfig{
			TTL: 12 * time.Hour,
		},
		Worker: WorkerConfig{
			CacheRefreshInterval: 5 * time.Minute,
			SessionPurgeInterval: time.Hour,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Storage.SigningKey == "" {
		return fmt.Errorf("storage.signing_key is required")
	}

	switch c.OCR.Provider {
	case OCRProviderFunction:
		if c.OCR.FunctionURL == "" {
			return fmt.Errorf("ocr.function.url is required")
		}
	case OCRProviderOpenAI:
		if c.OCR.OpenAIAPIKey == "" {
			return fmt.Errorf("ocr.openai.api_key is required")
		}
	case OCRProviderNone, "":
	default:
		return fmt.Errorf("unknown ocr.provider %q", c.OCR.Provider)
	}

	if c.Lark.AppID != "" && c.Lark.AlertChatID == "" {
		return fmt.Errorf("lark.alert_chat_id is required when lark.app_id is set")
	}

	return nil
}
