package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/garyjia/ticket-workflow/pkg/utils"
)

// OCR providers
const (
	OCRProviderFunction = "function"
	OCRProviderOpenAI   = "openai"
	OCRProviderNone     = "none"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Lark      LarkConfig      `mapstructure:"lark"`
	PayWeek   PayWeekConfig   `mapstructure:"payweek"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Session   SessionConfig   `mapstructure:"session"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadMB    int64         `mapstructure:"max_upload_mb"`
	CallbackToken  string        `mapstructure:"callback_token"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// StorageConfig holds ticket image storage configuration
type StorageConfig struct {
	BaseDir    string        `mapstructure:"base_dir"`
	Bucket     string        `mapstructure:"bucket"`
	PublicURL  string        `mapstructure:"public_url"`
	SigningKey string        `mapstructure:"signing_key"`
	URLTTL     time.Duration `mapstructure:"url_ttl"`
}

// OCRConfig selects and configures the ticket extractor
type OCRConfig struct {
	Provider string            `mapstructure:"provider"`
	Function OCRFunctionConfig `mapstructure:"function"`
	OpenAI   OpenAIConfig      `mapstructure:"openai"`
}

// OCRFunctionConfig holds the hosted OCR function endpoint
type OCRFunctionConfig struct {
	URL     string        `mapstructure:"url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxPages    int           `mapstructure:"max_pages"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PromptsPath string        `mapstructure:"prompts_path"`
}

// LarkConfig holds Lark alerting configuration. Alerts go to the log when unset.
type LarkConfig struct {
	AppID       string `mapstructure:"app_id"`
	AppSecret   string `mapstructure:"app_secret"`
	AlertChatID string `mapstructure:"alert_chat_id"`
	BaseURL     string `mapstructure:"base_url"`
}

// PayWeekConfig holds the canonical pay-week clock
type PayWeekConfig struct {
	Timezone string `mapstructure:"timezone"`
}

// ApprovalConfig holds the approval retry policy
type ApprovalConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// SessionConfig holds API session settings
type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// WorkerConfig holds background worker intervals
type WorkerConfig struct {
	CacheRefreshInterval time.Duration `mapstructure:"cache_refresh_interval"`
	SessionPurgeInterval time.Duration `mapstructure:"session_purge_interval"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry exporter settings. An empty endpoint disables tracing.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	Endpoint    string `mapstructure:"endpoint"`
	Insecure    bool   `mapstructure:"insecure"`
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error; variables already set are kept.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_upload_mb", 20)

	v.SetDefault("database.path", "data/tickets.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)
	v.SetDefault("database.migrations_dir", "migrations")

	v.SetDefault("storage.base_dir", "data/storage")
	v.SetDefault("storage.bucket", "tickets")
	v.SetDefault("storage.public_url", "http://localhost:8080")
	v.SetDefault("storage.url_ttl", 15*time.Minute)

	v.SetDefault("ocr.provider", OCRProviderFunction)
	v.SetDefault("ocr.function.timeout", 60*time.Second)
	v.SetDefault("ocr.openai.model", "gpt-4o")
	v.SetDefault("ocr.openai.max_pages", 2)
	v.SetDefault("ocr.openai.timeout", 90*time.Second)

	v.SetDefault("payweek.timezone", "America/Chicago")

	v.SetDefault("approval.max_attempts", 3)
	v.SetDefault("approval.retry_backoff", 200*time.Millisecond)

	v.SetDefault("session.ttl", 24*time.Hour)

	v.SetDefault("worker.cache_refresh_interval", time.Minute)
	v.SetDefault("worker.session_purge_interval", time.Hour)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("telemetry.service_name", "ticket-workflow")
	v.SetDefault("telemetry.insecure", true)
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	binds := map[string]string{
		"ocr.openai.api_key":    "OPENAI_API_KEY",
		"ocr.function.url":      "OCR_FUNCTION_URL",
		"ocr.function.token":    "OCR_FUNCTION_TOKEN",
		"server.callback_token": "OCR_CALLBACK_TOKEN",
		"storage.signing_key":   "STORAGE_SIGNING_KEY",
		"lark.app_id":           "LARK_APP_ID",
		"lark.app_secret":       "LARK_APP_SECRET",
		"lark.alert_chat_id":    "LARK_ALERT_CHAT_ID",
		"telemetry.endpoint":    "OTEL_EXPORTER_OTLP_ENDPOINT",
	}
	for key, env := range binds {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if len(c.Storage.SigningKey) < 16 {
		return fmt.Errorf("storage.signing_key must be at least 16 characters")
	}
	if err := utils.ValidateURL(c.Storage.PublicURL); err != nil {
		return fmt.Errorf("storage.public_url: %w", err)
	}

	switch c.OCR.Provider {
	case OCRProviderFunction:
		if err := utils.ValidateURL(c.OCR.Function.URL); err != nil {
			return fmt.Errorf("ocr.function.url: %w", err)
		}
	case OCRProviderOpenAI:
		if c.OCR.OpenAI.APIKey == "" {
			return fmt.Errorf("ocr.openai.api_key is required for the openai provider")
		}
	case OCRProviderNone:
	default:
		return fmt.Errorf("ocr.provider must be one of function, openai, none: %q", c.OCR.Provider)
	}

	if c.Lark.AppID != "" || c.Lark.AlertChatID != "" {
		if c.Lark.AppID == "" || c.Lark.AppSecret == "" || c.Lark.AlertChatID == "" {
			return fmt.Errorf("lark.app_id, lark.app_secret and lark.alert_chat_id must be set together")
		}
	}

	if _, err := time.LoadLocation(c.PayWeek.Timezone); err != nil {
		return fmt.Errorf("payweek.timezone: %w", err)
	}

	if c.Approval.MaxAttempts < 1 {
		return fmt.Errorf("approval.max_attempts must be at least 1")
	}
	if c.Worker.CacheRefreshInterval <= 0 {
		return fmt.Errorf("worker.cache_refresh_interval must be positive")
	}

	return nil
}
