package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("STORAGE_SIGNING_KEY", "0123456789abcdef0123")
	t.Setenv("OCR_FUNCTION_URL", "https://ocr.example.com/extract")
	t.Setenv("OCR_FUNCTION_TOKEN", "fn-token")

	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, int64(20), cfg.Server.MaxUploadMB)
	assert.Equal(t, "https://ocr.example.com/extract", cfg.OCR.Function.URL)
	assert.Equal(t, "fn-token", cfg.OCR.Function.Token)
	assert.Equal(t, OCRProviderFunction, cfg.OCR.Provider)
	assert.Equal(t, "America/Chicago", cfg.PayWeek.Timezone)
	assert.Equal(t, 3, cfg.Approval.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.Approval.RetryBackoff)
	assert.Equal(t, time.Minute, cfg.Worker.CacheRefreshInterval)
	assert.Equal(t, 5*time.Second, cfg.Database.BusyTimeout)
}

func TestLoad_FileValues(t *testing.T) {
	t.Setenv("STORAGE_SIGNING_KEY", "0123456789abcdef0123")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(writeConfig(t, `
ocr:
  provider: openai
  openai:
    max_pages: 4
approval:
  max_attempts: 5
  retry_backoff: 1s
payweek:
  timezone: UTC
server:
  allowed_origins: ["https://app.example.com"]
`))
	require.NoError(t, err)

	assert.Equal(t, OCRProviderOpenAI, cfg.OCR.Provider)
	assert.Equal(t, "sk-test", cfg.OCR.OpenAI.APIKey)
	assert.Equal(t, 4, cfg.OCR.OpenAI.MaxPages)
	assert.Equal(t, 5, cfg.Approval.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Approval.RetryBackoff)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Path: "data/tickets.db"},
		Storage:  StorageConfig{SigningKey: "0123456789abcdef", PublicURL: "http://localhost:8080"},
		OCR:      OCRConfig{Provider: OCRProviderNone},
		PayWeek:  PayWeekConfig{Timezone: "America/Chicago"},
		Approval: ApprovalConfig{MaxAttempts: 1},
		Worker:   WorkerConfig{CacheRefreshInterval: time.Minute},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"short signing key", func(c *Config) { c.Storage.SigningKey = "short" }, "storage.signing_key"},
		{"function without url", func(c *Config) { c.OCR.Provider = OCRProviderFunction }, "ocr.function.url"},
		{"openai without key", func(c *Config) { c.OCR.Provider = OCRProviderOpenAI }, "ocr.openai.api_key"},
		{"unknown provider", func(c *Config) { c.OCR.Provider = "tesseract" }, "ocr.provider"},
		{"partial lark", func(c *Config) { c.Lark.AppID = "cli_1" }, "lark.app_id"},
		{"bad timezone", func(c *Config) { c.PayWeek.Timezone = "Mars/Olympus" }, "payweek.timezone"},
		{"zero attempts", func(c *Config) { c.Approval.MaxAttempts = 0 }, "approval.max_attempts"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, LoadEnvFile(""))
	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TICKET_WORKFLOW_TEST_KEY=from-file\n"), 0o644))
	t.Setenv("TICKET_WORKFLOW_TEST_KEY", "")
	require.NoError(t, os.Unsetenv("TICKET_WORKFLOW_TEST_KEY"))

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("TICKET_WORKFLOW_TEST_KEY"))
}

func TestToContainerConfig(t *testing.T) {
	c := validConfig()
	c.Server.MaxUploadMB = 8
	c.Storage.BaseDir = "data/storage"
	c.Server.CallbackToken = "cb"
	c.OCR = OCRConfig{
		Provider: OCRProviderOpenAI,
		OpenAI:   OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o-mini", MaxPages: 2},
	}
	c.Lark = LarkConfig{AppID: "cli_1", AppSecret: "secret", AlertChatID: "oc_1"}
	c.Telemetry.ServiceName = "tickets"

	cc := c.ToContainerConfig()

	assert.Equal(t, int64(8<<20), cc.Server.MaxUploadBytes)
	assert.Equal(t, "cb", cc.Server.CallbackToken)
	assert.Equal(t, "tickets", cc.Server.ServiceName)
	assert.Equal(t, "openai", cc.OCR.Provider)
	assert.Equal(t, "gpt-4o-mini", cc.OCR.OpenAIModel)
	assert.Equal(t, "oc_1", cc.Lark.AlertChatID)
	assert.Equal(t, "America/Chicago", cc.PayWeek.Timezone)
	assert.NoError(t, cc.Validate())
}
