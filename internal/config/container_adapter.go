package config

import (
	"github.com/garyjia/ticket-workflow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			BusyTimeout:     c.Database.BusyTimeout,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Storage: container.StorageConfig{
			BaseDir:    c.Storage.BaseDir,
			Bucket:     c.Storage.Bucket,
			PublicURL:  c.Storage.PublicURL,
			SigningKey: c.Storage.SigningKey,
			URLTTL:     c.Storage.URLTTL,
		},
		OCR: container.OCRConfig{
			Provider:          c.OCR.Provider,
			FunctionURL:       c.OCR.Function.URL,
			FunctionToken:     c.OCR.Function.Token,
			FunctionTimeout:   c.OCR.Function.Timeout,
			OpenAIAPIKey:      c.OCR.OpenAI.APIKey,
			OpenAIBaseURL:     c.OCR.OpenAI.BaseURL,
			OpenAIModel:       c.OCR.OpenAI.Model,
			OpenAIMaxPages:    c.OCR.OpenAI.MaxPages,
			OpenAITimeout:     c.OCR.OpenAI.Timeout,
			OpenAIPromptsPath: c.OCR.OpenAI.PromptsPath,
		},
		Lark: container.LarkConfig{
			AppID:       c.Lark.AppID,
			AppSecret:   c.Lark.AppSecret,
			AlertChatID: c.Lark.AlertChatID,
			BaseURL:     c.Lark.BaseURL,
		},
		Server: container.ServerConfig{
			Host:           c.Server.Host,
			Port:           c.Server.Port,
			ReadTimeout:    c.Server.ReadTimeout,
			WriteTimeout:   c.Server.WriteTimeout,
			MaxUploadBytes: c.Server.MaxUploadMB << 20,
			CallbackToken:  c.Server.CallbackToken,
			AllowedOrigins: c.Server.AllowedOrigins,
			ServiceName:    c.Telemetry.ServiceName,
		},
		PayWeek: container.PayWeekConfig{
			Timezone: c.PayWeek.Timezone,
		},
		Approval: container.ApprovalConfig{
			MaxAttempts:  c.Approval.MaxAttempts,
			RetryBackoff: c.Approval.RetryBackoff,
		},
		Session: container.SessionConfig{
			TTL: c.Session.TTL,
		},
		Worker: container.WorkerConfig{
			CacheRefreshInterval: c.Worker.CacheRefreshInterval,
			SessionPurgeInterval: c.Worker.SessionPurgeInterval,
		},
	}
}
