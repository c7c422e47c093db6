package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/garyjia/ticket-workflow/internal/config"
	"github.com/garyjia/ticket-workflow/internal/container"
	"github.com/garyjia/ticket-workflow/internal/telemetry"
	"github.com/garyjia/ticket-workflow/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config.yaml")
	envFile := flag.String("env", ".env", "Optional KEY=VALUE file loaded before the config")
	issueSession := flag.String("issue-session", "", "Issue an API session as user:organization:role, print the token and exit")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    cfg.Telemetry.ServiceName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
	}, logger)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("Failed to flush traces", zap.Error(err))
		}
	}()

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	if err := c.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown reported errors", zap.Error(err))
		}
	}()

	if *issueSession != "" {
		if err := printSession(ctx, c, *issueSession); err != nil {
			logger.Error("Failed to issue session", zap.Error(err))
		}
		return
	}

	logger.Info("Starting ticket workflow service",
		zap.String("address", c.Server().Address()),
		zap.String("ocr_provider", cfg.OCR.Provider))

	// Start blocks until ctx is cancelled by a signal
	if err := c.Server().Start(ctx); err != nil {
		logger.Error("HTTP server stopped with error", zap.Error(err))
	}

	logger.Info("Server exited")
}

// printSession issues a session for operators and API clients without a login flow.
func printSession(ctx context.Context, c *container.Container, spec string) error {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return fmt.Errorf("expected user:organization:role, got %q", spec)
	}

	s, err := c.Sessions().Issue(ctx, parts[0], parts[1], parts[2])
	if err != nil {
		return err
	}

	fmt.Printf("token=%s expires_at=%s\n", s.Token, s.ExpiresAt.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}
