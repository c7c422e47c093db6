// Package ocrfunc calls the hosted OCR function over HTTP.
package ocrfunc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

// ErrNotConfigured is returned when no function URL is set
var ErrNotConfigured = errors.New("ocr function url is not configured")

// Config holds the OCR function endpoint
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Client posts {kind, file_url, driverId} and decodes {ticket: {...}}
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new OCR function client
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Extract implements port.OCRExtractor
func (c *Client) Extract(ctx context.Context, req entity.OCRRequest) (*entity.OCRResponse, error) {
	if c.cfg.URL == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ocr request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build ocr request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ocr function request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read ocr response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("OCR function returned error status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(raw, 512)))
		return nil, fmt.Errorf("ocr function returned %d", resp.StatusCode)
	}

	var out entity.OCRResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("failed to decode ocr response: %w", err)
		}
	}

	c.logger.Info("OCR function completed",
		zap.String("kind", req.Kind),
		zap.Bool("recognised", out.Ticket != nil),
		zap.Duration("duration", time.Since(start)))
	return &out, nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}

// Verify interface compliance
var _ port.OCRExtractor = (*Client)(nil)
