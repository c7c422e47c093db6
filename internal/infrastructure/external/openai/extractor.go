// Package openai runs ticket OCR through a vision-capable chat model.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gen2brain/go-fitz"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

const maxDownloadBytes = 20 << 20

// Config holds the vision extractor settings
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	MaxPages int
	Timeout  time.Duration
}

// VisionExtractor implements port.OCRExtractor with the OpenAI chat API.
// PDFs are rasterised page by page; images are sent as they are.
type VisionExtractor struct {
	client     *openai.Client
	httpClient *http.Client
	model      string
	maxPages   int
	prompts    *PromptConfig
	logger     *zap.Logger
}

// NewVisionExtractor creates a new vision extractor
func NewVisionExtractor(cfg Config, prompts *PromptConfig, logger *zap.Logger) *VisionExtractor {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4o
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}

	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.HTTPClient = httpClient
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &VisionExtractor{
		client:     openai.NewClientWithConfig(clientCfg),
		httpClient: httpClient,
		model:      cfg.Model,
		maxPages:   cfg.MaxPages,
		prompts:    prompts,
		logger:     logger,
	}
}

// Extract downloads the signed file URL and asks the model for the ticket fields
func (e *VisionExtractor) Extract(ctx context.Context, req entity.OCRRequest) (*entity.OCRResponse, error) {
	data, err := e.download(ctx, req.FileURL)
	if err != nil {
		return nil, err
	}
	return e.ExtractBytes(ctx, data, req.DriverID)
}

// ExtractBytes runs extraction on file content already in memory
func (e *VisionExtractor) ExtractBytes(ctx context.Context, data []byte, driverID string) (*entity.OCRResponse, error) {
	images, err := e.toImages(data)
	if err != nil {
		return nil, err
	}

	p := e.prompts.TicketExtraction
	userText, err := renderTemplate(p.UserTemplate, map[string]interface{}{
		"Pages":    len(images),
		"DriverID": driverID,
	})
	if err != nil {
		return nil, err
	}

	parts := []openai.ChatMessagePart{{Type: openai.ChatMessagePartTypeText, Text: userText}}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    img,
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		e.logger.Error("Vision API call failed", zap.Error(err))
		return nil, fmt.Errorf("vision API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from vision API")
	}

	out, err := parseResponse(resp.Choices[0].Message.Content)
	if err != nil {
		e.logger.Error("Failed to parse vision response",
			zap.Error(err),
			zap.String("content", resp.Choices[0].Message.Content))
		return nil, err
	}

	e.logger.Info("Ticket extracted with vision API",
		zap.Int("pages", len(images)),
		zap.Bool("recognised", out.Ticket != nil))
	return out, nil
}

func (e *VisionExtractor) download(ctx context.Context, fileURL string) ([]byte, error) {
	if fileURL == "" {
		return nil, fmt.Errorf("missing file url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download ticket image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ticket image download returned %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
}

// toImages returns data URLs: one per rendered PDF page, or the image itself.
func (e *VisionExtractor) toImages(data []byte) ([]string, error) {
	mimeType := http.DetectContentType(data)
	switch {
	case mimeType == "application/pdf":
		return e.renderPDF(data)
	case strings.HasPrefix(mimeType, "image/"):
		return []string{dataURL(mimeType, data)}, nil
	}
	return nil, fmt.Errorf("unsupported ticket file type: %s", mimeType)
}

func (e *VisionExtractor) renderPDF(data []byte) ([]string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pages := doc.NumPage()
	if pages > e.maxPages {
		pages = e.maxPages
	}

	var images []string
	for n := 0; n < pages; n++ {
		img, err := doc.Image(n)
		if err != nil {
			e.logger.Warn("Failed to render PDF page", zap.Int("page", n), zap.Error(err))
			continue
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			e.logger.Warn("Failed to encode PDF page", zap.Int("page", n), zap.Error(err))
			continue
		}
		images = append(images, dataURL("image/jpeg", buf.Bytes()))
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no renderable pages in PDF")
	}
	return images, nil
}

func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// parseResponse decodes the model's JSON, tolerating prose or code fences around it.
func parseResponse(content string) (*entity.OCRResponse, error) {
	var out entity.OCRResponse
	if err := json.Unmarshal([]byte(content), &out); err == nil {
		return &out, nil
	}
	if jsonStr := extractJSON(content); jsonStr != "" {
		if err := json.Unmarshal([]byte(jsonStr), &out); err == nil {
			return &out, nil
		}
	}
	return nil, fmt.Errorf("failed to parse vision response")
}

func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}

// Verify interface compliance
var _ port.OCRExtractor = (*VisionExtractor)(nil)
