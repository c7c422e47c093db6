package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/ticket-workflow/internal/domain/entity"
)

func pngBytes(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

func chatResponse(content string) string {
	b, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1718200000,
		"model":   "gpt-4o",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]string{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func TestVisionExtractor_Extract(t *testing.T) {
	img := pngBytes(t)
	var prompt string

	mux := http.NewServeMux()
	mux.HandleFunc("/files/scan.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(img)
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		prompt = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponse(`{"ticket":{"partner_name":"Acme","quantity":22.4,"ticket_date":"2024-06-12"}}`)))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := NewVisionExtractor(Config{APIKey: "test", BaseURL: srv.URL + "/v1"}, nil, zap.NewNop())
	resp, err := e.Extract(context.Background(), entity.OCRRequest{Kind: "ticket", FileURL: srv.URL + "/files/scan.png", DriverID: "drv-7"})
	require.NoError(t, err)

	require.NotNil(t, resp.Ticket)
	assert.Equal(t, "Acme", resp.Ticket.PartnerName)
	assert.Equal(t, 22.4, *resp.Ticket.Quantity)
	assert.Contains(t, prompt, "data:image/png;base64,")
	assert.Contains(t, prompt, "driver drv-7")
}

func TestVisionExtractor_RejectsUnknownFiles(t *testing.T) {
	e := NewVisionExtractor(Config{APIKey: "test"}, nil, zap.NewNop())
	_, err := e.ExtractBytes(context.Background(), []byte("plain text, not a ticket"), "")
	assert.ErrorContains(t, err, "unsupported")
}

func TestParseResponse(t *testing.T) {
	out, err := parseResponse("Here you go:\n```json\n{\"ticket\": {\"material\": \"Rip Rap\"}}\n```")
	require.NoError(t, err)
	assert.Equal(t, "Rip Rap", out.Ticket.Material)

	out, err = parseResponse(`{"ticket": null}`)
	require.NoError(t, err)
	assert.Nil(t, out.Ticket)

	_, err = parseResponse("I cannot read this image.")
	assert.Error(t, err)
}

func TestLoadPrompts(t *testing.T) {
	p, err := LoadPrompts("")
	require.NoError(t, err)
	assert.NotEmpty(t, p.TicketExtraction.UserTemplate)

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ticket_extraction:\n  temperature: 0.3\n  system: custom\n"), 0o644))

	p, err = LoadPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, float32(0.3), p.TicketExtraction.Temperature)
	assert.Equal(t, "custom", p.TicketExtraction.System)
	assert.True(t, strings.Contains(p.TicketExtraction.UserTemplate, "haul ticket"))

	_, err = LoadPrompts(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
