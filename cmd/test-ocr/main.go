package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/garyjia/ticket-workflow/internal/application/port"
	"github.com/garyjia/ticket-workflow/internal/infrastructure/external/openai"
	"go.uber.org/zap"
)

func main() {
	// Parse command line flags
	apiKey := flag.String("key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
	model := flag.String("model", "gpt-4o", "Vision model")
	promptsFile := flag.String("prompts", "configs/prompts.yaml", "Path to prompts.yaml")
	file := flag.String("file", "", "Ticket image or PDF to extract")
	driverID := flag.String("driver", "", "Driver id passed as extraction context")
	timeout := flag.Duration("timeout", 90*time.Second, "API call timeout")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	// Initialize logger
	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Get API key from flag or environment
	if *apiKey == "" {
		*apiKey = os.Getenv("OPENAI_API_KEY")
	}

	if *apiKey == "" || *file == "" {
		fmt.Fprintf(os.Stderr, "Usage: test-ocr --file ticket.jpg [--key sk-...] [--model gpt-4o] [--timeout 90s]\n")
		os.Exit(1)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: cannot read %s: %v\n", *file, err)
		os.Exit(1)
	}

	fmt.Println("=== Ticket OCR Test ===")
	fmt.Printf("  File: %s (%d bytes)\n", *file, len(data))
	fmt.Printf("  Model: %s\n", *model)
	fmt.Printf("  Timeout: %v\n\n", *timeout)

	prompts, err := openai.LoadPrompts(*promptsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading prompts: %v\n", err)
		os.Exit(1)
	}

	extractor := openai.NewVisionExtractor(openai.Config{
		APIKey:  *apiKey,
		Model:   *model,
		Timeout: *timeout,
	}, prompts, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	startTime := time.Now()
	resp, err := extractor.ExtractBytes(ctx, data, *driverID)
	duration := time.Since(startTime)

	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: extraction failed after %v: %v\n", duration, err)
		os.Exit(1)
	}

	fmt.Printf("Response time: %v\n\n", duration)

	jsonBytes, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(jsonBytes))

	if resp.Ticket == nil || resp.Ticket.TicketNumber == "" {
		fmt.Println("\nNo ticket number recognised")
		os.Exit(2)
	}
	fmt.Println("\nExtraction OK")
}

var _ port.OCRExtractor = (*openai.VisionExtractor)(nil)
