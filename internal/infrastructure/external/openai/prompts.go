package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Prompt is one system/user prompt pair with its sampling parameters
type Prompt struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	System       string  `yaml:"system"`
	UserTemplate string  `yaml:"user_template"`
}

// PromptConfig holds the prompts used by the vision extractor
type PromptConfig struct {
	TicketExtraction Prompt `yaml:"ticket_extraction"`
}

// DefaultPrompts is used when no prompts file is configured
func DefaultPrompts() *PromptConfig {
	return &PromptConfig{
		TicketExtraction: Prompt{
			Temperature: 0.1,
			MaxTokens:   1024,
			System: "You read scale tickets and haul tickets for an aggregate trucking company. " +
				"You copy values exactly as printed and never guess. Always respond with valid JSON.",
			UserTemplate: `Extract the haul ticket fields from the attached {{.Pages}} image(s).
{{- if .DriverID}} The ticket was uploaded by driver {{.DriverID}}.{{end}}

Respond with ONLY a JSON object of this shape:
{"ticket": {"partner_name": string, "ticket_number": string, "material": string,
 "quantity": number, "unit_type": string, "driver_name_ocr": string,
 "ticket_date": "YYYY-MM-DD", "total_pay": number, "status": string}}

Omit fields you cannot read. If the image is not a haul ticket respond with {"ticket": null}.`,
		},
	}
}

// LoadPrompts loads prompt configuration from YAML file. Missing prompts fall back to defaults.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	prompts := DefaultPrompts()
	if promptsPath == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	if err := yaml.Unmarshal(data, prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}
	return prompts, nil
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
