// Package lark sends operator alerts to a Lark group chat.
package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/ticket-workflow/internal/application/port"
)

const receiveIDTypeChat = "chat_id"

// Config holds Lark client configuration
type Config struct {
	AppID       string
	AppSecret   string
	AlertChatID string
	// BaseURL overrides the Open API domain, e.g. https://open.larksuite.com
	BaseURL string
}

// Enabled reports whether alerts can be delivered
func (c Config) Enabled() bool {
	return c.AppID != "" && c.AppSecret != "" && c.AlertChatID != ""
}

// Alerter implements port.Alerter with Lark IM text messages
type Alerter struct {
	client *lark.Client
	chatID string
	logger *zap.Logger
}

// NewAlerter creates a new Lark alerter
func NewAlerter(cfg Config, logger *zap.Logger) *Alerter {
	opts := []lark.ClientOptionFunc{
		lark.WithLogLevel(larkcore.LogLevelInfo),
		lark.WithEnableTokenCache(true),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, lark.WithOpenBaseUrl(cfg.BaseURL))
	}

	return &Alerter{
		client: lark.NewClient(cfg.AppID, cfg.AppSecret, opts...),
		chatID: cfg.AlertChatID,
		logger: logger,
	}
}

// Alert posts a message naming the ticket and the failing step
func (a *Alerter) Alert(ctx context.Context, alert port.Alert) error {
	content, err := textContent(FormatAlert(alert))
	if err != nil {
		return err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDTypeChat).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(a.chatID).
			MsgType("text").
			Content(content).
			Build()).
		Build()

	resp, err := a.client.Im.Message.Create(ctx, req)
	if err != nil {
		a.logger.Error("Failed to send alert",
			zap.String("ticket_id", alert.TicketID),
			zap.Error(err))
		return fmt.Errorf("failed to send alert: %w", err)
	}

	if !resp.Success() {
		a.logger.Error("API returned failure",
			zap.String("ticket_id", alert.TicketID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}
	a.logger.Info("Alert sent",
		zap.String("message_id", messageID),
		zap.String("ticket_id", alert.TicketID),
		zap.String("step", alert.Step))
	return nil
}

// FormatAlert renders the alert body
func FormatAlert(alert port.Alert) string {
	var b strings.Builder
	b.WriteString("Ticket approval failed\n")

	ticket := alert.TicketID
	if alert.TicketNumber != "" {
		ticket = alert.TicketNumber + " (" + alert.TicketID + ")"
	}
	fmt.Fprintf(&b, "Ticket: %s\n", ticket)
	fmt.Fprintf(&b, "Step: %s\n", alert.Step)
	if alert.Attempts > 0 {
		fmt.Fprintf(&b, "Attempts: %d\n", alert.Attempts)
	}
	if alert.Err != nil {
		fmt.Fprintf(&b, "Error: %s", alert.Err.Error())
	}
	return strings.TrimRight(b.String(), "\n")
}

func textContent(text string) (string, error) {
	b, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal message content: %w", err)
	}
	return string(b), nil
}

// LogAlerter records alerts in the log when Lark is not configured
type LogAlerter struct {
	logger *zap.Logger
}

// NewLogAlerter creates an alerter that only logs
func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

// Alert logs the alert at error level
func (a *LogAlerter) Alert(_ context.Context, alert port.Alert) error {
	if alert.Err == nil {
		alert.Err = errors.New("unknown error")
	}
	a.logger.Error("Ticket approval failed",
		zap.String("ticket_id", alert.TicketID),
		zap.String("ticket_number", alert.TicketNumber),
		zap.String("step", alert.Step),
		zap.Int("attempts", alert.Attempts),
		zap.Error(alert.Err))
	return nil
}

// Verify interface compliance
var (
	_ port.Alerter = (*Alerter)(nil)
	_ port.Alerter = (*LogAlerter)(nil)
)
