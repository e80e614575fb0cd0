package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Sender delivers a text message to a chat-platform recipient.
type Sender interface {
	Send(ctx context.Context, recipientID, text string) error
}

// TelegramConfig holds Telegram Bot API client configuration.
type TelegramConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Telegram sends messages through the Bot API sendMessage endpoint.
type Telegram struct {
	logger  *slog.Logger
	baseURL string
	token   string
	http    *http.Client
}

// NewTelegram creates a Telegram sender.
func NewTelegram(cfg TelegramConfig, logger *slog.Logger) *Telegram {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Telegram{
		logger:  logger.With("component", "telegram"),
		baseURL: base,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers text to the given chat.
func (t *Telegram) Send(ctx context.Context, recipientID, text string) error {
	payload, err := json.Marshal(sendMessageRequest{ChatID: recipientID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal sendMessage: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	var decoded sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode sendMessage response: %w", err)
	}
	if !decoded.OK {
		return fmt.Errorf("telegram rejected message: %s", decoded.Description)
	}
	return nil
}
