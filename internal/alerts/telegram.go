// Package alerts pushes operator notifications over Telegram. Delivery is
// best-effort: the trading loop never blocks on or fails because of an alert.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pm-trade-bot/internal/config"

	"go.uber.org/zap"
)

const telegramBaseURL = "https://api.telegram.org"

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

type Telegram struct {
	enabled bool
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

func NewTelegram(cfg config.TelegramConfig, log *zap.Logger) *Telegram {
	return newTelegram(cfg, log, telegramBaseURL, &http.Client{Timeout: 10 * time.Second})
}

func newTelegram(cfg config.TelegramConfig, log *zap.Logger, baseURL string, client *http.Client) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Telegram{
		enabled: cfg.Enabled,
		token:   strings.TrimSpace(cfg.Token),
		chatID:  strings.TrimSpace(cfg.ChatID),
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log,
	}
}

// Send delivers a single message. Disabled senders accept and drop silently
// so callers never need an enabled check.
func (t *Telegram) Send(ctx context.Context, message string) error {
	if !t.enabled {
		return nil
	}
	if t.token == "" || t.chatID == "" {
		return errors.New("telegram token and chat_id are required")
	}
	if strings.TrimSpace(message) == "" {
		return errors.New("telegram message is empty")
	}
	body, err := json.Marshal(sendMessageRequest{ChatID: t.chatID, Text: message})
	if err != nil {
		return err
	}
	url := t.baseURL + "/bot" + t.token + "/sendMessage"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkSendResponse(resp)
}

func checkSendResponse(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("telegram send failed: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var result sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// 2xx with an undecodable body still counts as delivered.
		return nil
	}
	if !result.OK {
		desc := strings.TrimSpace(result.Description)
		if desc == "" {
			desc = "unknown telegram error"
		}
		return fmt.Errorf("telegram send failed: %s", desc)
	}
	return nil
}

// KillSwitch notifies that trading has halted on a daily-loss breach.
// Delivery failure is logged, never propagated.
func (t *Telegram) KillSwitch(ctx context.Context, dailyPnL, maxLoss float64) {
	msg := fmt.Sprintf("KILL SWITCH: trading halted, daily PnL $%.2f breached limit $%.2f", dailyPnL, maxLoss)
	if err := t.Send(ctx, msg); err != nil && t.log != nil {
		t.log.Warn("telegram kill switch alert failed", zap.Error(err))
	}
}

// OrderPlaced notifies about a newly placed order.
func (t *Telegram) OrderPlaced(ctx context.Context, strategy, ticker string, action string, price, quantity int) {
	msg := fmt.Sprintf("%s: %s %d @ %d¢ on %s", strategy, action, quantity, price, ticker)
	if err := t.Send(ctx, msg); err != nil && t.log != nil {
		t.log.Warn("telegram order alert failed", zap.Error(err))
	}
}
