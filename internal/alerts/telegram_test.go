package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pm-trade-bot/internal/config"

	"go.uber.org/zap"
)

func newTestSender(t *testing.T, handler http.HandlerFunc) *Telegram {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := config.TelegramConfig{Enabled: true, Token: "token", ChatID: "123"}
	return newTelegram(cfg, zap.NewNop(), server.URL, server.Client())
}

func TestSendDisabledIsNoop(t *testing.T) {
	sender := newTelegram(config.TelegramConfig{}, zap.NewNop(), "http://unused", nil)
	if err := sender.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("disabled sender returned error: %v", err)
	}
}

func TestSendRequiresCredentials(t *testing.T) {
	sender := newTelegram(config.TelegramConfig{Enabled: true}, zap.NewNop(), "http://unused", nil)
	if err := sender.Send(context.Background(), "hello"); err == nil {
		t.Fatalf("expected error for missing token/chat_id")
	}
}

func TestSendPostsToBotEndpoint(t *testing.T) {
	var gotPath string
	var gotReq sendMessageRequest
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(sendMessageResponse{OK: true})
	})

	if err := sender.Send(context.Background(), "daily report"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/bottoken/sendMessage" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotReq.ChatID != "123" || gotReq.Text != "daily report" {
		t.Fatalf("payload = %+v", gotReq)
	}
}

func TestSendSurfacesAPIRejection(t *testing.T) {
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sendMessageResponse{OK: false, Description: "chat not found"})
	})

	err := sender.Send(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected api rejection, got %v", err)
	}
}

func TestSendSurfacesHTTPError(t *testing.T) {
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	})

	err := sender.Send(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "http 401") {
		t.Fatalf("expected http error, got %v", err)
	}
}

func TestKillSwitchAlertBody(t *testing.T) {
	var gotText string
	sender := newTestSender(t, func(w http.ResponseWriter, r *http.Request) {
		var req sendMessageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotText = req.Text
		json.NewEncoder(w).Encode(sendMessageResponse{OK: true})
	})

	sender.KillSwitch(context.Background(), -612.40, 500)
	if !strings.Contains(gotText, "KILL SWITCH") || !strings.Contains(gotText, "-612.40") {
		t.Fatalf("unexpected alert text %q", gotText)
	}
}
