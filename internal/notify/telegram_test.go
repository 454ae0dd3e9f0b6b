package notify_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/kanshi-dev/kanshi/internal/notify"
)

func setTelegramAPI(t *testing.T, url string) {
	t.Helper()

	origin := notify.TelegramAPIBase
	notify.TelegramAPIBase = url
	t.Cleanup(func() {
		notify.TelegramAPIBase = origin
	})
}

func TestTelegram_Send(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body map[string]string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)

		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()
	setTelegramAPI(t, server.URL)

	tg, err := notify.NewTelegram("TOKEN123", "42")
	if err != nil {
		t.Fatalf("failed to build transport: %s", err)
	}

	if err := tg.Send(context.Background(), notify.NewMessage(notify.KindFailure, "web is down")); err != nil {
		t.Fatalf("failed to send: %s", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if path != "/botTOKEN123/sendMessage" {
		t.Errorf("unexpected path: %s", path)
	}
	if body["chat_id"] != "42" {
		t.Errorf("expected chat_id 42 but got %q", body["chat_id"])
	}
	if body["text"] != "web is down" {
		t.Errorf("expected message text but got %q", body["text"])
	}
}

func TestTelegram_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer server.Close()
	setTelegramAPI(t, server.URL)

	tg, err := notify.NewTelegram("TOKEN123", "42")
	if err != nil {
		t.Fatalf("failed to build transport: %s", err)
	}

	err = tg.Send(context.Background(), notify.NewMessage(notify.KindFailure, "web is down"))
	if err == nil {
		t.Fatalf("expected error but got nil")
	}
	if !strings.Contains(err.Error(), "chat not found") {
		t.Errorf("expected api description in error but got %q", err)
	}
}

func TestNewTelegram_validation(t *testing.T) {
	if _, err := notify.NewTelegram("", "42"); err != notify.ErrMissingToken {
		t.Errorf("expected ErrMissingToken but got %v", err)
	}
	if _, err := notify.NewTelegram("TOKEN", ""); err != notify.ErrMissingChatID {
		t.Errorf("expected ErrMissingChatID but got %v", err)
	}
}

func TestWebhook_Send(t *testing.T) {
	var (
		mu  sync.Mutex
		got notify.Message
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &got)
	}))
	defer server.Close()

	wh, err := notify.NewWebhook(server.URL)
	if err != nil {
		t.Fatalf("failed to build transport: %s", err)
	}

	m := notify.NewMessage(notify.KindRecovery, "web recovered")
	if err := wh.Send(context.Background(), m); err != nil {
		t.Fatalf("failed to send: %s", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got.ID != m.ID {
		t.Errorf("expected id %s but got %s", m.ID, got.ID)
	}
	if got.Kind != notify.KindRecovery {
		t.Errorf("expected kind recovery but got %s", got.Kind)
	}
	if got.Text != "web recovered" {
		t.Errorf("expected message text but got %q", got.Text)
	}
}

func TestWebhook_SendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	wh, err := notify.NewWebhook(server.URL)
	if err != nil {
		t.Fatalf("failed to build transport: %s", err)
	}

	if err := wh.Send(context.Background(), notify.NewMessage(notify.KindFailure, "x")); err == nil {
		t.Fatalf("expected error but got nil")
	}
}

func TestNewWebhook_validation(t *testing.T) {
	for _, u := range []string{"", "ftp://example.com", "http://"} {
		if _, err := notify.NewWebhook(u); err == nil {
			t.Errorf("expected error for %q but got nil", u)
		}
	}
}
