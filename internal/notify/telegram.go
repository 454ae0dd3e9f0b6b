package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// TelegramAPIBase is the Bot API endpoint.
// This variable is for testing purpose.
var TelegramAPIBase = "https://api.telegram.org"

var (
	ErrMissingToken  = errors.New("missing telegram bot token")
	ErrMissingChatID = errors.New("missing telegram chat id")
)

// Telegram delivers messages through the Telegram Bot API.
type Telegram struct {
	token  string
	chatID string
	client *http.Client
}

func NewTelegram(token, chatID string) (*Telegram, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if chatID == "" {
		return nil, ErrMissingChatID
	}

	return &Telegram{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (t *Telegram) Name() string {
	return "telegram"
}

// ChatID returns the configured chat, used by the command listener to
// ignore messages from anywhere else.
func (t *Telegram) ChatID() string {
	return t.chatID
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func (t *Telegram) Send(ctx context.Context, m Message) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    m.Text,
	})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", TelegramAPIBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	var tr telegramResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return fmt.Errorf("unexpected response (status %d): %w", resp.StatusCode, err)
	}
	if !tr.OK {
		return fmt.Errorf("telegram api error (status %d): %s", resp.StatusCode, tr.Description)
	}

	return nil
}
