package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
)

// Webhook posts the message as a JSON document to an arbitrary endpoint.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(rawURL string) (*Webhook, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported webhook scheme: %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("missing webhook host")
	}

	return &Webhook{
		url:    u.String(),
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (w *Webhook) Name() string {
	return "webhook"
}

func (w *Webhook) Send(ctx context.Context, m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	return nil
}
