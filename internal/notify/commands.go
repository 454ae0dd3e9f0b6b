package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Fleet is the view of monitoring state the command listener exposes to
// operators. The monitor implements it.
type Fleet interface {
	Acknowledge(id string)
	Unacknowledge(id string)
	Acknowledged() []string
	StatusSummary() string
	TargetIDs() []string
}

// Commands long-polls the Telegram Bot API and maps chat commands onto the
// fleet. Replies go out through the dispatcher like any other notification.
type Commands struct {
	telegram   *Telegram
	fleet      Fleet
	dispatcher *Dispatcher
	logger     *zap.Logger
	client     *http.Client
	offset     int64
}

func NewCommands(t *Telegram, fleet Fleet, d *Dispatcher, logger *zap.Logger) *Commands {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Commands{
		telegram:   t,
		fleet:      fleet,
		dispatcher: d,
		logger:     logger,
		// The client must outlive the 30s long poll.
		client: &http.Client{Timeout: 40 * time.Second},
	}
}

type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

type telegramUpdates struct {
	OK     bool             `json:"ok"`
	Result []telegramUpdate `json:"result"`
}

// Run polls until ctx is canceled. Poll failures back off exponentially and
// reset on the first success.
func (c *Commands) Run(ctx context.Context) {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0

	for ctx.Err() == nil {
		err := backoff.Retry(func() error {
			if err := c.poll(ctx); err != nil {
				c.logger.Warn("telegram poll failed", zap.Error(err))
				return err
			}
			return nil
		}, backoff.WithContext(b, ctx))
		if err != nil {
			return
		}
		b.Reset()
	}
}

func (c *Commands) poll(ctx context.Context) error {
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=30&offset=%d",
		TelegramAPIBase, c.telegram.token, c.offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}

	var updates telegramUpdates
	if err := json.Unmarshal(body, &updates); err != nil {
		return fmt.Errorf("unexpected response (status %d): %w", resp.StatusCode, err)
	}
	if !updates.OK {
		return fmt.Errorf("telegram api error (status %d)", resp.StatusCode)
	}

	for _, u := range updates.Result {
		c.offset = u.UpdateID + 1

		if u.Message == nil {
			continue
		}
		if strconv.FormatInt(u.Message.Chat.ID, 10) != c.telegram.ChatID() {
			c.logger.Debug("ignoring message from unknown chat",
				zap.Int64("chat_id", u.Message.Chat.ID))
			continue
		}

		if reply := c.handle(u.Message.Text); reply != "" {
			c.dispatcher.Enqueue(NewMessage(KindReply, reply))
		}
	}

	return nil
}

// handle maps one chat message to a reply. Non-commands reply nothing.
func (c *Commands) handle(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return ""
	}

	// Group chats suffix commands with the bot name, e.g. "/status@kanshibot".
	cmd := strings.SplitN(fields[0], "@", 2)[0]

	switch cmd {
	case "/ack":
		if len(fields) < 2 {
			return "usage: /ack <target>"
		}
		c.fleet.Acknowledge(fields[1])
		c.logger.Info("target acknowledged via chat", zap.String("target", fields[1]))
		return fmt.Sprintf("%s acknowledged; notifications muted", fields[1])
	case "/unack":
		if len(fields) < 2 {
			return "usage: /unack <target>"
		}
		c.fleet.Unacknowledge(fields[1])
		c.logger.Info("target unacknowledged via chat", zap.String("target", fields[1]))
		return fmt.Sprintf("%s unacknowledged; notifications resumed", fields[1])
	case "/status":
		return c.fleet.StatusSummary()
	case "/targets":
		ids := c.fleet.TargetIDs()
		if len(ids) == 0 {
			return "no targets configured"
		}
		return strings.Join(ids, "\n")
	default:
		return "unknown command; try /ack, /unack, /status, or /targets"
	}
}
