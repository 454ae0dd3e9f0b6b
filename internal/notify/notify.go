package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a notification for transports, logs, and metrics.
type Kind string

const (
	KindFailure    Kind = "failure"
	KindRecovery   Kind = "recovery"
	KindFlapping   Kind = "flapping"
	KindAnomaly    Kind = "anomaly"
	KindCertExpiry Kind = "cert_expiry"
	KindReply      Kind = "reply"
)

// Message is one outbound notification. Text is fully formatted by the
// caller; transports deliver it as-is.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage stamps a message with a fresh ID and the current time.
func NewMessage(kind Kind, text string) Message {
	return Message{
		ID:        uuid.New(),
		Kind:      kind,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// Transport delivers one message to one destination. Send may fail; the
// dispatcher logs and drops, so implementations must not retry internally.
type Transport interface {
	Name() string
	Send(ctx context.Context, m Message) error
}
