package notify

import (
	"context"
	"log/slog"
	"time"
)

// PendingMessage describes a message whose recipient had no live
// connection at fan-out time. Downstream consumers turn it into a push
// notification; this subsystem never queues deliveries itself.
type PendingMessage struct {
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	SenderID       string    `json:"sender_id"`
	Preview        string    `json:"preview"`
	SentAt         time.Time `json:"sent_at"`
}

// Notifier is the fallback port invoked when a realtime delivery reports
// the recipient offline.
type Notifier interface {
	MessagePending(ctx context.Context, pending PendingMessage) error
}

// LogNotifier records pending notifications without a broker. Used in dev
// and as the default when Kafka is not configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) MessagePending(ctx context.Context, pending PendingMessage) error {
	if n.Logger != nil {
		n.Logger.Info("offline recipient, push fallback",
			"user_id", pending.UserID,
			"conversation_id", pending.ConversationID,
			"message_id", pending.MessageID,
		)
	}
	return nil
}

var _ Notifier = LogNotifier{}
