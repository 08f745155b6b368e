package kafka

import (
	"context"
	"encoding/json"

	"messenger/internal/app/notify"
)

// Notifier publishes offline-recipient events to the push pipeline.
// Messages are keyed by recipient so one user's notifications stay
// ordered within a partition.
type Notifier struct {
	Producer *Producer
	Topic    string
}

func (n *Notifier) MessagePending(ctx context.Context, pending notify.PendingMessage) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return err
	}
	return n.Producer.Publish(ctx, n.Topic, pending.UserID, payload, map[string]string{
		"event": "message.pending",
	})
}

var _ notify.Notifier = (*Notifier)(nil)
