package notification

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"madrasah/internal/queue"
)

// Pusher sends a frame to every connection of a user.
type Pusher interface {
	Push(ctx context.Context, userID string, payload []byte) error
}

// Deliverer moves queued items to connected clients.
type Deliverer struct {
	queue  queue.Queue
	pusher Pusher
	log    *zap.Logger
}

func NewDeliverer(q queue.Queue, p Pusher, log *zap.Logger) *Deliverer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Deliverer{queue: q, pusher: p, log: log}
}

// Run consumes the queue until ctx ends. Undeliverable items are logged and
// skipped; they remain in the user's list.
func (d *Deliverer) Run(ctx context.Context) error {
	msgs, err := d.queue.Consume(ctx)
	if err != nil {
		return err
	}
	d.log.Info("notification delivery started")
	for msg := range msgs {
		if msg.Type != MessageType {
			continue
		}
		d.deliver(ctx, msg.Body)
	}
	d.log.Info("notification delivery stopped")
	return nil
}

func (d *Deliverer) deliver(ctx context.Context, body []byte) {
	var it Item
	if err := json.Unmarshal(body, &it); err != nil {
		d.log.Warn("notification message malformed", zap.Error(err))
		return
	}
	payload, err := json.Marshal(Push{Type: MessageType, Item: it})
	if err != nil {
		d.log.Error("notification encode failed", zap.String("id", it.ID), zap.Error(err))
		return
	}
	if err := d.pusher.Push(ctx, it.UserID, payload); err != nil {
		d.log.Warn("notification push failed", zap.String("id", it.ID), zap.String("user_id", it.UserID), zap.Error(err))
		return
	}
	d.log.Debug("notification delivered", zap.String("id", it.ID), zap.String("user_id", it.UserID))
}
