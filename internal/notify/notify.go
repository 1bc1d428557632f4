// Package notify is the Notification Bridge boundary. The protocol core
// only emits; delivery (push, IM) belongs to a downstream consumer.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sellerbay/parcelgate/internal/broker/messages"
)

type Notifier interface {
	Notify(ctx context.Context, userID, typ, title, body, orderID string) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// KafkaNotifier publishes notifications onto the bridge topic, keyed by
// order so one shipment's notifications stay ordered.
type KafkaNotifier struct {
	producer Producer
	topic    string
}

func NewKafkaNotifier(producer Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) Notify(ctx context.Context, userID, typ, title, body, orderID string) error {
	msg := messages.Notification{
		MessageID: uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Title:     title,
		Body:      body,
		OrderID:   orderID,
		SentAt:    time.Now().UTC(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal notification")
	}
	return n.producer.Publish(ctx, n.topic, []byte(orderID), b)
}

// Noop drops notifications; used in tests and when no broker is configured.
type Noop struct{}

func (Noop) Notify(ctx context.Context, userID, typ, title, body, orderID string) error {
	return nil
}
