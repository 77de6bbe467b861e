package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"CareVault/internal/mq"
	"CareVault/model"
)

// RunAuditWorker consumes audit events and writes them to the audit log
// until ctx is cancelled. Messages that cannot be decoded are rejected into
// the dead-letter queue.
func RunAuditWorker(ctx context.Context, client *mq.Client, prefetch int, log *zap.Logger) error {
	ch, ok := client.AMQPChannel()
	if !ok {
		return errors.New("audit worker: client has no AMQP channel")
	}
	if err := client.DeclareTopology(); err != nil {
		return err
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.Consume(
		client.Topology().Queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("audit worker: delivery channel closed")
			}
			handleAuditMessage(log, delivery)
		}
	}
}

func handleAuditMessage(log *zap.Logger, delivery amqp.Delivery) {
	event, err := decodeAuditEvent(delivery.Body)
	if err != nil {
		log.Warn("audit worker: rejecting message",
			zap.String("message_id", delivery.MessageId), zap.Error(err))
		_ = delivery.Nack(false, false)
		return
	}

	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("action", string(event.Action)),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.UserID != "" {
		fields = append(fields, zap.String("user_id", event.UserID))
	}
	if event.FileID != "" {
		fields = append(fields, zap.String("file_id", event.FileID.String()))
	}
	if event.Count > 0 {
		fields = append(fields, zap.Int("count", event.Count))
	}
	log.Info("audit", fields...)
	_ = delivery.Ack(false)
}

func decodeAuditEvent(body []byte) (model.AuditEvent, error) {
	var event model.AuditEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return model.AuditEvent{}, fmt.Errorf("decode: %w", err)
	}
	if event.ID == "" || event.Action == "" {
		return model.AuditEvent{}, errors.New("event id and action are required")
	}
	return event, nil
}
