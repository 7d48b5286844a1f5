package broker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/bustix/internal/domain"
)

// EventPublisher turns lifecycle notifications into domain.Event records
// and sends them to Kafka. Without a producer it only logs them.
type EventPublisher struct {
	producer *Producer
	logger   *slog.Logger
	now      func() time.Time
}

func NewEventPublisher(producer *Producer, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{
		producer: producer,
		logger:   logger,
		now:      time.Now,
	}
}

// Publish sends one event keyed by key. Failures are logged and returned;
// callers treat events as best effort.
func (ep *EventPublisher) Publish(ctx context.Context, eventType, key string, data map[string]any) error {
	ev := domain.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Key:       key,
		Timestamp: ep.now().UTC(),
		Data:      data,
	}

	if ep.producer == nil {
		ep.logger.Debug("event", slog.String("type", ev.Type), slog.String("key", ev.Key), slog.Any("data", ev.Data))
		return nil
	}

	if err := ep.producer.PublishMessage(ctx, key, ev); err != nil {
		ep.logger.Warn("failed to publish event",
			slog.String("type", ev.Type),
			slog.String("key", ev.Key),
			slog.Any("error", err),
		)
		return err
	}

	return nil
}

func (ep *EventPublisher) Close() error {
	if ep.producer == nil {
		return nil
	}
	return ep.producer.Close()
}
