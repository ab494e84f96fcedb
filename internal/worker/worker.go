package worker

import (
	"context"
	"fmt"

	"booking-service/internal/broker"
	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// MessageSource is a topic consumer
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// ProcessedEvents remembers which events were already handled
type ProcessedEvents interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Deliverer sends a notification to its recipient
type Deliverer interface {
	Deliver(ctx context.Context, event *models.NotificationEvent) error
}

// LogDeliverer records notifications in the service log. Email and SMS
// delivery live in a separate service that reads the same topic.
type LogDeliverer struct {
	logger *zap.Logger
}

// NewLogDeliverer creates a log deliverer
func NewLogDeliverer() *LogDeliverer {
	return &LogDeliverer{logger: util.GetLogger()}
}

func (d *LogDeliverer) Deliver(_ context.Context, event *models.NotificationEvent) error {
	d.logger.Info("Notification",
		zap.String("kind", event.Kind),
		zap.String("recipient", event.Recipient),
		zap.String("agent_id", event.AgentID),
		zap.Int64("booking_id", event.BookingID),
		zap.Any("data", event.Data))
	return nil
}

// NotificationWorker consumes notification requests and delivers each once
type NotificationWorker struct {
	consumer     MessageSource
	eventHandler *broker.EventHandler
	processed    ProcessedEvents
	deliverer    Deliverer
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer MessageSource, processed ProcessedEvents, deliverer Deliverer) *NotificationWorker {
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		processed:    processed,
		deliverer:    deliverer,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnNotification(w.HandleNotification)
	return w
}

// Start consumes until ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the consumer
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker...")
	return w.consumer.Close()
}

// HandleNotification delivers event unless it was already delivered
func (w *NotificationWorker) HandleNotification(ctx context.Context, event *models.NotificationEvent) error {
	done, err := w.processed.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("check processed event: %w", err)
	}
	if done {
		w.logger.Debug("Notification already delivered", zap.String("event_id", event.EventID))
		return nil
	}

	if err := w.deliverer.Deliver(ctx, event); err != nil {
		return fmt.Errorf("deliver %s: %w", event.Kind, err)
	}
	util.NotificationsDeliveredTotal.WithLabelValues(event.Kind).Inc()

	if err := w.processed.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark notification delivered",
			zap.String("event_id", event.EventID),
			zap.Error(err))
	}
	return nil
}
