package service

import (
	"context"

	"booking-service/internal/broker"
	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// Notifier asks the delivery collaborator to inform a customer or agent.
// Delivery is best-effort: a publish failure is logged and swallowed.
type Notifier struct {
	publisher EventPublisher
	logger    *zap.Logger
}

// NewNotifier creates a notifier
func NewNotifier(publisher EventPublisher) *Notifier {
	return &Notifier{publisher: publisher, logger: util.GetLogger()}
}

// Notification is one message to hand to delivery
type Notification struct {
	Kind      string
	Recipient string
	AgentID   string
	BookingID int64
	Data      map[string]string
}

// Notify publishes n
func (n *Notifier) Notify(ctx context.Context, note Notification) {
	event := &models.NotificationEvent{
		BaseEvent: broker.NewBaseEvent(models.EventTypeNotification),
		Kind:      note.Kind,
		Recipient: note.Recipient,
		AgentID:   note.AgentID,
		BookingID: note.BookingID,
		Data:      note.Data,
	}

	if err := n.publisher.PublishNotification(ctx, event); err != nil {
		n.logger.Error("Failed to publish notification",
			zap.String("kind", note.Kind),
			zap.Int64("booking_id", note.BookingID),
			zap.Error(err))
		return
	}

	n.logger.Debug("Notification published", zap.String("kind", note.Kind), zap.String("event_id", event.EventID))
}
