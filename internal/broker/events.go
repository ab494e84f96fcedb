package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes booking lifecycle events and notification requests
type EventPublisher struct {
	bookings      *Producer
	notifications *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(bookings, notifications *Producer) *EventPublisher {
	return &EventPublisher{bookings: bookings, notifications: notifications}
}

// NewBaseEvent stamps a fresh event id and time
func NewBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

func bookingKey(id int64) string {
	return fmt.Sprintf("booking-%d", id)
}

// PublishBookingCreated publishes BookingCreated event
func (ep *EventPublisher) PublishBookingCreated(ctx context.Context, event *models.BookingCreatedEvent) error {
	return ep.bookings.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

// PublishBookingItem publishes the outcome of one dispatched item
func (ep *EventPublisher) PublishBookingItem(ctx context.Context, event *models.BookingItemEvent) error {
	return ep.bookings.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

// PublishBookingItemReconfirmed publishes a hotel reconfirmation
func (ep *EventPublisher) PublishBookingItemReconfirmed(ctx context.Context, event *models.BookingItemReconfirmedEvent) error {
	return ep.bookings.PublishEvent(ctx, bookingKey(event.BookingID), event)
}

// PublishNotification hands a notification request to the notifications topic
func (ep *EventPublisher) PublishNotification(ctx context.Context, event *models.NotificationEvent) error {
	key := event.Recipient
	if key == "" {
		key = event.AgentID
	}
	if err := ep.notifications.PublishEvent(ctx, key, event); err != nil {
		return err
	}
	util.NotificationsPublishedTotal.WithLabelValues(event.Kind).Inc()
	return nil
}

// EventHandler routes consumed events by type
type EventHandler struct {
	onNotification func(context.Context, *models.NotificationEvent) error
	logger         *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnNotification registers a handler for notification requests
func (eh *EventHandler) OnNotification(handler func(context.Context, *models.NotificationEvent) error) {
	eh.onNotification = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeNotification:
		if eh.onNotification != nil {
			var event models.NotificationEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal notification event: %w", err)
			}
			return eh.onNotification(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", baseEvent.EventType))
	}

	return nil
}
