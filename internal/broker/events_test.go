package broker

import (
	"context"
	"encoding/json"
	"testing"

	"booking-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessage_RoutesNotifications(t *testing.T) {
	eh := NewEventHandler()

	var got *models.NotificationEvent
	eh.OnNotification(func(_ context.Context, e *models.NotificationEvent) error {
		got = e
		return nil
	})

	event := models.NotificationEvent{
		BaseEvent: NewBaseEvent(models.EventTypeNotification),
		Kind:      models.NotificationReconfirmation,
		Recipient: "ada@example.com",
		BookingID: 42,
		Data:      map[string]string{"reconfirmation_number": "HB-1"},
	}
	value, err := json.Marshal(event)
	require.NoError(t, err)

	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: value}))
	require.NotNil(t, got)
	assert.Equal(t, event.EventID, got.EventID)
	assert.Equal(t, "HB-1", got.Data["reconfirmation_number"])
}

func TestHandleMessage_IgnoresOtherEvents(t *testing.T) {
	eh := NewEventHandler()
	called := false
	eh.OnNotification(func(context.Context, *models.NotificationEvent) error {
		called = true
		return nil
	})

	value, _ := json.Marshal(models.BookingCreatedEvent{BaseEvent: NewBaseEvent(models.EventTypeBookingCreated)})
	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: value}))
	assert.False(t, called)

	assert.Error(t, eh.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")}))
}
