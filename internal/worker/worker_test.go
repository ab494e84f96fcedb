package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"booking-service/internal/broker"
	"booking-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memProcessed struct {
	seen map[string]string
	err  error
}

func (m *memProcessed) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.seen[eventID]
	return ok, nil
}

func (m *memProcessed) MarkEventProcessed(_ context.Context, eventID, eventType string) error {
	m.seen[eventID] = eventType
	return nil
}

type recordingDeliverer struct {
	delivered []*models.NotificationEvent
	err       error
}

func (d *recordingDeliverer) Deliver(_ context.Context, event *models.NotificationEvent) error {
	if d.err != nil {
		return d.err
	}
	d.delivered = append(d.delivered, event)
	return nil
}

// replaySource feeds fixed messages to the handler
type replaySource struct {
	messages []kafka.Message
	closed   bool
}

func (s *replaySource) StartConsuming(ctx context.Context, handler broker.MessageHandler) error {
	for _, m := range s.messages {
		if err := handler(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *replaySource) Close() error {
	s.closed = true
	return nil
}

func notificationMessage(t *testing.T, eventID string) kafka.Message {
	t.Helper()
	event := models.NotificationEvent{
		BaseEvent: models.BaseEvent{EventID: eventID, EventType: models.EventTypeNotification},
		Kind:      models.NotificationReconfirmation,
		Recipient: "ana@example.com",
		BookingID: 10,
	}
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte("ana@example.com"), Value: value}
}

func TestNotificationWorker_DeliversOnce(t *testing.T) {
	source := &replaySource{messages: []kafka.Message{
		notificationMessage(t, "evt-1"),
		notificationMessage(t, "evt-1"),
		notificationMessage(t, "evt-2"),
	}}
	processed := &memProcessed{seen: make(map[string]string)}
	deliverer := &recordingDeliverer{}

	w := NewNotificationWorker(source, processed, deliverer)
	require.NoError(t, w.Start(context.Background()))

	require.Len(t, deliverer.delivered, 2)
	assert.Equal(t, "evt-1", deliverer.delivered[0].EventID)
	assert.Equal(t, "evt-2", deliverer.delivered[1].EventID)
	assert.Equal(t, models.EventTypeNotification, processed.seen["evt-1"])

	require.NoError(t, w.Stop())
	assert.True(t, source.closed)
}

func TestNotificationWorker_IgnoresOtherEvents(t *testing.T) {
	other, err := json.Marshal(models.BookingCreatedEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-3", EventType: models.EventTypeBookingCreated},
		BookingID: 10,
	})
	require.NoError(t, err)

	deliverer := &recordingDeliverer{}
	w := NewNotificationWorker(&replaySource{messages: []kafka.Message{{Value: other}}},
		&memProcessed{seen: make(map[string]string)}, deliverer)

	require.NoError(t, w.Start(context.Background()))
	assert.Empty(t, deliverer.delivered)
}

// A failed delivery stays unprocessed so the consumer's next attempt delivers it.
func TestNotificationWorker_FailedDeliveryStaysUnprocessed(t *testing.T) {
	processed := &memProcessed{seen: make(map[string]string)}
	deliverer := &recordingDeliverer{err: errors.New("smtp unavailable")}
	w := NewNotificationWorker(&replaySource{}, processed, deliverer)

	event := &models.NotificationEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-4", EventType: models.EventTypeNotification},
		Kind:      models.NotificationInvoiceFailed,
	}
	err := w.HandleNotification(context.Background(), event)
	assert.Error(t, err)
	assert.NotContains(t, processed.seen, "evt-4")

	deliverer.err = nil
	require.NoError(t, w.HandleNotification(context.Background(), event))
	assert.Contains(t, processed.seen, "evt-4")
}

func TestNotificationWorker_DedupeStoreDown(t *testing.T) {
	deliverer := &recordingDeliverer{}
	w := NewNotificationWorker(&replaySource{}, &memProcessed{err: errors.New("db down")}, deliverer)

	err := w.HandleNotification(context.Background(), &models.NotificationEvent{
		BaseEvent: models.BaseEvent{EventID: "evt-5"},
	})
	assert.Error(t, err)
	assert.Empty(t, deliverer.delivered)
}
