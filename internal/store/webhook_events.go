package store

import (
	"context"
	"encoding/json"
)

// LogWebhookEvent stores a received event, or bumps the attempt counter of a
// redelivery. It reports whether the event was already processed.
func (s *Store) LogWebhookEvent(ctx context.Context, eventID, eventType string, payload json.RawMessage) (bool, error) {
	var processed bool
	err := s.db.GetContext(ctx, &processed, `
		INSERT INTO payment_webhook_events (event_id, event_type, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO UPDATE SET attempts = payment_webhook_events.attempts + 1
		RETURNING processed`,
		eventID, eventType, jsonb(payload))
	return processed, err
}

// IsWebhookEventProcessed reports whether an event was already applied
func (s *Store) IsWebhookEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var processed bool
	err := s.db.GetContext(ctx, &processed,
		"SELECT processed FROM payment_webhook_events WHERE event_id = $1", eventID)
	return processed, err
}

// MarkWebhookEventProcessed marks an event as applied
func (s *Store) MarkWebhookEventProcessed(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payment_webhook_events SET processed = TRUE, error_message = NULL, processed_at = NOW() WHERE event_id = $1",
		eventID)
	return err
}

// MarkWebhookEventFailed keeps the event unprocessed and stores why
func (s *Store) MarkWebhookEventFailed(ctx context.Context, eventID, message string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payment_webhook_events SET error_message = $1 WHERE event_id = $2",
		message, eventID)
	return err
}
