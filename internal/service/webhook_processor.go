package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/store"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"go.uber.org/zap"
)

// Payment processor event types this service applies
const (
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventTrialWillEnd         = "customer.subscription.trial_will_end"
	EventInvoicePaid          = "invoice.payment_succeeded"
	EventInvoiceFailed        = "invoice.payment_failed"
	EventPaymentIntentSuccess = "payment_intent.succeeded"
	EventPaymentIntentFailed  = "payment_intent.payment_failed"
)

const webhookLockTTL = 30 * time.Second

// WebhookResult describes what happened to a delivered event
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
	Handled   bool   `json:"handled"`
}

// WebhookProcessor verifies payment processor events and applies each one once
type WebhookProcessor struct {
	secret        string
	events        WebhookEventStore
	subscriptions SubscriptionStore
	payments      PaymentStore
	locker        Locker
	notifier      *Notifier
	logger        *zap.Logger
}

// NewWebhookProcessor creates a webhook processor
func NewWebhookProcessor(
	secret string,
	events WebhookEventStore,
	subscriptions SubscriptionStore,
	payments PaymentStore,
	locker Locker,
	notifier *Notifier,
) *WebhookProcessor {
	return &WebhookProcessor{
		secret:        secret,
		events:        events,
		subscriptions: subscriptions,
		payments:      payments,
		locker:        locker,
		notifier:      notifier,
		logger:        util.GetLogger(),
	}
}

// HandleEvent verifies the signature, logs the event and applies it. An event
// that was already processed is acknowledged without side effects.
func (w *WebhookProcessor) HandleEvent(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ctx, span := util.StartSpan(ctx, "WebhookProcessor.HandleEvent")
	defer span.End()

	if w.secret == "" || signature == "" {
		util.WebhookEventsTotal.WithLabelValues("unknown", "invalid_signature").Inc()
		return nil, fmt.Errorf("%w: missing signature or secret", ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, w.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("unknown", "invalid_signature").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	eventType := string(event.Type)
	result := &WebhookResult{EventID: event.ID, EventType: eventType}

	processed, err := w.events.LogWebhookEvent(ctx, event.ID, eventType, payload)
	if err != nil {
		util.SpanError(span, err)
		return nil, fmt.Errorf("%w: log webhook event: %v", ErrPersistence, err)
	}
	if processed {
		util.WebhookEventsTotal.WithLabelValues(eventType, "duplicate").Inc()
		w.logger.Info("Webhook event already processed", zap.String("event_id", event.ID))
		result.Duplicate = true
		return result, nil
	}

	lockKey := "webhook:" + event.ID
	token, acquired, err := w.locker.AcquireLock(ctx, lockKey, webhookLockTTL)
	switch {
	case err != nil:
		w.logger.Warn("Webhook lock unavailable", zap.String("event_id", event.ID), zap.Error(err))
	case !acquired:
		util.WebhookEventsTotal.WithLabelValues(eventType, "in_flight").Inc()
		result.Duplicate = true
		return result, nil
	default:
		defer func() {
			if err := w.locker.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
				w.logger.Warn("Failed to release webhook lock", zap.String("event_id", event.ID), zap.Error(err))
			}
		}()
	}

	// A concurrent delivery may have finished between logging and locking.
	processed, err = w.events.IsWebhookEventProcessed(ctx, event.ID)
	if err != nil {
		util.SpanError(span, err)
		return nil, fmt.Errorf("%w: check webhook event: %v", ErrPersistence, err)
	}
	if processed {
		util.WebhookEventsTotal.WithLabelValues(eventType, "duplicate").Inc()
		w.logger.Info("Webhook event processed by a concurrent delivery", zap.String("event_id", event.ID))
		result.Duplicate = true
		return result, nil
	}

	handled, err := w.dispatch(ctx, &event)
	if err != nil {
		util.SpanError(span, err)
		util.WebhookEventsTotal.WithLabelValues(eventType, "failed").Inc()
		if markErr := w.events.MarkWebhookEventFailed(ctx, event.ID, err.Error()); markErr != nil {
			w.logger.Error("Failed to mark webhook event failed", zap.String("event_id", event.ID), zap.Error(markErr))
		}
		w.logger.Error("Webhook event handling failed",
			zap.String("event_id", event.ID),
			zap.String("type", eventType),
			zap.Error(err))
		return nil, fmt.Errorf("handle %s: %w", eventType, err)
	}

	if err := w.events.MarkWebhookEventProcessed(ctx, event.ID); err != nil {
		return nil, fmt.Errorf("%w: mark webhook event processed: %v", ErrPersistence, err)
	}

	outcome := "processed"
	if !handled {
		outcome = "ignored"
	}
	util.WebhookEventsTotal.WithLabelValues(eventType, outcome).Inc()
	result.Handled = handled
	return result, nil
}

func (w *WebhookProcessor) dispatch(ctx context.Context, event *stripe.Event) (bool, error) {
	if event.Data == nil {
		return false, nil
	}
	raw := event.Data.Raw

	switch string(event.Type) {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return false, fmt.Errorf("decode subscription: %w", err)
		}
		return w.upsertSubscription(ctx, &sub, string(event.Type) == EventSubscriptionDeleted)

	case EventInvoicePaid, EventInvoiceFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return false, fmt.Errorf("decode invoice: %w", err)
		}
		return w.applyInvoice(ctx, &inv, string(event.Type) == EventInvoicePaid)

	case EventTrialWillEnd:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return false, fmt.Errorf("decode subscription: %w", err)
		}
		return w.notifyTrialEnding(ctx, &sub)

	case EventPaymentIntentSuccess, EventPaymentIntentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return false, fmt.Errorf("decode payment intent: %w", err)
		}
		return w.applyPaymentIntent(ctx, &pi, string(event.Type) == EventPaymentIntentSuccess)
	}

	w.logger.Debug("Ignoring webhook event type", zap.String("type", string(event.Type)))
	return false, nil
}

func (w *WebhookProcessor) upsertSubscription(ctx context.Context, sub *stripe.Subscription, deleted bool) (bool, error) {
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}

	agentID, err := w.resolveAgent(ctx, sub.Metadata, customerID)
	if err != nil {
		return false, err
	}
	if agentID == uuid.Nil {
		w.logger.Warn("Subscription event has no resolvable agent",
			zap.String("subscription_id", sub.ID),
			zap.String("customer_id", customerID))
		return false, nil
	}

	status := string(sub.Status)
	if deleted {
		status = models.SubscriptionCanceled
	}

	record := &models.Subscription{
		AgentID:                agentID,
		Tier:                   subscriptionTier(sub),
		Status:                 status,
		CurrentPeriodStart:     unixTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:       unixTime(sub.CurrentPeriodEnd),
		TrialStart:             unixTime(sub.TrialStart),
		TrialEnd:               unixTime(sub.TrialEnd),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		ExternalSubscriptionID: sub.ID,
		ExternalCustomerID:     customerID,
	}
	if err := w.subscriptions.UpsertSubscription(ctx, record); err != nil {
		return false, fmt.Errorf("%w: upsert subscription: %v", ErrPersistence, err)
	}

	w.logger.Info("Subscription synced",
		zap.String("agent_id", agentID.String()),
		zap.String("subscription_id", sub.ID),
		zap.String("status", status))
	return true, nil
}

// resolveAgent finds the agent from metadata, else from an existing
// subscription for the same processor customer
func (w *WebhookProcessor) resolveAgent(ctx context.Context, metadata map[string]string, customerID string) (uuid.UUID, error) {
	if raw := metadata["agent_id"]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id, nil
		}
		w.logger.Warn("Ignoring malformed agent_id metadata", zap.String("agent_id", raw))
	}
	if customerID == "" {
		return uuid.Nil, nil
	}

	existing, err := w.subscriptions.GetSubscriptionByCustomerID(ctx, customerID)
	if errors.Is(err, store.ErrNotFound) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: lookup subscription: %v", ErrPersistence, err)
	}
	return existing.AgentID, nil
}

func (w *WebhookProcessor) applyInvoice(ctx context.Context, inv *stripe.Invoice, paid bool) (bool, error) {
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		return false, nil
	}

	status, kind := models.SubscriptionPastDue, models.NotificationInvoiceFailed
	if paid {
		status, kind = models.SubscriptionActive, models.NotificationInvoicePaid
	}

	sub, err := w.subscriptions.UpdateSubscriptionStatus(ctx, inv.Subscription.ID, status)
	if errors.Is(err, store.ErrNotFound) {
		w.logger.Warn("Invoice for unknown subscription", zap.String("subscription_id", inv.Subscription.ID))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: update subscription: %v", ErrPersistence, err)
	}

	amount := inv.AmountDue
	if paid {
		amount = inv.AmountPaid
	}
	w.notifier.Notify(ctx, Notification{
		Kind:      kind,
		Recipient: inv.CustomerEmail,
		AgentID:   sub.AgentID.String(),
		Data: map[string]string{
			"invoice_id": inv.ID,
			"amount":     models.FormatMinorUnits(amount),
			"currency":   string(inv.Currency),
			"tier":       sub.Tier,
		},
	})
	return true, nil
}

func (w *WebhookProcessor) notifyTrialEnding(ctx context.Context, sub *stripe.Subscription) (bool, error) {
	existing, err := w.subscriptions.GetSubscriptionByExternalID(ctx, sub.ID)
	if errors.Is(err, store.ErrNotFound) {
		w.logger.Warn("Trial ending for unknown subscription", zap.String("subscription_id", sub.ID))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: lookup subscription: %v", ErrPersistence, err)
	}

	data := map[string]string{"tier": existing.Tier}
	if sub.TrialEnd > 0 {
		data["trial_end"] = time.Unix(sub.TrialEnd, 0).UTC().Format(time.RFC3339)
	}
	w.notifier.Notify(ctx, Notification{
		Kind:    models.NotificationTrialEnding,
		AgentID: existing.AgentID.String(),
		Data:    data,
	})
	return true, nil
}

func (w *WebhookProcessor) applyPaymentIntent(ctx context.Context, pi *stripe.PaymentIntent, succeeded bool) (bool, error) {
	status, failure := models.PaymentFailed, ""
	if succeeded {
		status = models.PaymentSucceeded
	} else if pi.LastPaymentError != nil {
		failure = pi.LastPaymentError.Msg
	}

	payment, err := w.payments.UpdatePaymentStatus(ctx, pi.ID, status, failure)
	if errors.Is(err, store.ErrNotFound) {
		payment, err = w.createPaymentFromIntent(ctx, pi, status)
		if payment == nil && err == nil {
			w.logger.Warn("Payment intent for unknown payment", zap.String("payment_intent_id", pi.ID))
			return false, nil
		}
	}
	if err != nil {
		return false, fmt.Errorf("%w: update payment: %v", ErrPersistence, err)
	}

	booking, err := w.payments.RecomputeBookingPayment(ctx, payment.BookingID)
	if err != nil {
		return false, fmt.Errorf("%w: recompute booking payment: %v", ErrPersistence, err)
	}

	w.logger.Info("Booking payment updated",
		zap.Int64("booking_id", booking.ID),
		zap.String("payment_intent_id", pi.ID),
		zap.String("payment_status", booking.PaymentStatus),
		zap.Int64("amount_paid", booking.AmountPaid))
	return true, nil
}

// createPaymentFromIntent records a payment the booking flow never saw, when
// the intent names its booking in metadata
func (w *WebhookProcessor) createPaymentFromIntent(ctx context.Context, pi *stripe.PaymentIntent, status string) (*models.Payment, error) {
	bookingID, err := strconv.ParseInt(pi.Metadata["booking_id"], 10, 64)
	if err != nil || bookingID <= 0 {
		return nil, nil
	}

	p := &models.Payment{
		BookingID:               bookingID,
		ExternalPaymentIntentID: pi.ID,
		Amount:                  pi.Amount,
		Currency:                string(pi.Currency),
		Status:                  status,
	}
	if err := w.payments.CreatePayment(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func subscriptionTier(sub *stripe.Subscription) string {
	if tier := sub.Metadata["tier"]; tier != "" {
		return tier
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price == nil {
				continue
			}
			if item.Price.LookupKey != "" {
				return item.Price.LookupKey
			}
			return item.Price.ID
		}
	}
	return ""
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
