package service

import (
	"context"
	"encoding/json"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/provider"

	"github.com/google/uuid"
)

type QuoteRepository interface {
	GetQuoteForAgent(ctx context.Context, quoteID int64, agentID uuid.UUID) (*models.Quote, error)
	MarkQuoteConverted(ctx context.Context, quoteID int64) error
	GetCustomerByID(ctx context.Context, id int64) (*models.Customer, error)
}

type BookingRepository interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	CreateBookingItem(ctx context.Context, item *models.BookingItem) error
	GetBookingByID(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingForAgent(ctx context.Context, id int64, agentID uuid.UUID) (*models.Booking, error)
	GetBookingByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error)
	GetBookingItems(ctx context.Context, bookingID int64) ([]models.BookingItem, error)
}

type ConfirmationStore interface {
	RecordConfirmation(ctx context.Context, c *models.BookingConfirmation) (int64, error)
	ListConfirmations(ctx context.Context, bookingID int64) ([]models.BookingConfirmation, error)
	ListAwaitingReconfirmation(ctx context.Context, since time.Time, limit int) ([]models.BookingConfirmation, error)
	SetReconfirmation(ctx context.Context, id int64, number, providerStatus string, modifiedAt *time.Time) (bool, error)
}

type PaymentStore interface {
	CreatePayment(ctx context.Context, p *models.Payment) error
	UpdatePaymentStatus(ctx context.Context, intentID, status, failureMessage string) (*models.Payment, error)
	RecomputeBookingPayment(ctx context.Context, bookingID int64) (*models.Booking, error)
}

type SubscriptionStore interface {
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscriptionByCustomerID(ctx context.Context, customerID string) (*models.Subscription, error)
	GetSubscriptionByExternalID(ctx context.Context, externalID string) (*models.Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, externalID, status string) (*models.Subscription, error)
}

type WebhookEventStore interface {
	LogWebhookEvent(ctx context.Context, eventID, eventType string, payload json.RawMessage) (bool, error)
	IsWebhookEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkWebhookEventProcessed(ctx context.Context, eventID string) error
	MarkWebhookEventFailed(ctx context.Context, eventID, message string) error
}

// Locker is a short-lived distributed lock
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
	ExtendLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishBookingCreated(ctx context.Context, event *models.BookingCreatedEvent) error
	PublishBookingItem(ctx context.Context, event *models.BookingItemEvent) error
	PublishBookingItemReconfirmed(ctx context.Context, event *models.BookingItemReconfirmedEvent) error
	PublishNotification(ctx context.Context, event *models.NotificationEvent) error
}

type HotelAPI interface {
	Book(ctx context.Context, req provider.HotelBookingRequest) (*provider.HotelBooking, provider.Exchange, error)
	GetBooking(ctx context.Context, reference string) (*provider.HotelBooking, error)
}

type FlightAPI interface {
	CreateOrder(ctx context.Context, req provider.FlightOrderRequest) (*provider.FlightOrder, provider.Exchange, error)
}
