package models

import "time"

// Event types
const (
	EventTypeBookingCreated         = "BOOKING_CREATED"
	EventTypeBookingItemConfirmed   = "BOOKING_ITEM_CONFIRMED"
	EventTypeBookingItemFailed      = "BOOKING_ITEM_FAILED"
	EventTypeBookingItemReconfirmed = "BOOKING_ITEM_RECONFIRMED"
	EventTypeNotification           = "NOTIFICATION_REQUESTED"
)

// Notification kinds
const (
	NotificationReconfirmation = "booking_reconfirmed"
	NotificationInvoicePaid    = "invoice_payment_succeeded"
	NotificationInvoiceFailed  = "invoice_payment_failed"
	NotificationTrialEnding    = "trial_will_end"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// BookingCreatedEvent published once a quote has been converted
type BookingCreatedEvent struct {
	BaseEvent
	BookingID  int64  `json:"booking_id"`
	Reference  string `json:"reference"`
	QuoteID    int64  `json:"quote_id"`
	AgentID    string `json:"agent_id"`
	TotalPrice int64  `json:"total_price"`
	ItemCount  int    `json:"item_count"`
}

// BookingItemEvent published for every recorded item outcome
type BookingItemEvent struct {
	BaseEvent
	BookingID          int64  `json:"booking_id"`
	QuoteItemID        int64  `json:"quote_item_id"`
	ConfirmationID     int64  `json:"confirmation_id"`
	Provider           string `json:"provider"`
	Status             string `json:"status"`
	ConfirmationNumber string `json:"confirmation_number,omitempty"`
	RequiresFollowup   bool   `json:"requires_agent_followup"`
	Error              string `json:"error,omitempty"`
}

// BookingItemReconfirmedEvent published when the hotel assigns its own number
type BookingItemReconfirmedEvent struct {
	BaseEvent
	BookingID            int64  `json:"booking_id"`
	ConfirmationID       int64  `json:"confirmation_id"`
	ReconfirmationNumber string `json:"reconfirmation_number"`
	ProviderStatus       string `json:"provider_status,omitempty"`
}

// NotificationEvent asks the delivery collaborator to inform a customer or agent
type NotificationEvent struct {
	BaseEvent
	Kind      string            `json:"kind"`
	Recipient string            `json:"recipient,omitempty"`
	AgentID   string            `json:"agent_id,omitempty"`
	BookingID int64             `json:"booking_id,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}
