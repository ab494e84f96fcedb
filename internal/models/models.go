package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Customer is the traveller a quote is prepared for
type Customer struct {
	ID        int64     `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FullName returns "First Last" with empty parts dropped
func (c *Customer) FullName() string {
	if c == nil {
		return ""
	}
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

// Quote is an agent-authored travel proposal
type Quote struct {
	ID         int64       `db:"id" json:"id"`
	Status     string      `db:"status" json:"status"`
	CustomerID int64       `db:"customer_id" json:"customer_id"`
	AgentID    uuid.UUID   `db:"agent_id" json:"agent_id"`
	TripStart  *time.Time  `db:"trip_start" json:"trip_start,omitempty"`
	TripEnd    *time.Time  `db:"trip_end" json:"trip_end,omitempty"`
	Currency   string      `db:"currency" json:"currency"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time   `db:"updated_at" json:"updated_at"`
	Items      []QuoteItem `db:"-" json:"items"`
	Customer   *Customer   `db:"-" json:"customer,omitempty"`
}

// QuoteItem is one bookable line of a quote. Cost is in minor units.
type QuoteItem struct {
	ID        int64           `db:"id" json:"id"`
	QuoteID   int64           `db:"quote_id" json:"quote_id"`
	ItemType  string          `db:"item_type" json:"item_type"`
	Name      string          `db:"name" json:"name"`
	Cost      int64           `db:"cost" json:"cost"`
	Quantity  int             `db:"quantity" json:"quantity"`
	Details   json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// LineTotal returns cost × quantity
func (qi *QuoteItem) LineTotal() int64 {
	return qi.Cost * int64(qi.Quantity)
}

// Booking is the committed, payable record created from a quote
type Booking struct {
	ID               int64      `db:"id" json:"id"`
	Reference        string     `db:"reference" json:"reference"`
	QuoteID          int64      `db:"quote_id" json:"quote_id"`
	CustomerID       int64      `db:"customer_id" json:"customer_id"`
	AgentID          uuid.UUID  `db:"agent_id" json:"agent_id"`
	Status           string     `db:"status" json:"status"`
	TotalPrice       int64      `db:"total_price" json:"total_price"`
	AmountPaid       int64      `db:"amount_paid" json:"amount_paid"`
	PaymentStatus    string     `db:"payment_status" json:"payment_status"`
	PaymentReference string     `db:"payment_reference" json:"payment_reference"`
	Currency         string     `db:"currency" json:"currency"`
	IdempotencyKey   string     `db:"idempotency_key" json:"-"`
	TravelStart      *time.Time `db:"travel_start" json:"travel_start,omitempty"`
	TravelEnd        *time.Time `db:"travel_end" json:"travel_end,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// BookingItem is a copy of a quote item taken at booking time
type BookingItem struct {
	ID          int64           `db:"id" json:"id"`
	BookingID   int64           `db:"booking_id" json:"booking_id"`
	QuoteItemID int64           `db:"quote_item_id" json:"quote_item_id"`
	ItemType    string          `db:"item_type" json:"item_type"`
	Name        string          `db:"name" json:"name"`
	Cost        int64           `db:"cost" json:"cost"`
	Quantity    int             `db:"quantity" json:"quantity"`
	Details     json.RawMessage `db:"details" json:"details,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// BookingConfirmation is one confirmation attempt for a booking item.
// Rows are append-only; only the reconfirmation columns are filled in later.
type BookingConfirmation struct {
	ID                   int64           `db:"id" json:"id"`
	BookingID            int64           `db:"booking_id" json:"booking_id"`
	QuoteItemID          int64           `db:"quote_item_id" json:"quote_item_id"`
	Provider             string          `db:"provider" json:"provider"`
	ProviderBookingID    string          `db:"provider_booking_id" json:"provider_booking_id,omitempty"`
	ConfirmationNumber   string          `db:"confirmation_number" json:"confirmation_number,omitempty"`
	BookingReference     string          `db:"booking_reference" json:"booking_reference,omitempty"`
	Status               string          `db:"status" json:"status"`
	RequiresFollowup     bool            `db:"requires_followup" json:"requires_agent_followup"`
	ErrorMessage         string          `db:"error_message" json:"error_message,omitempty"`
	RawRequest           json.RawMessage `db:"raw_request" json:"-"`
	RawResponse          json.RawMessage `db:"raw_response" json:"-"`
	Amount               int64           `db:"amount" json:"amount"`
	Currency             string          `db:"currency" json:"currency"`
	ReconfirmationNumber *string         `db:"reconfirmation_number" json:"reconfirmation_number,omitempty"`
	ProviderStatus       *string         `db:"provider_status" json:"provider_status,omitempty"`
	ProviderModifiedAt   *time.Time      `db:"provider_modified_at" json:"provider_modified_at,omitempty"`
	ReconfirmedAt        *time.Time      `db:"reconfirmed_at" json:"reconfirmed_at,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
}

// Subscription is the agent's billing plan, mirrored from the payment processor
type Subscription struct {
	ID                     int64      `db:"id" json:"id"`
	AgentID                uuid.UUID  `db:"agent_id" json:"agent_id"`
	Tier                   string     `db:"tier" json:"tier"`
	Status                 string     `db:"status" json:"status"`
	CurrentPeriodStart     *time.Time `db:"current_period_start" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `db:"current_period_end" json:"current_period_end,omitempty"`
	TrialStart             *time.Time `db:"trial_start" json:"trial_start,omitempty"`
	TrialEnd               *time.Time `db:"trial_end" json:"trial_end,omitempty"`
	CancelAtPeriodEnd      bool       `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	ExternalSubscriptionID string     `db:"external_subscription_id" json:"external_subscription_id"`
	ExternalCustomerID     string     `db:"external_customer_id" json:"external_customer_id"`
	CreatedAt              time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at" json:"updated_at"`
}

// Payment is a money movement against a booking, keyed by the processor's intent id
type Payment struct {
	ID                      int64     `db:"id" json:"id"`
	BookingID               int64     `db:"booking_id" json:"booking_id"`
	ExternalPaymentIntentID string    `db:"external_payment_intent_id" json:"external_payment_intent_id"`
	Amount                  int64     `db:"amount" json:"amount"`
	Currency                string    `db:"currency" json:"currency"`
	Status                  string    `db:"status" json:"status"`
	FailureMessage          string    `db:"failure_message" json:"failure_message,omitempty"`
	CreatedAt               time.Time `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time `db:"updated_at" json:"updated_at"`
}

// PaymentWebhookEvent is the raw processor event, logged before it is applied
type PaymentWebhookEvent struct {
	ID           int64           `db:"id" json:"id"`
	EventID      string          `db:"event_id" json:"event_id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"-"`
	Processed    bool            `db:"processed" json:"processed"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	Attempts     int             `db:"attempts" json:"attempts"`
	ReceivedAt   time.Time       `db:"received_at" json:"received_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
}

// Quote statuses
const (
	QuoteStatusDraft     = "Draft"
	QuoteStatusSent      = "Sent"
	QuoteStatusExpired   = "Expired"
	QuoteStatusConverted = "Converted"
	QuoteStatusPublished = "Published"
)

// Item types
const (
	ItemTypeHotel     = "Hotel"
	ItemTypeFlight    = "Flight"
	ItemTypeTour      = "Tour"
	ItemTypeTransfer  = "Transfer"
	ItemTypeInsurance = "Insurance"
)

// Booking statuses
const (
	BookingStatusPending   = "Pending"
	BookingStatusConfirmed = "Confirmed"
	BookingStatusCancelled = "Cancelled"
	BookingStatusCompleted = "Completed"
)

// Booking payment statuses
const (
	PaymentStatusUnpaid        = "Unpaid"
	PaymentStatusPartiallyPaid = "PartiallyPaid"
	PaymentStatusPaid          = "Paid"
	PaymentStatusRefunded      = "Refunded"
)

// Payment row statuses
const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
	PaymentFailed    = "failed"
)

// Confirmation providers
const (
	ProviderHotel  = "hotel-provider"
	ProviderFlight = "flight-provider"
	ProviderManual = "manual"
)

// Confirmation statuses
const (
	ConfirmationConfirmed = "confirmed"
	ConfirmationPending   = "pending"
	ConfirmationFailed    = "failed"
)

// Subscription statuses as reported by the payment processor
const (
	SubscriptionActive     = "active"
	SubscriptionTrialing   = "trialing"
	SubscriptionPastDue    = "past_due"
	SubscriptionCanceled   = "canceled"
	SubscriptionIncomplete = "incomplete"
)

// DerivePaymentStatus maps paid vs total onto a booking payment status
func DerivePaymentStatus(amountPaid, total int64) string {
	switch {
	case amountPaid <= 0:
		return PaymentStatusUnpaid
	case amountPaid < total:
		return PaymentStatusPartiallyPaid
	default:
		return PaymentStatusPaid
	}
}
