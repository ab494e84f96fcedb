package service

import (
	"context"
	"encoding/json"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// Manual fallback reasons
const (
	ReasonNoRateKey    = "no rate key — local inventory"
	ReasonMissingOffer = "missing complete offer data"
)

// ReasonNoProvider is the fallback reason for item types without an adapter
func ReasonNoProvider(itemType string) string {
	return "no automated provider for " + itemType
}

// ReasonProviderError is the fallback reason after a failed provider call
func ReasonProviderError(message string) string {
	return "provider error: " + message
}

// ReasonUnrecorded is the fallback reason for a provider booking whose
// confirmation could not be stored. The agent records it, not rebooks it.
func ReasonUnrecorded(providerBookingID string) string {
	return "booked at provider as " + providerBookingID + ", confirmation not recorded"
}

type manualFollowup struct {
	RequiresAgentFollowup bool   `json:"requires_agent_followup"`
	Reason                string `json:"reason"`
	ItemType              string `json:"item_type"`
	ItemName              string `json:"item_name,omitempty"`
	CustomerName          string `json:"customer_name,omitempty"`
	CustomerEmail         string `json:"customer_email,omitempty"`
}

// ManualFallbackHandler records a confirmation the agent has to complete by hand
type ManualFallbackHandler struct {
	confirmations ConfirmationStore
	logger        *zap.Logger
	now           func() time.Time
}

// NewManualFallbackHandler creates a manual fallback handler
func NewManualFallbackHandler(confirmations ConfirmationStore) *ManualFallbackHandler {
	return &ManualFallbackHandler{
		confirmations: confirmations,
		logger:        util.GetLogger(),
		now:           time.Now,
	}
}

// CreateManualConfirmation records a confirmed, follow-up-required row for item
func (h *ManualFallbackHandler) CreateManualConfirmation(
	ctx context.Context,
	booking *models.Booking,
	item models.QuoteItem,
	customer *models.Customer,
	reason string,
) (*models.BookingConfirmation, error) {
	ctx, span := util.StartSpan(ctx, "ManualFallbackHandler.CreateManualConfirmation")
	defer span.End()

	followup := manualFollowup{
		RequiresAgentFollowup: true,
		Reason:                reason,
		ItemType:              item.ItemType,
		ItemName:              item.Name,
	}
	if customer != nil {
		followup.CustomerName = customer.FullName()
		followup.CustomerEmail = customer.Email
	}
	raw, _ := json.Marshal(followup)

	conf := &models.BookingConfirmation{
		BookingID:          booking.ID,
		QuoteItemID:        item.ID,
		Provider:           models.ProviderManual,
		ConfirmationNumber: NewManualConfirmationNumber(item.ItemType, h.now()),
		BookingReference:   booking.Reference,
		Status:             models.ConfirmationConfirmed,
		RequiresFollowup:   true,
		RawResponse:        raw,
		Amount:             item.LineTotal(),
		Currency:           booking.Currency,
	}

	if err := recordConfirmation(ctx, h.confirmations, conf); err != nil {
		util.SpanError(span, err)
		return nil, err
	}

	h.logger.Info("Manual confirmation created",
		zap.Int64("booking_id", booking.ID),
		zap.Int64("quote_item_id", item.ID),
		zap.String("confirmation_number", conf.ConfirmationNumber),
		zap.String("reason", reason))

	return conf, nil
}

// fallbackReason reads the reason back from a stored manual confirmation
func fallbackReason(c models.BookingConfirmation) string {
	var f manualFollowup
	if err := json.Unmarshal(c.RawResponse, &f); err != nil {
		return ""
	}
	return f.Reason
}
