package service

import (
	"context"
	"fmt"

	"booking-service/internal/models"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// recordConfirmation appends c and counts it
func recordConfirmation(ctx context.Context, store ConfirmationStore, c *models.BookingConfirmation) error {
	if _, err := store.RecordConfirmation(ctx, c); err != nil {
		util.GetLogger().Error("Failed to record confirmation",
			zap.Int64("booking_id", c.BookingID),
			zap.Int64("quote_item_id", c.QuoteItemID),
			zap.String("provider", c.Provider),
			zap.String("status", c.Status),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	util.ConfirmationsRecordedTotal.WithLabelValues(c.Provider, c.Status).Inc()
	return nil
}

// recordUnconfirmed is called when the provider accepted a booking but its
// confirmed row could not be written. It keeps the provider reference and raw
// exchange in a pending row and returns an *UnrecordedBookingError.
func recordUnconfirmed(ctx context.Context, store ConfirmationStore, conf *models.BookingConfirmation, cause error) error {
	pending := *conf
	pending.ID = 0
	pending.Status = models.ConfirmationPending
	pending.ErrorMessage = "booked at provider, confirmation not recorded: " + cause.Error()
	if err := recordConfirmation(ctx, store, &pending); err != nil {
		util.GetLogger().Error("Provider booking left without any confirmation row",
			zap.Int64("booking_id", conf.BookingID),
			zap.Int64("quote_item_id", conf.QuoteItemID),
			zap.String("provider", conf.Provider),
			zap.String("provider_booking_id", conf.ProviderBookingID),
			zap.ByteString("raw_response", conf.RawResponse))
	}
	return &UnrecordedBookingError{
		Provider:          conf.Provider,
		ProviderBookingID: conf.ProviderBookingID,
		Err:               cause,
	}
}
