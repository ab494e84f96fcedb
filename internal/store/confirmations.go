package store

import (
	"context"
	"fmt"
	"time"

	"booking-service/internal/models"

	sq "github.com/Masterminds/squirrel"
)

var confirmationColumns = []string{
	"id", "booking_id", "quote_item_id", "provider", "provider_booking_id", "confirmation_number",
	"booking_reference", "status", "requires_followup", "error_message", "raw_request", "raw_response",
	"amount", "currency", "reconfirmation_number", "provider_status", "provider_modified_at",
	"reconfirmed_at", "created_at",
}

// RecordConfirmation appends a confirmation attempt. A second confirmed row for
// the same booking item is rejected with ErrAlreadyConfirmed.
func (s *Store) RecordConfirmation(ctx context.Context, c *models.BookingConfirmation) (int64, error) {
	query, args, err := psql.Insert("booking_confirmations").
		Columns("booking_id", "quote_item_id", "provider", "provider_booking_id", "confirmation_number",
			"booking_reference", "status", "requires_followup", "error_message", "raw_request", "raw_response",
			"amount", "currency", "reconfirmation_number", "provider_status").
		Values(c.BookingID, c.QuoteItemID, c.Provider, c.ProviderBookingID, c.ConfirmationNumber,
			c.BookingReference, c.Status, c.RequiresFollowup, c.ErrorMessage, jsonb(c.RawRequest), jsonb(c.RawResponse),
			c.Amount, c.Currency, c.ReconfirmationNumber, c.ProviderStatus).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return 0, err
	}

	if err := s.db.QueryRowxContext(ctx, query, args...).Scan(&c.ID, &c.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("booking %d item %d: %w", c.BookingID, c.QuoteItemID, ErrAlreadyConfirmed)
		}
		return 0, fmt.Errorf("failed to record confirmation: %w", err)
	}
	return c.ID, nil
}

// ListConfirmations returns every attempt recorded for a booking, oldest first
func (s *Store) ListConfirmations(ctx context.Context, bookingID int64) ([]models.BookingConfirmation, error) {
	query, args, err := psql.Select(confirmationColumns...).
		From("booking_confirmations").
		Where(sq.Eq{"booking_id": bookingID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}

	var out []models.BookingConfirmation
	err = s.db.SelectContext(ctx, &out, query, args...)
	return out, err
}

// ListAwaitingReconfirmation returns confirmed hotel bookings created since
// the given time that still have no hotel-issued confirmation number
func (s *Store) ListAwaitingReconfirmation(ctx context.Context, since time.Time, limit int) ([]models.BookingConfirmation, error) {
	query, args, err := psql.Select(confirmationColumns...).
		From("booking_confirmations").
		Where(sq.Eq{
			"provider":              models.ProviderHotel,
			"status":                models.ConfirmationConfirmed,
			"reconfirmation_number": nil,
		}).
		Where(sq.GtOrEq{"created_at": since}).
		Where(sq.NotEq{"provider_booking_id": ""}).
		OrderBy("created_at").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	var out []models.BookingConfirmation
	err = s.db.SelectContext(ctx, &out, query, args...)
	return out, err
}

// SetReconfirmation writes the hotel-issued number once. It reports false when
// the row already carries a reconfirmation number.
func (s *Store) SetReconfirmation(ctx context.Context, id int64, number, providerStatus string, modifiedAt *time.Time) (bool, error) {
	query, args, err := psql.Update("booking_confirmations").
		Set("reconfirmation_number", number).
		Set("provider_status", providerStatus).
		Set("provider_modified_at", modifiedAt).
		Set("reconfirmed_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "reconfirmation_number": nil}).
		ToSql()
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to set reconfirmation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
