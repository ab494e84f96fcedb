package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"booking-service/internal/models"
)

// CreatePayment records a payment against a booking. An existing row for the
// same intent id is left untouched.
func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) error {
	query := `
		INSERT INTO payments (booking_id, external_payment_intent_id, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_payment_intent_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		p.BookingID, p.ExternalPaymentIntentID, p.Amount, p.Currency, p.Status)
	return err
}

// UpdatePaymentStatus sets the status of the payment for an intent id
func (s *Store) UpdatePaymentStatus(ctx context.Context, intentID, status, failureMessage string) (*models.Payment, error) {
	var p models.Payment
	err := s.db.GetContext(ctx, &p, `
		UPDATE payments SET status = $1, failure_message = $2, updated_at = NOW()
		WHERE external_payment_intent_id = $3
		RETURNING id, booking_id, external_payment_intent_id, amount, currency, status, failure_message, created_at, updated_at`,
		status, failureMessage, intentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment %s: %w", intentID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// RecomputeBookingPayment derives amount_paid and payment_status from the
// booking's succeeded payments
func (s *Store) RecomputeBookingPayment(ctx context.Context, bookingID int64) (*models.Booking, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var b models.Booking
	err = tx.GetContext(ctx, &b, "SELECT "+bookingColumns+" FROM bookings WHERE id = $1 FOR UPDATE", bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", bookingID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	var paid int64
	if err := tx.GetContext(ctx, &paid,
		"SELECT COALESCE(SUM(amount), 0) FROM payments WHERE booking_id = $1 AND status = $2",
		bookingID, models.PaymentSucceeded); err != nil {
		return nil, fmt.Errorf("failed to sum payments: %w", err)
	}

	b.AmountPaid = paid
	b.PaymentStatus = models.DerivePaymentStatus(paid, b.TotalPrice)

	if _, err := tx.ExecContext(ctx,
		"UPDATE bookings SET amount_paid = $1, payment_status = $2, updated_at = NOW() WHERE id = $3",
		b.AmountPaid, b.PaymentStatus, bookingID); err != nil {
		return nil, fmt.Errorf("failed to update booking payment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &b, nil
}
