package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"booking-service/internal/models"

	"github.com/google/uuid"
)

const bookingColumns = `id, reference, quote_id, customer_id, agent_id, status, total_price, amount_paid,
	payment_status, payment_reference, currency, idempotency_key, travel_start, travel_end, created_at, updated_at`

// CreateBooking inserts a booking and fills in its id and timestamps.
// A second booking for the same idempotency key returns ErrDuplicateBooking.
func (s *Store) CreateBooking(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (reference, quote_id, customer_id, agent_id, status, total_price, amount_paid,
			payment_status, payment_reference, currency, idempotency_key, travel_start, travel_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRowxContext(ctx, query,
		b.Reference, b.QuoteID, b.CustomerID, b.AgentID, b.Status, b.TotalPrice, b.AmountPaid,
		b.PaymentStatus, b.PaymentReference, b.Currency, b.IdempotencyKey, b.TravelStart, b.TravelEnd,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("booking %s: %w", b.IdempotencyKey, ErrDuplicateBooking)
	}
	return err
}

// GetBookingByID retrieves a booking by ID
func (s *Store) GetBookingByID(ctx context.Context, id int64) (*models.Booking, error) {
	return s.getBooking(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = $1", id)
}

// GetBookingForAgent retrieves a booking owned by agentID
func (s *Store) GetBookingForAgent(ctx context.Context, id int64, agentID uuid.UUID) (*models.Booking, error) {
	return s.getBooking(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE id = $1 AND agent_id = $2", id, agentID)
}

// GetBookingByIdempotencyKey retrieves the booking created for a conversion key
func (s *Store) GetBookingByIdempotencyKey(ctx context.Context, key string) (*models.Booking, error) {
	return s.getBooking(ctx, "SELECT "+bookingColumns+" FROM bookings WHERE idempotency_key = $1", key)
}

func (s *Store) getBooking(ctx context.Context, query string, args ...interface{}) (*models.Booking, error) {
	var b models.Booking
	err := s.db.GetContext(ctx, &b, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBookingItem copies a quote item onto a booking
func (s *Store) CreateBookingItem(ctx context.Context, item *models.BookingItem) error {
	query := `
		INSERT INTO booking_items (booking_id, quote_item_id, item_type, name, cost, quantity, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return s.db.QueryRowxContext(ctx, query,
		item.BookingID, item.QuoteItemID, item.ItemType, item.Name, item.Cost, item.Quantity, jsonb(item.Details),
	).Scan(&item.ID, &item.CreatedAt)
}

// GetBookingItems retrieves all items copied onto a booking
func (s *Store) GetBookingItems(ctx context.Context, bookingID int64) ([]models.BookingItem, error) {
	var items []models.BookingItem
	err := s.db.SelectContext(ctx, &items,
		`SELECT id, booking_id, quote_item_id, item_type, name, cost, quantity, details, created_at
		 FROM booking_items WHERE booking_id = $1 ORDER BY id`, bookingID)
	return items, err
}
