package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"booking-service/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(sqlx.NewDb(db, "postgres")), mock
}

var bookingCols = []string{
	"id", "reference", "quote_id", "customer_id", "agent_id", "status", "total_price", "amount_paid",
	"payment_status", "payment_reference", "currency", "idempotency_key", "travel_start", "travel_end",
	"created_at", "updated_at",
}

func TestGetQuoteForAgent(t *testing.T) {
	s, mock := newMockStore(t)
	agentID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`FROM quotes WHERE id = \$1 AND agent_id = \$2`).
		WithArgs(int64(7), agentID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "status", "customer_id", "agent_id", "trip_start", "trip_end", "currency", "created_at", "updated_at",
		}).AddRow(7, models.QuoteStatusSent, 3, agentID.String(), nil, nil, "USD", now, now))

	mock.ExpectQuery(`FROM customers WHERE id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "last_name", "email", "phone", "created_at"}).
			AddRow(3, "Ada", "Lovelace", "ada@example.com", "", now))

	mock.ExpectQuery(`FROM quote_items WHERE quote_id = \$1 ORDER BY id`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "quote_id", "item_type", "name", "cost", "quantity", "details", "created_at"}).
			AddRow(10, 7, models.ItemTypeHotel, "Hotel Lisboa", 15000, 2, []byte(`{"rateKey":"RK123"}`), now).
			AddRow(11, 7, models.ItemTypeTour, "City walk", 4000, 1, []byte(`{}`), now))

	quote, err := s.GetQuoteForAgent(context.Background(), 7, agentID)
	require.NoError(t, err)

	assert.Equal(t, agentID, quote.AgentID)
	assert.Equal(t, "Ada Lovelace", quote.Customer.FullName())
	require.Len(t, quote.Items, 2)
	assert.Equal(t, int64(30000), quote.Items[0].LineTotal())
	assert.JSONEq(t, `{"rateKey":"RK123"}`, string(quote.Items[0].Details))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetQuoteForAgent_NotOwned(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM quotes WHERE id = \$1 AND agent_id = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	quote, err := s.GetQuoteForAgent(context.Background(), 7, uuid.New())
	assert.Nil(t, quote)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBooking(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	b := &models.Booking{
		Reference:        "BKG-TEST-ABCDE",
		QuoteID:          7,
		CustomerID:       3,
		AgentID:          uuid.New(),
		Status:           models.BookingStatusConfirmed,
		TotalPrice:       34000,
		PaymentStatus:    models.PaymentStatusUnpaid,
		PaymentReference: "pi_123",
		Currency:         "USD",
		IdempotencyKey:   "quote:7:agent:x",
	}

	mock.ExpectQuery(`INSERT INTO bookings`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(42, now, now))

	require.NoError(t, s.CreateBooking(context.Background(), b))
	assert.Equal(t, int64(42), b.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBooking_DuplicateKey(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO bookings`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := s.CreateBooking(context.Background(), &models.Booking{IdempotencyKey: "quote:7:agent:x"})
	assert.ErrorIs(t, err, ErrDuplicateBooking)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBookingByIdempotencyKey_Missing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM bookings WHERE idempotency_key = \$1`).
		WithArgs("quote:1:agent:x").
		WillReturnRows(sqlmock.NewRows(bookingCols))

	_, err := s.GetBookingByIdempotencyKey(context.Background(), "quote:1:agent:x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateBookingItem_EmptyDetails(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO booking_items`).
		WithArgs(int64(42), int64(11), models.ItemTypeTour, "City walk", int64(4000), 1, []byte("{}")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, time.Now()))

	item := &models.BookingItem{BookingID: 42, QuoteItemID: 11, ItemType: models.ItemTypeTour, Name: "City walk", Cost: 4000, Quantity: 1}
	require.NoError(t, s.CreateBookingItem(context.Background(), item))
	assert.Equal(t, int64(1), item.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordConfirmation(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO booking_confirmations`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(5, time.Now()))

	c := &models.BookingConfirmation{
		BookingID:   42,
		QuoteItemID: 10,
		Provider:    models.ProviderManual,
		Status:      models.ConfirmationConfirmed,
		RawResponse: json.RawMessage(`{"requires_agent_followup":true}`),
	}
	id, err := s.RecordConfirmation(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.Equal(t, int64(5), c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordConfirmation_SecondConfirmedRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO booking_confirmations`).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := s.RecordConfirmation(context.Background(), &models.BookingConfirmation{
		BookingID: 42, QuoteItemID: 10, Provider: models.ProviderHotel, Status: models.ConfirmationConfirmed,
	})
	assert.ErrorIs(t, err, ErrAlreadyConfirmed)
}

func TestListAwaitingReconfirmation(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Now().Add(-30 * 24 * time.Hour)

	mock.ExpectQuery(`FROM booking_confirmations WHERE .*reconfirmation_number IS NULL.* ORDER BY created_at LIMIT 200`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "booking_id", "quote_item_id", "provider", "provider_booking_id", "status"}).
			AddRow(5, 42, 10, models.ProviderHotel, "1-3887291", models.ConfirmationConfirmed))

	rows, err := s.ListAwaitingReconfirmation(context.Background(), since, 200)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1-3887291", rows[0].ProviderBookingID)
	assert.Nil(t, rows[0].ReconfirmationNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetReconfirmation_WriteOnce(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE booking_confirmations SET .* WHERE .*reconfirmation_number IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE booking_confirmations SET .* WHERE .*reconfirmation_number IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := s.SetReconfirmation(context.Background(), 5, "HB-998877", "CONFIRMED", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetReconfirmation(context.Background(), 5, "HB-000000", "CONFIRMED", nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogWebhookEvent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO payment_webhook_events .* ON CONFLICT \(event_id\) DO UPDATE`).
		WithArgs("evt_1", "invoice.payment_succeeded", []byte(`{"id":"evt_1"}`)).
		WillReturnRows(sqlmock.NewRows([]string{"processed"}).AddRow(false))
	mock.ExpectQuery(`INSERT INTO payment_webhook_events`).
		WithArgs("evt_1", "invoice.payment_succeeded", []byte(`{"id":"evt_1"}`)).
		WillReturnRows(sqlmock.NewRows([]string{"processed"}).AddRow(true))

	processed, err := s.LogWebhookEvent(context.Background(), "evt_1", "invoice.payment_succeeded", json.RawMessage(`{"id":"evt_1"}`))
	require.NoError(t, err)
	assert.False(t, processed)

	processed, err = s.LogWebhookEvent(context.Background(), "evt_1", "invoice.payment_succeeded", json.RawMessage(`{"id":"evt_1"}`))
	require.NoError(t, err)
	assert.True(t, processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsWebhookEventProcessed(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT processed FROM payment_webhook_events WHERE event_id = \$1`).
		WithArgs("evt_1").
		WillReturnRows(sqlmock.NewRows([]string{"processed"}).AddRow(true))

	processed, err := s.IsWebhookEventProcessed(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.True(t, processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecomputeBookingPayment(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings WHERE id = \$1 FOR UPDATE`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(bookingCols).AddRow(
			42, "BKG-1", 7, 3, uuid.New().String(), models.BookingStatusConfirmed, 10000, 0,
			models.PaymentStatusUnpaid, "pi_1", "USD", "quote:7:agent:x", nil, nil, now, now))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount\), 0\) FROM payments`).
		WithArgs(int64(42), models.PaymentSucceeded).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(6000))
	mock.ExpectExec(`UPDATE bookings SET amount_paid`).
		WithArgs(int64(6000), models.PaymentStatusPartiallyPaid, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	b, err := s.RecomputeBookingPayment(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), b.AmountPaid)
	assert.Equal(t, models.PaymentStatusPartiallyPaid, b.PaymentStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdatePaymentStatus_UnknownIntent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE payments SET status`).
		WithArgs(models.PaymentSucceeded, "", "pi_missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.UpdatePaymentStatus(context.Background(), "pi_missing", models.PaymentSucceeded, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProcessedEvents(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("evt-9").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO processed_events`).WithArgs("evt-9", models.EventTypeNotification).
		WillReturnResult(sqlmock.NewResult(0, 1))

	done, err := s.IsEventProcessed(context.Background(), "evt-9")
	require.NoError(t, err)
	assert.False(t, done)
	require.NoError(t, s.MarkEventProcessed(context.Background(), "evt-9", models.EventTypeNotification))
	assert.NoError(t, mock.ExpectationsWereMet())
}
