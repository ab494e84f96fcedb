package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"booking-service/internal/models"
	"booking-service/internal/provider"
	"booking-service/internal/store"

	"github.com/google/uuid"
)

// memStore is an in-memory stand-in for the Postgres store
type memStore struct {
	mu sync.Mutex

	quotes        map[int64]*models.Quote
	customers     map[int64]*models.Customer
	bookings      map[int64]*models.Booking
	items         []models.BookingItem
	confirmations []models.BookingConfirmation
	payments      map[string]*models.Payment
	subscriptions map[uuid.UUID]*models.Subscription
	webhooks      map[string]*models.PaymentWebhookEvent
	nextID        int64
	converted     map[int64]bool

	failConfirmations bool
	// confirmedWriteErrors fails that many confirmed provider rows before succeeding
	confirmedWriteErrors int
	// onCreateBooking runs with the lock held before the key check
	onCreateBooking func(m *memStore, b *models.Booking)
}

func newMemStore() *memStore {
	return &memStore{
		quotes:        make(map[int64]*models.Quote),
		customers:     make(map[int64]*models.Customer),
		bookings:      make(map[int64]*models.Booking),
		payments:      make(map[string]*models.Payment),
		subscriptions: make(map[uuid.UUID]*models.Subscription),
		webhooks:      make(map[string]*models.PaymentWebhookEvent),
		converted:     make(map[int64]bool),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) GetQuoteForAgent(_ context.Context, quoteID int64, agentID uuid.UUID) (*models.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[quoteID]
	if !ok || q.AgentID != agentID {
		return nil, store.ErrNotFound
	}
	cp := *q
	cp.Customer = m.customers[q.CustomerID]
	return &cp, nil
}

func (m *memStore) MarkQuoteConverted(_ context.Context, quoteID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.quotes[quoteID]; ok {
		q.Status = models.QuoteStatusConverted
	}
	m.converted[quoteID] = true
	return nil
}

func (m *memStore) GetCustomerByID(_ context.Context, id int64) (*models.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (m *memStore) CreateBooking(_ context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.onCreateBooking != nil {
		m.onCreateBooking(m, b)
	}
	for _, existing := range m.bookings {
		if existing.IdempotencyKey == b.IdempotencyKey {
			return store.ErrDuplicateBooking
		}
	}
	b.ID = m.id()
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *memStore) CreateBookingItem(_ context.Context, item *models.BookingItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = m.id()
	m.items = append(m.items, *item)
	return nil
}

func (m *memStore) GetBookingByID(_ context.Context, id int64) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) GetBookingForAgent(ctx context.Context, id int64, agentID uuid.UUID) (*models.Booking, error) {
	b, err := m.GetBookingByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.AgentID != agentID {
		return nil, store.ErrNotFound
	}
	return b, nil
}

func (m *memStore) GetBookingByIdempotencyKey(_ context.Context, key string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bookings {
		if b.IdempotencyKey == key {
			cp := *b
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetBookingItems(_ context.Context, bookingID int64) ([]models.BookingItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.BookingItem
	for _, it := range m.items {
		if it.BookingID == bookingID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memStore) RecordConfirmation(_ context.Context, c *models.BookingConfirmation) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failConfirmations {
		return 0, errors.New("connection refused")
	}
	if m.confirmedWriteErrors > 0 && c.Status == models.ConfirmationConfirmed && c.Provider != models.ProviderManual {
		m.confirmedWriteErrors--
		return 0, errors.New("write timeout")
	}
	if c.Status == models.ConfirmationConfirmed {
		for _, existing := range m.confirmations {
			if existing.BookingID == c.BookingID && existing.QuoteItemID == c.QuoteItemID &&
				existing.Status == models.ConfirmationConfirmed {
				return 0, store.ErrAlreadyConfirmed
			}
		}
	}
	c.ID = m.id()
	c.CreatedAt = time.Now()
	m.confirmations = append(m.confirmations, *c)
	return c.ID, nil
}

func (m *memStore) ListConfirmations(_ context.Context, bookingID int64) ([]models.BookingConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.BookingConfirmation
	for _, c := range m.confirmations {
		if c.BookingID == bookingID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) ListAwaitingReconfirmation(_ context.Context, since time.Time, limit int) ([]models.BookingConfirmation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.BookingConfirmation
	for _, c := range m.confirmations {
		if c.Provider == models.ProviderHotel && c.Status == models.ConfirmationConfirmed &&
			c.ReconfirmationNumber == nil && c.ProviderBookingID != "" && !c.CreatedAt.Before(since) {
			out = append(out, c)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) SetReconfirmation(_ context.Context, id int64, number, providerStatus string, modifiedAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.confirmations {
		c := &m.confirmations[i]
		if c.ID != id {
			continue
		}
		if c.ReconfirmationNumber != nil {
			return false, nil
		}
		now := time.Now()
		c.ReconfirmationNumber = &number
		c.ProviderStatus = &providerStatus
		c.ProviderModifiedAt = modifiedAt
		c.ReconfirmedAt = &now
		return true, nil
	}
	return false, nil
}

func (m *memStore) CreatePayment(_ context.Context, p *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payments[p.ExternalPaymentIntentID]; ok {
		return nil
	}
	p.ID = m.id()
	cp := *p
	m.payments[p.ExternalPaymentIntentID] = &cp
	return nil
}

func (m *memStore) UpdatePaymentStatus(_ context.Context, intentID, status, failureMessage string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[intentID]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.Status = status
	p.FailureMessage = failureMessage
	cp := *p
	return &cp, nil
}

func (m *memStore) RecomputeBookingPayment(_ context.Context, bookingID int64) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return nil, store.ErrNotFound
	}
	var paid int64
	for _, p := range m.payments {
		if p.BookingID == bookingID && p.Status == models.PaymentSucceeded {
			paid += p.Amount
		}
	}
	b.AmountPaid = paid
	b.PaymentStatus = models.DerivePaymentStatus(paid, b.TotalPrice)
	cp := *b
	return &cp, nil
}

func (m *memStore) UpsertSubscription(_ context.Context, sub *models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.subscriptions[sub.AgentID]; ok {
		sub.ID = existing.ID
	} else {
		sub.ID = m.id()
	}
	cp := *sub
	m.subscriptions[sub.AgentID] = &cp
	return nil
}

func (m *memStore) GetSubscriptionByCustomerID(_ context.Context, customerID string) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subscriptions {
		if s.ExternalCustomerID == customerID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) GetSubscriptionByExternalID(_ context.Context, externalID string) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subscriptions {
		if s.ExternalSubscriptionID == externalID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) UpdateSubscriptionStatus(_ context.Context, externalID, status string) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subscriptions {
		if s.ExternalSubscriptionID == externalID {
			s.Status = status
			cp := *s
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) LogWebhookEvent(_ context.Context, eventID, eventType string, payload json.RawMessage) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.webhooks[eventID]; ok {
		e.Attempts++
		return e.Processed, nil
	}
	m.webhooks[eventID] = &models.PaymentWebhookEvent{EventID: eventID, EventType: eventType, Payload: payload, Attempts: 1}
	return false, nil
}

func (m *memStore) IsWebhookEventProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.webhooks[eventID]
	return ok && e.Processed, nil
}

func (m *memStore) MarkWebhookEventProcessed(_ context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.webhooks[eventID]; ok {
		e.Processed = true
	}
	return nil
}

func (m *memStore) MarkWebhookEventFailed(_ context.Context, eventID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.webhooks[eventID]; ok {
		e.ErrorMessage = &message
	}
	return nil
}

func (m *memStore) confirmationsFor(bookingID int64) []models.BookingConfirmation {
	out, _ := m.ListConfirmations(context.Background(), bookingID)
	return out
}

// memLocker is an in-process lock table
type memLocker struct {
	mu    sync.Mutex
	held  map[string]string
	err   error
	calls int
	// beforeAcquire runs once, outside the lock table, ahead of the next acquire
	beforeAcquire func(key string)
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]string)}
}

func (l *memLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	hook := l.beforeAcquire
	l.beforeAcquire = nil
	l.mu.Unlock()
	if hook != nil {
		hook(key)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return "", false, l.err
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	token := uuid.NewString()
	l.held[key] = token
	return token, true, nil
}

func (l *memLocker) ReleaseLock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func (l *memLocker) ExtendLock(_ context.Context, key, token string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[key] == token, nil
}

func (l *memLocker) hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = "someone-else"
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu            sync.Mutex
	created       []*models.BookingCreatedEvent
	items         []*models.BookingItemEvent
	reconfirmed   []*models.BookingItemReconfirmedEvent
	notifications []*models.NotificationEvent
}

func (p *recordingPublisher) PublishBookingCreated(_ context.Context, e *models.BookingCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *recordingPublisher) PublishBookingItem(_ context.Context, e *models.BookingItemEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.items = append(p.items, e)
	return nil
}

func (p *recordingPublisher) PublishBookingItemReconfirmed(_ context.Context, e *models.BookingItemReconfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reconfirmed = append(p.reconfirmed, e)
	return nil
}

func (p *recordingPublisher) PublishNotification(_ context.Context, e *models.NotificationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, e)
	return nil
}

// fakeHotel scripts hotel provider responses
type fakeHotel struct {
	mu       sync.Mutex
	booked   []provider.HotelBookingRequest
	lookups  []string
	book     func(req provider.HotelBookingRequest) (*provider.HotelBooking, error)
	bookings map[string]*provider.HotelBooking
	onLookup func()
}

func (h *fakeHotel) Book(_ context.Context, req provider.HotelBookingRequest) (*provider.HotelBooking, provider.Exchange, error) {
	h.mu.Lock()
	h.booked = append(h.booked, req)
	h.mu.Unlock()

	body, _ := json.Marshal(req)
	ex := provider.Exchange{Request: body}
	if h.book == nil {
		hb := &provider.HotelBooking{Reference: "102-" + req.Rooms[0].RateKey, Status: "CONFIRMED"}
		ex.Response, _ = json.Marshal(map[string]*provider.HotelBooking{"booking": hb})
		return hb, ex, nil
	}
	hb, err := h.book(req)
	if err != nil {
		ex.Response = json.RawMessage(`{"error":{"message":"` + provider.Message(err) + `"}}`)
	} else {
		ex.Response, _ = json.Marshal(map[string]*provider.HotelBooking{"booking": hb})
	}
	return hb, ex, err
}

func (h *fakeHotel) GetBooking(_ context.Context, reference string) (*provider.HotelBooking, error) {
	h.mu.Lock()
	h.lookups = append(h.lookups, reference)
	hb, ok := h.bookings[reference]
	onLookup := h.onLookup
	h.mu.Unlock()

	if onLookup != nil {
		onLookup()
	}
	if !ok {
		return nil, &provider.Error{Provider: models.ProviderHotel, StatusCode: 404, Message: "Booking not found"}
	}
	return hb, nil
}

func (h *fakeHotel) bookCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.booked)
}

// fakeFlight scripts flight provider responses
type fakeFlight struct {
	mu     sync.Mutex
	orders []provider.FlightOrderRequest
	err    error
}

func (f *fakeFlight) CreateOrder(_ context.Context, req provider.FlightOrderRequest) (*provider.FlightOrder, provider.Exchange, error) {
	f.mu.Lock()
	f.orders = append(f.orders, req)
	f.mu.Unlock()

	body, _ := json.Marshal(req)
	if f.err != nil {
		return nil, provider.Exchange{Request: body, Response: json.RawMessage(`{"errors":[]}`)}, f.err
	}
	return &provider.FlightOrder{
		ID:               "ord_0000A3tQSmKyqOrcySrGbo",
		BookingReference: "RZPNX8",
		TotalAmount:      req.Data.Payments[0].Amount,
		TotalCurrency:    req.Data.Payments[0].Currency,
	}, provider.Exchange{Request: body}, nil
}

func (f *fakeFlight) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}
