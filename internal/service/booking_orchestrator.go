package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"booking-service/internal/broker"
	"booking-service/internal/models"
	"booking-service/internal/provider"
	"booking-service/internal/store"
	"booking-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxPaymentReferenceLen = 255

var paymentReferencePattern = regexp.MustCompile(`^[A-Za-z0-9_\-:.]+$`)

// OrchestratorConfig tunes booking creation
type OrchestratorConfig struct {
	DefaultCurrency     string
	DispatchConcurrency int
	LockTTL             time.Duration
}

// BookingOrchestrator converts quotes into bookings and dispatches every item
type BookingOrchestrator struct {
	quotes        QuoteRepository
	bookings      BookingRepository
	confirmations ConfirmationStore
	payments      PaymentStore
	locker        Locker
	publisher     EventPublisher
	hotel         *HotelAdapter
	flight        *FlightAdapter
	manual        *ManualFallbackHandler
	cfg           OrchestratorConfig
	logger        *zap.Logger
	now           func() time.Time
}

// NewBookingOrchestrator creates a new booking orchestrator
func NewBookingOrchestrator(
	quotes QuoteRepository,
	bookings BookingRepository,
	confirmations ConfirmationStore,
	payments PaymentStore,
	locker Locker,
	publisher EventPublisher,
	hotel *HotelAdapter,
	flight *FlightAdapter,
	manual *ManualFallbackHandler,
	cfg OrchestratorConfig,
) *BookingOrchestrator {
	if cfg.DispatchConcurrency < 1 {
		cfg.DispatchConcurrency = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	return &BookingOrchestrator{
		quotes:        quotes,
		bookings:      bookings,
		confirmations: confirmations,
		payments:      payments,
		locker:        locker,
		publisher:     publisher,
		hotel:         hotel,
		flight:        flight,
		manual:        manual,
		cfg:           cfg,
		logger:        util.GetLogger(),
		now:           time.Now,
	}
}

// CustomerInfo overrides the quote customer's contact details for this booking
type CustomerInfo struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// CreateBookingRequest represents a request to convert a quote
type CreateBookingRequest struct {
	QuoteID          int64
	PaymentReference string
	AgentID          uuid.UUID
	CustomerInfo     *CustomerInfo
}

// Validate checks the request shape before anything is loaded
func (r CreateBookingRequest) Validate() error {
	if r.QuoteID <= 0 {
		return fmt.Errorf("%w: quoteId must be positive", ErrInvalidInput)
	}
	if r.AgentID == uuid.Nil {
		return fmt.Errorf("%w: agent is required", ErrInvalidInput)
	}
	if r.PaymentReference == "" {
		return fmt.Errorf("%w: paymentReference is required", ErrInvalidInput)
	}
	if len(r.PaymentReference) > maxPaymentReferenceLen {
		return fmt.Errorf("%w: paymentReference exceeds %d characters", ErrInvalidInput, maxPaymentReferenceLen)
	}
	if !paymentReferencePattern.MatchString(r.PaymentReference) {
		return fmt.Errorf("%w: paymentReference contains invalid characters", ErrInvalidInput)
	}
	return nil
}

// ItemResult is the outcome of dispatching one quote item
type ItemResult struct {
	QuoteItemID        int64  `json:"quote_item_id"`
	ItemType           string `json:"item_type"`
	Name               string `json:"name"`
	Provider           string `json:"provider"`
	Status             string `json:"status"`
	ConfirmationID     int64  `json:"confirmation_id,omitempty"`
	ConfirmationNumber string `json:"confirmation_number,omitempty"`
	RequiresFollowup   bool   `json:"requires_agent_followup"`
	FallbackReason     string `json:"fallback_reason,omitempty"`
	Error              string `json:"error,omitempty"`
}

// Summary counts item outcomes
type Summary struct {
	Total     int `json:"total"`
	Confirmed int `json:"confirmed"`
	Followup  int `json:"requires_followup"`
	Failed    int `json:"failed"`
}

// CreateBookingResult is the booking with its per-item outcomes
type CreateBookingResult struct {
	Booking  *models.Booking `json:"booking"`
	Items    []ItemResult    `json:"confirmations"`
	Summary  Summary         `json:"summary"`
	Replayed bool            `json:"replayed"`
}

func summarize(items []ItemResult) Summary {
	s := Summary{Total: len(items)}
	for _, it := range items {
		switch {
		case it.Status == models.ConfirmationFailed:
			s.Failed++
		case it.RequiresFollowup:
			s.Followup++
		default:
			s.Confirmed++
		}
	}
	return s
}

// CreateBooking converts a quote into a booking. Repeating the call for the
// same quote and agent returns the existing booking without dispatching again.
func (o *BookingOrchestrator) CreateBooking(ctx context.Context, req CreateBookingRequest) (*CreateBookingResult, error) {
	ctx, span := util.StartSpan(ctx, "BookingOrchestrator.CreateBooking")
	defer span.End()

	if err := req.Validate(); err != nil {
		util.BookingsRejectedTotal.WithLabelValues("invalid_input").Inc()
		return nil, err
	}

	key := IdempotencyKey(req.QuoteID, req.AgentID)
	lockKey := "conversion:" + key

	token, acquired, err := o.locker.AcquireLock(ctx, lockKey, o.cfg.LockTTL)
	switch {
	case err != nil:
		o.logger.Warn("Conversion lock unavailable, relying on idempotency key",
			zap.String("idempotency_key", key), zap.Error(err))
	case !acquired:
		util.BookingsRejectedTotal.WithLabelValues("in_progress").Inc()
		return nil, ErrConversionInProgress
	default:
		defer func() {
			if err := o.locker.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
				o.logger.Warn("Failed to release conversion lock", zap.String("key", lockKey), zap.Error(err))
			}
		}()
	}

	existing, err := o.bookings.GetBookingByIdempotencyKey(ctx, key)
	switch {
	case err == nil:
		o.logger.Info("Duplicate booking request detected",
			zap.String("idempotency_key", key),
			zap.Int64("booking_id", existing.ID))
		util.BookingsReplayedTotal.Inc()
		return o.replay(ctx, existing)
	case !errors.Is(err, store.ErrNotFound):
		return nil, fmt.Errorf("%w: check idempotency: %v", ErrPersistence, err)
	}

	quote, err := o.quotes.GetQuoteForAgent(ctx, req.QuoteID, req.AgentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.BookingsRejectedTotal.WithLabelValues("not_found").Inc()
			return nil, fmt.Errorf("%w: quote %d", ErrNotFound, req.QuoteID)
		}
		return nil, fmt.Errorf("%w: load quote: %v", ErrPersistence, err)
	}
	if quote.Status == models.QuoteStatusConverted {
		util.BookingsRejectedTotal.WithLabelValues("converted").Inc()
		return nil, fmt.Errorf("%w: quote %d", ErrQuoteConverted, quote.ID)
	}
	if len(quote.Items) == 0 {
		util.BookingsRejectedTotal.WithLabelValues("no_items").Inc()
		return nil, fmt.Errorf("%w: quote %d has no items", ErrInvalidInput, quote.ID)
	}

	customer := mergeCustomer(quote.Customer, req.CustomerInfo)

	booking := &models.Booking{
		Reference:        NewBookingReference(o.now()),
		QuoteID:          quote.ID,
		CustomerID:       quote.CustomerID,
		AgentID:          req.AgentID,
		Status:           models.BookingStatusConfirmed,
		TotalPrice:       quoteTotal(quote.Items),
		AmountPaid:       0,
		PaymentStatus:    models.PaymentStatusUnpaid,
		PaymentReference: req.PaymentReference,
		Currency:         quote.Currency,
		IdempotencyKey:   key,
		TravelStart:      quote.TripStart,
		TravelEnd:        quote.TripEnd,
	}
	if booking.Currency == "" {
		booking.Currency = o.cfg.DefaultCurrency
	}

	if err := o.bookings.CreateBooking(ctx, booking); err != nil {
		if errors.Is(err, store.ErrDuplicateBooking) {
			// Lost a race without the conversion lock; the winner's booking stands.
			winner, lookupErr := o.bookings.GetBookingByIdempotencyKey(ctx, key)
			if lookupErr == nil {
				o.logger.Info("Concurrent conversion already created the booking",
					zap.String("idempotency_key", key),
					zap.Int64("booking_id", winner.ID))
				util.BookingsReplayedTotal.Inc()
				return o.replay(ctx, winner)
			}
			err = lookupErr
		}
		util.SpanError(span, err)
		return nil, fmt.Errorf("%w: create booking: %v", ErrPersistence, err)
	}

	util.BookingsCreatedTotal.Inc()
	o.logger.Info("Booking created",
		zap.Int64("booking_id", booking.ID),
		zap.String("reference", booking.Reference),
		zap.Int64("quote_id", quote.ID),
		zap.Int64("total_price", booking.TotalPrice))

	// Recording must survive a client disconnect from here on.
	dctx := context.WithoutCancel(ctx)

	o.copyItems(dctx, booking, quote.Items)
	o.recordPendingPayment(dctx, booking)

	results := o.dispatchAll(dctx, booking, quote.Items, customer)

	if err := o.quotes.MarkQuoteConverted(dctx, quote.ID); err != nil {
		o.logger.Error("Failed to mark quote converted",
			zap.Int64("quote_id", quote.ID),
			zap.Int64("booking_id", booking.ID),
			zap.Error(err))
	}

	o.publishCreated(dctx, booking, results)

	return &CreateBookingResult{
		Booking: booking,
		Items:   results,
		Summary: summarize(results),
	}, nil
}

// GetBooking returns a booking owned by agentID with every recorded attempt
func (o *BookingOrchestrator) GetBooking(ctx context.Context, bookingID int64, agentID uuid.UUID) (*models.Booking, []models.BookingConfirmation, error) {
	ctx, span := util.StartSpan(ctx, "BookingOrchestrator.GetBooking")
	defer span.End()

	booking, err := o.bookings.GetBookingForAgent(ctx, bookingID, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: booking %d", ErrNotFound, bookingID)
		}
		return nil, nil, fmt.Errorf("%w: load booking: %v", ErrPersistence, err)
	}

	confirmations, err := o.confirmations.ListConfirmations(ctx, booking.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: list confirmations: %v", ErrPersistence, err)
	}
	return booking, confirmations, nil
}

func quoteTotal(items []models.QuoteItem) int64 {
	var total int64
	for i := range items {
		total += items[i].LineTotal()
	}
	return total
}

func mergeCustomer(base *models.Customer, info *CustomerInfo) *models.Customer {
	if info == nil {
		return base
	}
	merged := models.Customer{}
	if base != nil {
		merged = *base
	}
	if info.FirstName != "" {
		merged.FirstName = info.FirstName
	}
	if info.LastName != "" {
		merged.LastName = info.LastName
	}
	if info.Email != "" {
		merged.Email = info.Email
	}
	if info.Phone != "" {
		merged.Phone = info.Phone
	}
	return &merged
}

// copyItems snapshots quote items onto the booking. A failed copy is logged
// and does not stop the booking.
func (o *BookingOrchestrator) copyItems(ctx context.Context, booking *models.Booking, items []models.QuoteItem) {
	for _, qi := range items {
		bi := &models.BookingItem{
			BookingID:   booking.ID,
			QuoteItemID: qi.ID,
			ItemType:    qi.ItemType,
			Name:        qi.Name,
			Cost:        qi.Cost,
			Quantity:    qi.Quantity,
			Details:     qi.Details,
		}
		if err := o.bookings.CreateBookingItem(ctx, bi); err != nil {
			util.BookingItemCopyFailures.Inc()
			o.logger.Error("Failed to copy quote item to booking",
				zap.Int64("booking_id", booking.ID),
				zap.Int64("quote_item_id", qi.ID),
				zap.Error(err))
		}
	}
}

func (o *BookingOrchestrator) recordPendingPayment(ctx context.Context, booking *models.Booking) {
	p := &models.Payment{
		BookingID:               booking.ID,
		ExternalPaymentIntentID: booking.PaymentReference,
		Amount:                  booking.TotalPrice,
		Currency:                booking.Currency,
		Status:                  models.PaymentPending,
	}
	if err := o.payments.CreatePayment(ctx, p); err != nil {
		o.logger.Error("Failed to record pending payment",
			zap.Int64("booking_id", booking.ID),
			zap.String("payment_reference", booking.PaymentReference),
			zap.Error(err))
	}
}

// dispatchAll runs every item through its route with bounded concurrency.
// Results are returned in quote item order.
func (o *BookingOrchestrator) dispatchAll(ctx context.Context, booking *models.Booking, items []models.QuoteItem, customer *models.Customer) []ItemResult {
	results := make([]ItemResult, len(items))
	sem := make(chan struct{}, o.cfg.DispatchConcurrency)
	var wg sync.WaitGroup

	for i := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = o.dispatch(ctx, booking, items[i], customer)
		}(i)
	}
	wg.Wait()

	return results
}

func (o *BookingOrchestrator) dispatch(ctx context.Context, booking *models.Booking, item models.QuoteItem, customer *models.Customer) ItemResult {
	details, err := models.ParseItemDetails(item.ItemType, item.Details)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, models.ErrUnknownItemType) {
			reason = ReasonNoProvider(item.ItemType)
		}
		return o.fallback(ctx, booking, item, customer, reason)
	}

	switch d := details.(type) {
	case models.HotelDetails:
		if !d.HasRateKey() {
			return o.fallback(ctx, booking, item, customer, ReasonNoRateKey)
		}
		conf, err := o.hotel.BookHotel(ctx, booking, item, d, customer)
		if err != nil {
			return o.providerFailed(ctx, booking, item, customer, models.ProviderHotel, err)
		}
		return o.confirmed(item, conf)

	case models.FlightDetails:
		if !d.HasCompleteOffer() {
			return o.fallback(ctx, booking, item, customer, ReasonMissingOffer)
		}
		conf, err := o.flight.BookFlight(ctx, booking, item, d, customer)
		if err != nil {
			return o.providerFailed(ctx, booking, item, customer, models.ProviderFlight, err)
		}
		return o.confirmed(item, conf)
	}

	return o.fallback(ctx, booking, item, customer, ReasonNoProvider(item.ItemType))
}

func (o *BookingOrchestrator) confirmed(item models.QuoteItem, conf *models.BookingConfirmation) ItemResult {
	util.BookingItemsDispatchedTotal.WithLabelValues(conf.Provider, "confirmed").Inc()
	return ItemResult{
		QuoteItemID:        item.ID,
		ItemType:           item.ItemType,
		Name:               item.Name,
		Provider:           conf.Provider,
		Status:             conf.Status,
		ConfirmationID:     conf.ID,
		ConfirmationNumber: conf.ConfirmationNumber,
	}
}

func (o *BookingOrchestrator) fallback(ctx context.Context, booking *models.Booking, item models.QuoteItem, customer *models.Customer, reason string) ItemResult {
	result := ItemResult{
		QuoteItemID:      item.ID,
		ItemType:         item.ItemType,
		Name:             item.Name,
		Provider:         models.ProviderManual,
		RequiresFollowup: true,
		FallbackReason:   reason,
	}

	conf, err := o.manual.CreateManualConfirmation(ctx, booking, item, customer, reason)
	if err != nil {
		util.BookingItemsDispatchedTotal.WithLabelValues(models.ProviderManual, "failed").Inc()
		result.Status = models.ConfirmationFailed
		result.Error = err.Error()
		return result
	}

	util.BookingItemsDispatchedTotal.WithLabelValues(models.ProviderManual, "fallback").Inc()
	result.Status = conf.Status
	result.ConfirmationID = conf.ID
	result.ConfirmationNumber = conf.ConfirmationNumber
	return result
}

// providerFailed degrades a failed provider call to a manual confirmation.
// The item still reports failed with the provider's own message.
func (o *BookingOrchestrator) providerFailed(ctx context.Context, booking *models.Booking, item models.QuoteItem, customer *models.Customer, providerName string, cause error) ItemResult {
	message := provider.Message(cause)
	result := ItemResult{
		QuoteItemID:      item.ID,
		ItemType:         item.ItemType,
		Name:             item.Name,
		Provider:         providerName,
		Status:           models.ConfirmationFailed,
		RequiresFollowup: true,
		FallbackReason:   ReasonProviderError(message),
		Error:            message,
	}

	// Booked at the provider: the agent has to record it, not book it again.
	var unrecorded *UnrecordedBookingError
	if errors.As(cause, &unrecorded) {
		util.BookingItemsDispatchedTotal.WithLabelValues(providerName, "unrecorded").Inc()
		result.Status = models.ConfirmationPending
		result.ConfirmationNumber = unrecorded.ProviderBookingID
		result.FallbackReason = ReasonUnrecorded(unrecorded.ProviderBookingID)
		result.Error = cause.Error()
	} else {
		util.BookingItemsDispatchedTotal.WithLabelValues(providerName, "failed").Inc()
	}

	conf, err := o.manual.CreateManualConfirmation(ctx, booking, item, customer, result.FallbackReason)
	if err != nil {
		o.logger.Error("Manual fallback after provider error failed",
			zap.Int64("booking_id", booking.ID),
			zap.Int64("quote_item_id", item.ID),
			zap.Error(err))
		return result
	}
	result.ConfirmationID = conf.ID
	if unrecorded == nil {
		result.ConfirmationNumber = conf.ConfirmationNumber
	}
	return result
}

// replay rebuilds item results from what was recorded for an existing booking
func (o *BookingOrchestrator) replay(ctx context.Context, booking *models.Booking) (*CreateBookingResult, error) {
	confirmations, err := o.confirmations.ListConfirmations(ctx, booking.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: list confirmations: %v", ErrPersistence, err)
	}

	items, err := o.bookings.GetBookingItems(ctx, booking.ID)
	if err != nil {
		o.logger.Warn("Failed to load booking items for replay", zap.Int64("booking_id", booking.ID), zap.Error(err))
	}

	results := rebuildResults(items, confirmations)
	return &CreateBookingResult{
		Booking:  booking,
		Items:    results,
		Summary:  summarize(results),
		Replayed: true,
	}, nil
}

func rebuildResults(items []models.BookingItem, confirmations []models.BookingConfirmation) []ItemResult {
	type attempts struct {
		failed     *models.BookingConfirmation
		unrecorded *models.BookingConfirmation
		confirmed  *models.BookingConfirmation
	}

	order := make([]int64, 0)
	byItem := make(map[int64]*attempts)
	for _, bi := range items {
		if _, ok := byItem[bi.QuoteItemID]; !ok {
			byItem[bi.QuoteItemID] = &attempts{}
			order = append(order, bi.QuoteItemID)
		}
	}
	for i := range confirmations {
		c := &confirmations[i]
		a, ok := byItem[c.QuoteItemID]
		if !ok {
			a = &attempts{}
			byItem[c.QuoteItemID] = a
			order = append(order, c.QuoteItemID)
		}
		switch c.Status {
		case models.ConfirmationConfirmed:
			a.confirmed = c
		case models.ConfirmationFailed:
			if c.Provider != models.ProviderManual {
				a.failed = c
			}
		case models.ConfirmationPending:
			if c.Provider != models.ProviderManual {
				a.unrecorded = c
			}
		}
	}

	itemByID := make(map[int64]models.BookingItem, len(items))
	for _, bi := range items {
		itemByID[bi.QuoteItemID] = bi
	}

	results := make([]ItemResult, 0, len(order))
	for _, id := range order {
		a := byItem[id]
		bi := itemByID[id]
		r := ItemResult{QuoteItemID: id, ItemType: bi.ItemType, Name: bi.Name}

		switch {
		case a.unrecorded != nil && (a.confirmed == nil || a.confirmed.Provider == models.ProviderManual):
			r.Provider = a.unrecorded.Provider
			r.Status = models.ConfirmationPending
			r.ConfirmationNumber = a.unrecorded.ProviderBookingID
			r.Error = a.unrecorded.ErrorMessage
			r.RequiresFollowup = true
			r.FallbackReason = ReasonUnrecorded(a.unrecorded.ProviderBookingID)
			if a.confirmed != nil {
				r.ConfirmationID = a.confirmed.ID
			}
		case a.failed != nil && (a.confirmed == nil || a.confirmed.Provider == models.ProviderManual):
			r.Provider = a.failed.Provider
			r.Status = models.ConfirmationFailed
			r.Error = a.failed.ErrorMessage
			r.RequiresFollowup = a.confirmed != nil
			if a.confirmed != nil {
				r.ConfirmationID = a.confirmed.ID
				r.ConfirmationNumber = a.confirmed.ConfirmationNumber
				r.FallbackReason = fallbackReason(*a.confirmed)
			}
		case a.confirmed != nil:
			r.Provider = a.confirmed.Provider
			r.Status = a.confirmed.Status
			r.ConfirmationID = a.confirmed.ID
			r.ConfirmationNumber = a.confirmed.ConfirmationNumber
			r.RequiresFollowup = a.confirmed.RequiresFollowup
			if a.confirmed.Provider == models.ProviderManual {
				r.FallbackReason = fallbackReason(*a.confirmed)
			}
		default:
			r.Status = models.ConfirmationPending
		}
		results = append(results, r)
	}
	return results
}

func (o *BookingOrchestrator) publishCreated(ctx context.Context, booking *models.Booking, results []ItemResult) {
	created := &models.BookingCreatedEvent{
		BaseEvent:  broker.NewBaseEvent(models.EventTypeBookingCreated),
		BookingID:  booking.ID,
		Reference:  booking.Reference,
		QuoteID:    booking.QuoteID,
		AgentID:    booking.AgentID.String(),
		TotalPrice: booking.TotalPrice,
		ItemCount:  len(results),
	}
	if err := o.publisher.PublishBookingCreated(ctx, created); err != nil {
		o.logger.Error("Failed to publish BookingCreated event", zap.Int64("booking_id", booking.ID), zap.Error(err))
	}

	for _, r := range results {
		eventType := models.EventTypeBookingItemConfirmed
		if r.Status == models.ConfirmationFailed {
			eventType = models.EventTypeBookingItemFailed
		}
		event := &models.BookingItemEvent{
			BaseEvent:          broker.NewBaseEvent(eventType),
			BookingID:          booking.ID,
			QuoteItemID:        r.QuoteItemID,
			ConfirmationID:     r.ConfirmationID,
			Provider:           r.Provider,
			Status:             r.Status,
			ConfirmationNumber: r.ConfirmationNumber,
			RequiresFollowup:   r.RequiresFollowup,
			Error:              r.Error,
		}
		if err := o.publisher.PublishBookingItem(ctx, event); err != nil {
			o.logger.Error("Failed to publish booking item event",
				zap.Int64("booking_id", booking.ID),
				zap.Int64("quote_item_id", r.QuoteItemID),
				zap.Error(err))
		}
	}
}
