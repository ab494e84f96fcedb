package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"booking-service/internal/broker"
	"booking-service/internal/models"
	"booking-service/internal/util"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const pollerLockKey = "poller:reconfirmation"

// PollerConfig tunes the reconfirmation poller
type PollerConfig struct {
	Interval  time.Duration
	Lookback  time.Duration
	Delay     time.Duration
	BatchSize int
	LockTTL   time.Duration
}

// PollStats summarises one poll cycle
type PollStats struct {
	Checked     int  `json:"checked"`
	Reconfirmed int  `json:"reconfirmed"`
	Pending     int  `json:"pending"`
	Errors      int  `json:"errors"`
	Skipped     bool `json:"skipped"`
}

// ReconfirmationPoller periodically asks the hotel provider for the hotel's
// own confirmation number and writes it back once
type ReconfirmationPoller struct {
	confirmations ConfirmationStore
	bookings      BookingRepository
	customers     QuoteRepository
	hotel         HotelAPI
	locker        Locker
	publisher     EventPublisher
	notifier      *Notifier
	cfg           PollerConfig
	logger        *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

// NewReconfirmationPoller creates a stopped poller
func NewReconfirmationPoller(
	confirmations ConfirmationStore,
	bookings BookingRepository,
	customers QuoteRepository,
	hotel HotelAPI,
	locker Locker,
	publisher EventPublisher,
	notifier *Notifier,
	cfg PollerConfig,
) *ReconfirmationPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Minute
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = 30 * 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &ReconfirmationPoller{
		confirmations: confirmations,
		bookings:      bookings,
		customers:     customers,
		hotel:         hotel,
		locker:        locker,
		publisher:     publisher,
		notifier:      notifier,
		cfg:           cfg,
		logger:        util.GetLogger(),
	}
}

// Start schedules poll cycles. Starting a running poller is a no-op.
func (p *ReconfirmationPoller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		p.logger.Info("Reconfirmation poller already running")
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := util.NewCronLogger(p.logger)
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	spec := fmt.Sprintf("@every %s", p.cfg.Interval)
	if _, err := c.AddFunc(spec, func() {
		if _, err := p.RunOnce(ctx); err != nil {
			p.logger.Error("Reconfirmation poll failed", zap.Error(err))
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule reconfirmation poller: %w", err)
	}

	c.Start()
	p.cron = c
	p.cancel = cancel
	p.running = true

	p.logger.Info("Reconfirmation poller started",
		zap.Duration("interval", p.cfg.Interval),
		zap.Duration("lookback", p.cfg.Lookback),
		zap.Int("batch_size", p.cfg.BatchSize))
	return nil
}

// Stop halts scheduling and waits for an in-flight cycle to return. Stopping
// a stopped poller is a no-op.
func (p *ReconfirmationPoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		p.logger.Info("Reconfirmation poller not running")
		return
	}
	p.running = false
	p.cancel()
	done := p.cron.Stop()
	p.mu.Unlock()

	<-done.Done()
	p.logger.Info("Reconfirmation poller stopped")
}

// Running reports whether cycles are scheduled
func (p *ReconfirmationPoller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// RunOnce performs a single poll cycle. Only one instance polls at a time;
// the others report Skipped. Without a reachable lock the cycle still runs,
// relying on the in-process single-flight of the scheduler.
func (p *ReconfirmationPoller) RunOnce(ctx context.Context) (PollStats, error) {
	ctx, span := util.StartSpan(ctx, "ReconfirmationPoller.RunOnce")
	defer span.End()

	var stats PollStats
	start := time.Now()
	defer func() {
		util.ReconfirmationPollDuration.Observe(time.Since(start).Seconds())
	}()

	token, acquired, err := p.locker.AcquireLock(ctx, pollerLockKey, p.cfg.LockTTL)
	locked := err == nil
	switch {
	case err != nil:
		p.logger.Warn("Poller lock unavailable, polling without it", zap.Error(err))
	case !acquired:
		util.ReconfirmationPollsTotal.WithLabelValues("skipped").Inc()
		stats.Skipped = true
		return stats, nil
	default:
		defer func() {
			if err := p.locker.ReleaseLock(context.WithoutCancel(ctx), pollerLockKey, token); err != nil {
				p.logger.Warn("Failed to release poller lock", zap.Error(err))
			}
		}()
	}

	since := time.Now().Add(-p.cfg.Lookback)
	rows, err := p.confirmations.ListAwaitingReconfirmation(ctx, since, p.cfg.BatchSize)
	if err != nil {
		util.ReconfirmationPollsTotal.WithLabelValues("error").Inc()
		util.SpanError(span, err)
		return stats, fmt.Errorf("%w: list awaiting reconfirmation: %v", ErrPersistence, err)
	}

	for i, row := range rows {
		if i > 0 && !p.pause(ctx) {
			p.logger.Info("Reconfirmation poll interrupted", zap.Int("checked", stats.Checked))
			break
		}

		stats.Checked++
		found, err := p.reconfirm(ctx, row)
		switch {
		case err != nil:
			stats.Errors++
			p.logger.Warn("Reconfirmation check failed",
				zap.Int64("confirmation_id", row.ID),
				zap.String("provider_booking_id", row.ProviderBookingID),
				zap.Error(err))
		case found:
			stats.Reconfirmed++
		default:
			stats.Pending++
		}

		if !locked {
			continue
		}
		if _, err := p.locker.ExtendLock(ctx, pollerLockKey, token, p.cfg.LockTTL); err != nil {
			p.logger.Warn("Failed to extend poller lock", zap.Error(err))
		}
	}

	util.ReconfirmationPollsTotal.WithLabelValues("completed").Inc()
	p.logger.Info("Reconfirmation poll completed",
		zap.Int("checked", stats.Checked),
		zap.Int("reconfirmed", stats.Reconfirmed),
		zap.Int("pending", stats.Pending),
		zap.Int("errors", stats.Errors))
	return stats, nil
}

// pause waits out the inter-request delay. It returns false when ctx ends first.
func (p *ReconfirmationPoller) pause(ctx context.Context) bool {
	if p.cfg.Delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(p.cfg.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (p *ReconfirmationPoller) reconfirm(ctx context.Context, row models.BookingConfirmation) (bool, error) {
	hb, err := p.hotel.GetBooking(ctx, row.ProviderBookingID)
	if err != nil {
		return false, err
	}

	number := hb.ConfirmationNumber()
	if number == "" {
		return false, nil
	}

	written, err := p.confirmations.SetReconfirmation(ctx, row.ID, number, hb.Status, hb.ModifiedAt())
	if err != nil {
		return false, err
	}
	if !written {
		return false, nil
	}

	util.ReconfirmationsFoundTotal.Inc()
	p.logger.Info("Hotel reconfirmation recorded",
		zap.Int64("booking_id", row.BookingID),
		zap.Int64("confirmation_id", row.ID),
		zap.String("reconfirmation_number", number))

	event := &models.BookingItemReconfirmedEvent{
		BaseEvent:            broker.NewBaseEvent(models.EventTypeBookingItemReconfirmed),
		BookingID:            row.BookingID,
		ConfirmationID:       row.ID,
		ReconfirmationNumber: number,
		ProviderStatus:       hb.Status,
	}
	if err := p.publisher.PublishBookingItemReconfirmed(ctx, event); err != nil {
		p.logger.Error("Failed to publish reconfirmation event", zap.Int64("confirmation_id", row.ID), zap.Error(err))
	}

	p.notifyCustomer(ctx, row, number)
	return true, nil
}

func (p *ReconfirmationPoller) notifyCustomer(ctx context.Context, row models.BookingConfirmation, number string) {
	booking, err := p.bookings.GetBookingByID(ctx, row.BookingID)
	if err != nil {
		p.logger.Warn("Cannot notify reconfirmation, booking lookup failed", zap.Int64("booking_id", row.BookingID), zap.Error(err))
		return
	}

	note := Notification{
		Kind:      models.NotificationReconfirmation,
		AgentID:   booking.AgentID.String(),
		BookingID: booking.ID,
		Data: map[string]string{
			"booking_reference":     booking.Reference,
			"confirmation_number":   row.ConfirmationNumber,
			"reconfirmation_number": number,
		},
	}
	if customer, err := p.customers.GetCustomerByID(ctx, booking.CustomerID); err == nil {
		note.Recipient = customer.Email
		note.Data["customer_name"] = customer.FullName()
	}

	p.notifier.Notify(ctx, note)
}
