package service

import (
	"context"
	"fmt"

	"booking-service/internal/models"
	"booking-service/internal/provider"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// Placeholders sent for passenger fields the quote does not capture. The
// provider requires them; real traveller data has to be collected upstream.
const (
	placeholderBornOnAdult  = "1990-01-01"
	placeholderBornOnChild  = "2015-01-01"
	placeholderBornOnSenior = "1950-01-01"
	placeholderTitle        = "mr"
	placeholderGender       = "m"
	placeholderPhone        = "+10000000000"
	placeholderEmail        = "noreply@example.com"
)

// FlightAdapter books flight items with the flight provider and records the outcome
type FlightAdapter struct {
	api           FlightAPI
	confirmations ConfirmationStore
	logger        *zap.Logger
}

// NewFlightAdapter creates a flight adapter
func NewFlightAdapter(api FlightAPI, confirmations ConfirmationStore) *FlightAdapter {
	return &FlightAdapter{api: api, confirmations: confirmations, logger: util.GetLogger()}
}

// BookFlight places an instant order for the captured offer. A failed call is
// recorded as a failed confirmation before the provider error is returned. An
// accepted order that could not be stored comes back as *UnrecordedBookingError.
func (a *FlightAdapter) BookFlight(
	ctx context.Context,
	booking *models.Booking,
	item models.QuoteItem,
	details models.FlightDetails,
	customer *models.Customer,
) (*models.BookingConfirmation, error) {
	ctx, span := util.StartSpan(ctx, "FlightAdapter.BookFlight")
	defer span.End()

	if !details.HasCompleteOffer() {
		return nil, fmt.Errorf("%w: flight item %d has no complete offer", ErrInvalidInput, item.ID)
	}

	req := buildFlightOrder(booking, item, details, customer)

	order, ex, err := a.api.CreateOrder(ctx, req)
	if err != nil {
		util.SpanError(span, err)
		a.logger.Warn("Flight order failed",
			zap.Int64("booking_id", booking.ID),
			zap.Int64("quote_item_id", item.ID),
			zap.String("offer_id", details.OfferID),
			zap.Error(err))

		failed := &models.BookingConfirmation{
			BookingID:        booking.ID,
			QuoteItemID:      item.ID,
			Provider:         models.ProviderFlight,
			BookingReference: booking.Reference,
			Status:           models.ConfirmationFailed,
			ErrorMessage:     provider.Message(err),
			RawRequest:       ex.Request,
			RawResponse:      ex.Response,
			Amount:           item.LineTotal(),
			Currency:         booking.Currency,
		}
		_ = recordConfirmation(ctx, a.confirmations, failed)
		return nil, err
	}

	conf := &models.BookingConfirmation{
		BookingID:          booking.ID,
		QuoteItemID:        item.ID,
		Provider:           models.ProviderFlight,
		ProviderBookingID:  order.ID,
		ConfirmationNumber: order.BookingReference,
		BookingReference:   booking.Reference,
		Status:             models.ConfirmationConfirmed,
		RawRequest:         ex.Request,
		RawResponse:        ex.Response,
		Amount:             item.LineTotal(),
		Currency:           booking.Currency,
	}
	if amount, err := models.ParseMinorUnits(order.TotalAmount); err == nil && amount > 0 {
		conf.Amount = amount
	}
	if order.TotalCurrency != "" {
		conf.Currency = order.TotalCurrency
	}

	if err := recordConfirmation(ctx, a.confirmations, conf); err != nil {
		util.SpanError(span, err)
		return nil, recordUnconfirmed(ctx, a.confirmations, conf, err)
	}
	return conf, nil
}

func buildFlightOrder(booking *models.Booking, item models.QuoteItem, details models.FlightDetails, customer *models.Customer) provider.FlightOrderRequest {
	amount, currency := details.TotalAmount, details.TotalCurrency
	if amount == "" {
		amount = models.FormatMinorUnits(item.LineTotal())
	}
	if currency == "" {
		currency = booking.Currency
	}

	return provider.FlightOrderRequest{Data: provider.FlightOrderData{
		Type:           "instant",
		SelectedOffers: []string{details.OfferID},
		Passengers:     BuildPassengers(details, customer),
		Payments:       []provider.FlightPayment{{Type: "balance", Amount: amount, Currency: currency}},
	}}
}

// BuildPassengers creates one passenger per traveller: adults first, then
// children, then seniors. Offer passenger ids are used in order when present.
func BuildPassengers(details models.FlightDetails, customer *models.Customer) []provider.FlightPassenger {
	counts := details.Travelers
	if counts.Adults+counts.Children+counts.Seniors == 0 {
		counts.Adults = 1
	}

	given, family, email, phone := "Guest", "Traveler", placeholderEmail, placeholderPhone
	if customer != nil {
		if customer.FirstName != "" {
			given = customer.FirstName
		}
		if customer.LastName != "" {
			family = customer.LastName
		}
		if customer.Email != "" {
			email = customer.Email
		}
		if customer.Phone != "" {
			phone = customer.Phone
		}
	}

	type slot struct {
		kind   string
		bornOn string
	}
	slots := make([]slot, 0, counts.Total())
	for i := 0; i < counts.Adults; i++ {
		slots = append(slots, slot{"adult", placeholderBornOnAdult})
	}
	for i := 0; i < counts.Children; i++ {
		slots = append(slots, slot{"child", placeholderBornOnChild})
	}
	for i := 0; i < counts.Seniors; i++ {
		slots = append(slots, slot{"adult", placeholderBornOnSenior})
	}

	passengers := make([]provider.FlightPassenger, len(slots))
	for i, s := range slots {
		p := provider.FlightPassenger{
			Type:        s.kind,
			Title:       placeholderTitle,
			GivenName:   given,
			FamilyName:  family,
			Gender:      placeholderGender,
			BornOn:      s.bornOn,
			Email:       email,
			PhoneNumber: phone,
		}
		if i > 0 {
			p.GivenName = fmt.Sprintf("%s %d", given, i+1)
		}
		if i < len(details.Passengers) {
			p.ID = details.Passengers[i].ID
			if details.Passengers[i].Type != "" {
				p.Type = details.Passengers[i].Type
			}
		}
		passengers[i] = p
	}
	return passengers
}
