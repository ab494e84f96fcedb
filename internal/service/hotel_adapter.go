package service

import (
	"context"
	"strings"

	"booking-service/internal/models"
	"booking-service/internal/provider"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

// HotelAdapter books hotel items with the hotel provider and records the outcome
type HotelAdapter struct {
	api           HotelAPI
	confirmations ConfirmationStore
	logger        *zap.Logger
}

// NewHotelAdapter creates a hotel adapter
func NewHotelAdapter(api HotelAPI, confirmations ConfirmationStore) *HotelAdapter {
	return &HotelAdapter{api: api, confirmations: confirmations, logger: util.GetLogger()}
}

// BookHotel books one hotel item. A failed call is recorded as a failed
// confirmation before the provider error is returned. A booking the provider
// accepted but that could not be stored comes back as *UnrecordedBookingError.
func (a *HotelAdapter) BookHotel(
	ctx context.Context,
	booking *models.Booking,
	item models.QuoteItem,
	details models.HotelDetails,
	customer *models.Customer,
) (*models.BookingConfirmation, error) {
	ctx, span := util.StartSpan(ctx, "HotelAdapter.BookHotel")
	defer span.End()

	req := buildHotelRequest(booking, item, details, customer)

	hb, ex, err := a.api.Book(ctx, req)
	if err != nil {
		util.SpanError(span, err)
		a.logger.Warn("Hotel booking failed",
			zap.Int64("booking_id", booking.ID),
			zap.Int64("quote_item_id", item.ID),
			zap.Error(err))

		failed := &models.BookingConfirmation{
			BookingID:        booking.ID,
			QuoteItemID:      item.ID,
			Provider:         models.ProviderHotel,
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
		Provider:           models.ProviderHotel,
		ProviderBookingID:  hb.Reference,
		ConfirmationNumber: hb.Reference,
		BookingReference:   booking.Reference,
		Status:             models.ConfirmationConfirmed,
		RawRequest:         ex.Request,
		RawResponse:        ex.Response,
		Amount:             item.LineTotal(),
		Currency:           booking.Currency,
	}
	if hb.TotalNet > 0 {
		conf.Amount = hb.TotalMinorUnits()
	}
	if hb.Currency != "" {
		conf.Currency = hb.Currency
	}
	if hb.Status != "" {
		status := hb.Status
		conf.ProviderStatus = &status
	}
	if number := hb.ConfirmationNumber(); number != "" {
		conf.ReconfirmationNumber = &number
	}

	if err := recordConfirmation(ctx, a.confirmations, conf); err != nil {
		util.SpanError(span, err)
		return nil, recordUnconfirmed(ctx, a.confirmations, conf, err)
	}
	return conf, nil
}

func buildHotelRequest(booking *models.Booking, item models.QuoteItem, details models.HotelDetails, customer *models.Customer) provider.HotelBookingRequest {
	holder := holderName(details, customer)

	adults := details.Adults
	if adults < 1 {
		adults = 1
	}
	paxes := make([]provider.HotelPax, 0, adults+details.Children)
	for i := 0; i < adults; i++ {
		pax := provider.HotelPax{RoomID: 1, Type: "AD"}
		if i == 0 {
			pax.Name, pax.Surname = holder.Name, holder.Surname
		}
		paxes = append(paxes, pax)
	}
	for i := 0; i < details.Children; i++ {
		paxes = append(paxes, provider.HotelPax{RoomID: 1, Type: "CH"})
	}

	return provider.HotelBookingRequest{
		Holder:          holder,
		Rooms:           []provider.HotelRoom{{RateKey: details.RateKey, Paxes: paxes}},
		ClientReference: booking.Reference,
		Remark:          details.Remark,
	}
}

func holderName(details models.HotelDetails, customer *models.Customer) provider.HotelHolder {
	if name := strings.TrimSpace(details.HolderName); name != "" {
		first, last, found := strings.Cut(name, " ")
		if !found {
			return provider.HotelHolder{Name: first, Surname: first}
		}
		return provider.HotelHolder{Name: first, Surname: strings.TrimSpace(last)}
	}
	if customer != nil && (customer.FirstName != "" || customer.LastName != "") {
		return provider.HotelHolder{Name: customer.FirstName, Surname: customer.LastName}
	}
	return provider.HotelHolder{Name: "Guest", Surname: "Guest"}
}
