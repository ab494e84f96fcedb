package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItemDetails_Hotel(t *testing.T) {
	d, err := ParseItemDetails(ItemTypeHotel, json.RawMessage(`{"rateKey":"RK123","adults":2}`))
	require.NoError(t, err)

	hotel, ok := d.(HotelDetails)
	require.True(t, ok)
	assert.True(t, hotel.HasRateKey())
	assert.Equal(t, "RK123", hotel.RateKey)
	assert.Equal(t, 2, hotel.Adults)
}

func TestParseItemDetails_HotelWithoutRateKey(t *testing.T) {
	for _, raw := range []string{`{}`, ``, `null`, `{"rateKey":"   "}`} {
		d, err := ParseItemDetails(ItemTypeHotel, json.RawMessage(raw))
		require.NoError(t, err, raw)
		assert.False(t, d.(HotelDetails).HasRateKey(), raw)
	}
}

func TestParseItemDetails_Flight(t *testing.T) {
	raw := `{"id":"off_1","slices":[{"origin":"LHR"}],"passengers":[{"id":"pas_1","type":"adult"}],
		"total_amount":"420.50","total_currency":"GBP","travelers":{"adults":1}}`

	d, err := ParseItemDetails(ItemTypeFlight, json.RawMessage(raw))
	require.NoError(t, err)

	flight := d.(FlightDetails)
	assert.True(t, flight.HasCompleteOffer())
	assert.Equal(t, "off_1", flight.OfferID)
	assert.Equal(t, 1, flight.Travelers.Adults)
	assert.Equal(t, "pas_1", flight.Passengers[0].ID)
}

func TestParseItemDetails_FlightTravelersOnly(t *testing.T) {
	d, err := ParseItemDetails(ItemTypeFlight, json.RawMessage(`{"travelers":{"adults":1}}`))
	require.NoError(t, err)
	assert.False(t, d.(FlightDetails).HasCompleteOffer())
}

func TestParseItemDetails_Malformed(t *testing.T) {
	_, err := ParseItemDetails(ItemTypeFlight, json.RawMessage(`{"id": 12`))
	assert.ErrorIs(t, err, ErrInvalidDetails)

	_, err = ParseItemDetails(ItemTypeHotel, json.RawMessage(`{"rateKey": 5}`))
	assert.ErrorIs(t, err, ErrInvalidDetails)
}

func TestParseItemDetails_OtherTypes(t *testing.T) {
	for _, typ := range []string{ItemTypeTour, ItemTypeTransfer, ItemTypeInsurance} {
		d, err := ParseItemDetails(typ, json.RawMessage(`{"anything":true}`))
		require.NoError(t, err)
		assert.Equal(t, typ, d.ItemType())
		assert.IsType(t, NoDetails{}, d)
	}

	_, err := ParseItemDetails("Cruise", nil)
	assert.ErrorIs(t, err, ErrUnknownItemType)
}

func TestTravelerCountsTotal(t *testing.T) {
	assert.Equal(t, 1, TravelerCounts{}.Total())
	assert.Equal(t, 4, TravelerCounts{Adults: 2, Children: 1, Seniors: 1}.Total())
}

func TestMinorUnits(t *testing.T) {
	cents, err := ParseMinorUnits("123.45")
	require.NoError(t, err)
	assert.Equal(t, int64(12345), cents)

	cents, err = ParseMinorUnits("")
	require.NoError(t, err)
	assert.Zero(t, cents)

	_, err = ParseMinorUnits("abc")
	assert.Error(t, err)

	assert.Equal(t, "123.45", FormatMinorUnits(12345))
	assert.Equal(t, "0.05", FormatMinorUnits(5))
	assert.Equal(t, "-1.50", FormatMinorUnits(-150))
}

func TestDerivePaymentStatus(t *testing.T) {
	assert.Equal(t, PaymentStatusUnpaid, DerivePaymentStatus(0, 1000))
	assert.Equal(t, PaymentStatusPartiallyPaid, DerivePaymentStatus(400, 1000))
	assert.Equal(t, PaymentStatusPaid, DerivePaymentStatus(1000, 1000))
}
