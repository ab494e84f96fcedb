package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	ErrUnknownItemType = errors.New("unknown item type")
	ErrInvalidDetails  = errors.New("invalid item details")
)

// ItemDetails is the provider payload carried by a quote item. The concrete
// variant is fixed by the item type: HotelDetails, FlightDetails or NoDetails.
type ItemDetails interface {
	// ItemType returns the item type this variant belongs to
	ItemType() string
}

// HotelDetails carries the priced room offer for an automated hotel booking
type HotelDetails struct {
	RateKey    string `json:"rateKey,omitempty"`
	HolderName string `json:"holderName,omitempty"`
	Adults     int    `json:"adults,omitempty"`
	Children   int    `json:"children,omitempty"`
	Remark     string `json:"remark,omitempty"`
}

func (HotelDetails) ItemType() string { return ItemTypeHotel }

// HasRateKey reports whether the hotel provider can book this item
func (d HotelDetails) HasRateKey() bool {
	return strings.TrimSpace(d.RateKey) != ""
}

// TravelerCounts is the passenger breakdown captured with a flight offer
type TravelerCounts struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Seniors  int `json:"seniors"`
}

// Total returns the number of travellers, at least one
func (t TravelerCounts) Total() int {
	n := t.Adults + t.Children + t.Seniors
	if n < 1 {
		return 1
	}
	return n
}

// OfferPassenger is a passenger slot issued by the flight provider with the offer
type OfferPassenger struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
}

// FlightDetails is the offer snapshot captured when the flight was quoted
type FlightDetails struct {
	OfferID       string            `json:"id,omitempty"`
	Slices        []json.RawMessage `json:"slices,omitempty"`
	Passengers    []OfferPassenger  `json:"passengers,omitempty"`
	TotalAmount   string            `json:"total_amount,omitempty"`
	TotalCurrency string            `json:"total_currency,omitempty"`
	Travelers     TravelerCounts    `json:"travelers"`
}

func (FlightDetails) ItemType() string { return ItemTypeFlight }

// HasCompleteOffer reports whether the snapshot carries an offer id and slice data
func (d FlightDetails) HasCompleteOffer() bool {
	return d.OfferID != "" && len(d.Slices) > 0
}

// NoDetails is used by item types without an automated provider
type NoDetails struct {
	Type string `json:"-"`
}

func (d NoDetails) ItemType() string { return d.Type }

// ParseItemDetails builds the details variant for itemType from the raw JSON bag
func ParseItemDetails(itemType string, raw json.RawMessage) (ItemDetails, error) {
	empty := len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))

	switch itemType {
	case ItemTypeHotel:
		var d HotelDetails
		if !empty {
			if err := json.Unmarshal(raw, &d); err != nil {
				return d, fmt.Errorf("%w: hotel: %v", ErrInvalidDetails, err)
			}
		}
		return d, nil

	case ItemTypeFlight:
		var d FlightDetails
		if !empty {
			if err := json.Unmarshal(raw, &d); err != nil {
				return d, fmt.Errorf("%w: flight: %v", ErrInvalidDetails, err)
			}
		}
		return d, nil

	case ItemTypeTour, ItemTypeTransfer, ItemTypeInsurance:
		return NoDetails{Type: itemType}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownItemType, itemType)
}

// ParseMinorUnits converts a decimal amount string such as "123.45" into cents
func ParseMinorUnits(amount string) (int64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return int64(math.Round(f * 100)), nil
}

// FormatMinorUnits renders cents as a two-decimal amount string
func FormatMinorUnits(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
