package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrNotFound             = errors.New("not found")
	ErrConversionInProgress = errors.New("quote conversion already in progress")
	ErrQuoteConverted       = errors.New("quote already converted")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrPersistence          = errors.New("persistence failure")
)

// UnrecordedBookingError means the provider accepted a booking whose
// confirmation could not be stored. The item is booked and must not be
// booked again.
type UnrecordedBookingError struct {
	Provider          string
	ProviderBookingID string
	Err               error
}

func (e *UnrecordedBookingError) Error() string {
	return fmt.Sprintf("booked at %s as %s, confirmation not recorded: %v", e.Provider, e.ProviderBookingID, e.Err)
}

func (e *UnrecordedBookingError) Unwrap() error {
	return e.Err
}
