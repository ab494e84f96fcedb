package provider

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error is a failed call to an inventory provider
type Error struct {
	Provider   string
	StatusCode int
	Message    string
	Body       []byte
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// AsError unwraps a provider error from err
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// Message returns the provider's own message when err is a provider error
func Message(err error) string {
	if pe, ok := AsError(err); ok {
		return pe.Message
	}
	return err.Error()
}

// Exchange holds the raw request and response bodies of one provider call
type Exchange struct {
	Request  json.RawMessage
	Response json.RawMessage
}
