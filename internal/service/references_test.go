package service

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewBookingReference(t *testing.T) {
	at := time.UnixMilli(1717000000000)
	ref := NewBookingReference(at)

	assert.Regexp(t, regexp.MustCompile(`^BKG-[0-9A-Z]+-[0-9A-Z]{5}$`), ref)
	assert.Contains(t, ref, "BKG-LWS1GV0G-")
	assert.NotEqual(t, ref, NewBookingReference(at))
}

func TestNewManualConfirmationNumber(t *testing.T) {
	at := time.UnixMilli(1717000000000)

	tests := map[string]string{
		"Hotel":     "HTL",
		"Flight":    "FLT",
		"Tour":      "TUR",
		"Transfer":  "TRF",
		"Insurance": "INS",
		"Cruise":    "ITM",
	}
	for itemType, prefix := range tests {
		n := NewManualConfirmationNumber(itemType, at)
		assert.Regexp(t, regexp.MustCompile(`^MANUAL-`+prefix+`-1717000000000-[0-9A-Z]{6}$`), n, itemType)
	}
}

func TestIdempotencyKey(t *testing.T) {
	agent := uuid.MustParse("5b1f6c1e-8d3a-4e0f-9a57-1c2d3e4f5a6b")
	assert.Equal(t, "quote:42:agent:5b1f6c1e-8d3a-4e0f-9a57-1c2d3e4f5a6b", IdempotencyKey(42, agent))
}
