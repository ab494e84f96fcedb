package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"booking-service/internal/models"

	"github.com/google/uuid"
)

const referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var manualPrefixes = map[string]string{
	models.ItemTypeHotel:     "HTL",
	models.ItemTypeFlight:    "FLT",
	models.ItemTypeTour:      "TUR",
	models.ItemTypeTransfer:  "TRF",
	models.ItemTypeInsurance: "INS",
}

// NewBookingReference returns BKG-<base36 ms timestamp>-<5 random chars>
func NewBookingReference(now time.Time) string {
	return fmt.Sprintf("BKG-%s-%s",
		strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36)),
		randomSuffix(5))
}

// NewManualConfirmationNumber returns MANUAL-<type prefix>-<unix ms>-<6 random chars>
func NewManualConfirmationNumber(itemType string, now time.Time) string {
	prefix, ok := manualPrefixes[itemType]
	if !ok {
		prefix = "ITM"
	}
	return fmt.Sprintf("MANUAL-%s-%d-%s", prefix, now.UnixMilli(), randomSuffix(6))
}

// IdempotencyKey identifies one agent's conversion of one quote
func IdempotencyKey(quoteID int64, agentID uuid.UUID) string {
	return fmt.Sprintf("quote:%d:agent:%s", quoteID, agentID)
}

func randomSuffix(n int) string {
	max := big.NewInt(int64(len(referenceAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			idx = big.NewInt(time.Now().UnixNano() % int64(len(referenceAlphabet)))
		}
		b[i] = referenceAlphabet[idx.Int64()]
	}
	return string(b)
}
