package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"booking-service/config"
	"booking-service/internal/models"
	"booking-service/internal/util"
)

// HotelClient talks to the hotel inventory API
type HotelClient struct {
	baseURL string
	apiKey  string
	secret  string
	http    *http.Client
	now     func() time.Time
}

// NewHotelClient creates a hotel API client
func NewHotelClient(cfg config.HotelProviderConfig) *HotelClient {
	return &HotelClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		secret:  cfg.Secret,
		http:    &http.Client{Timeout: cfg.Timeout},
		now:     time.Now,
	}
}

type HotelHolder struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
}

type HotelPax struct {
	RoomID  int    `json:"roomId"`
	Type    string `json:"type"`
	Name    string `json:"name,omitempty"`
	Surname string `json:"surname,omitempty"`
}

type HotelRoom struct {
	RateKey string     `json:"rateKey"`
	Paxes   []HotelPax `json:"paxes,omitempty"`
}

// HotelBookingRequest is the body of a hotel booking call
type HotelBookingRequest struct {
	Holder          HotelHolder `json:"holder"`
	Rooms           []HotelRoom `json:"rooms"`
	ClientReference string      `json:"clientReference"`
	Remark          string      `json:"remark,omitempty"`
}

type HotelBookingRoom struct {
	Code                    string `json:"code,omitempty"`
	Status                  string `json:"status,omitempty"`
	HotelConfirmationNumber string `json:"hotelConfirmationNumber,omitempty"`
}

// HotelBooking is the booking object returned by the hotel API
type HotelBooking struct {
	Reference               string  `json:"reference"`
	ClientReference         string  `json:"clientReference,omitempty"`
	Status                  string  `json:"status"`
	CreationDate            string  `json:"creationDate,omitempty"`
	ModificationDate        string  `json:"modificationDate,omitempty"`
	HotelConfirmationNumber string  `json:"hotelConfirmationNumber,omitempty"`
	TotalNet                float64 `json:"totalNet,omitempty"`
	Currency                string  `json:"currency,omitempty"`
	Hotel                   struct {
		Code  int                `json:"code,omitempty"`
		Name  string             `json:"name,omitempty"`
		Rooms []HotelBookingRoom `json:"rooms,omitempty"`
	} `json:"hotel"`
}

// ConfirmationNumber returns the hotel-issued number, from the booking or
// else from the first room that carries one
func (b *HotelBooking) ConfirmationNumber() string {
	if b.HotelConfirmationNumber != "" {
		return b.HotelConfirmationNumber
	}
	for _, r := range b.Hotel.Rooms {
		if r.HotelConfirmationNumber != "" {
			return r.HotelConfirmationNumber
		}
	}
	return ""
}

// ModifiedAt parses the provider's modification date, nil when absent
func (b *HotelBooking) ModifiedAt() *time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, b.ModificationDate); err == nil {
			return &t
		}
	}
	return nil
}

// TotalMinorUnits returns totalNet in cents
func (b *HotelBooking) TotalMinorUnits() int64 {
	return int64(math.Round(b.TotalNet * 100))
}

type hotelEnvelope struct {
	Booking *HotelBooking `json:"booking"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

// HotelSignature signs a request as hex(sha256(apiKey + secret + unix seconds))
func HotelSignature(apiKey, secret string, at time.Time) string {
	sum := sha256.Sum256([]byte(apiKey + secret + strconv.FormatInt(at.Unix(), 10)))
	return hex.EncodeToString(sum[:])
}

func (c *HotelClient) headers() http.Header {
	h := http.Header{}
	h.Set("Api-key", c.apiKey)
	h.Set("X-Signature", HotelSignature(c.apiKey, c.secret, c.now()))
	return h
}

// Book creates a hotel booking. The exchange is returned on failure too.
func (c *HotelClient) Book(ctx context.Context, req HotelBookingRequest) (*HotelBooking, Exchange, error) {
	ctx, span := util.StartSpan(ctx, "HotelClient.Book")
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, Exchange{}, fmt.Errorf("marshal hotel request: %w", err)
	}
	ex := Exchange{Request: body}

	status, respBody, err := send(ctx, c.http, models.ProviderHotel, "book", http.MethodPost,
		c.baseURL+"/hotel-api/1.0/bookings", c.headers(), body)
	ex.Response = rawJSON(respBody)
	if err != nil {
		util.SpanError(span, err)
		return nil, ex, err
	}

	booking, err := c.decode(status, respBody)
	if err != nil {
		util.SpanError(span, err)
		return nil, ex, err
	}
	return booking, ex, nil
}

// GetBooking fetches the current state of a booking by provider reference
func (c *HotelClient) GetBooking(ctx context.Context, reference string) (*HotelBooking, error) {
	ctx, span := util.StartSpan(ctx, "HotelClient.GetBooking")
	defer span.End()

	status, respBody, err := send(ctx, c.http, models.ProviderHotel, "get_booking", http.MethodGet,
		c.baseURL+"/hotel-api/1.0/bookings/"+url.PathEscape(reference), c.headers(), nil)
	if err != nil {
		util.SpanError(span, err)
		return nil, err
	}

	booking, err := c.decode(status, respBody)
	if err != nil {
		util.SpanError(span, err)
	}
	return booking, err
}

func (c *HotelClient) decode(status int, body []byte) (*HotelBooking, error) {
	var env hotelEnvelope
	parseErr := json.Unmarshal(body, &env)

	if status < 200 || status > 299 {
		msg := ""
		if parseErr == nil {
			if env.Error != nil && env.Error.Message != "" {
				msg = env.Error.Message
			} else if env.Message != "" {
				msg = env.Message
			}
		}
		if msg == "" {
			msg = fmt.Sprintf("hotel provider returned status %d", status)
		}
		return nil, &Error{Provider: models.ProviderHotel, StatusCode: status, Message: msg, Body: body}
	}

	if parseErr != nil || env.Booking == nil {
		return nil, &Error{Provider: models.ProviderHotel, StatusCode: status, Message: "hotel provider returned no booking", Body: body}
	}
	return env.Booking, nil
}
