package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"booking-service/config"
	"booking-service/internal/models"
	"booking-service/internal/util"
)

// FlightClient talks to the flight order API
type FlightClient struct {
	baseURL    string
	token      string
	apiVersion string
	http       *http.Client
}

// NewFlightClient creates a flight API client
func NewFlightClient(cfg config.FlightProviderConfig) *FlightClient {
	return &FlightClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.AccessToken,
		apiVersion: cfg.APIVersion,
		http:       &http.Client{Timeout: cfg.Timeout},
	}
}

type FlightPassenger struct {
	ID          string `json:"id,omitempty"`
	Type        string `json:"type,omitempty"`
	Title       string `json:"title"`
	GivenName   string `json:"given_name"`
	FamilyName  string `json:"family_name"`
	Gender      string `json:"gender"`
	BornOn      string `json:"born_on"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

type FlightPayment struct {
	Type     string `json:"type"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type FlightOrderData struct {
	Type           string            `json:"type"`
	SelectedOffers []string          `json:"selected_offers"`
	Passengers     []FlightPassenger `json:"passengers"`
	Payments       []FlightPayment   `json:"payments"`
}

// FlightOrderRequest is the body of an order creation call
type FlightOrderRequest struct {
	Data FlightOrderData `json:"data"`
}

// FlightOrder is the created order
type FlightOrder struct {
	ID               string `json:"id"`
	BookingReference string `json:"booking_reference"`
	TotalAmount      string `json:"total_amount"`
	TotalCurrency    string `json:"total_currency"`
}

type flightEnvelope struct {
	Data   *FlightOrder `json:"data"`
	Errors []struct {
		Title   string `json:"title"`
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"errors"`
}

// CreateOrder submits an instant order for a previously priced offer
func (c *FlightClient) CreateOrder(ctx context.Context, req FlightOrderRequest) (*FlightOrder, Exchange, error) {
	ctx, span := util.StartSpan(ctx, "FlightClient.CreateOrder")
	defer span.End()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, Exchange{}, fmt.Errorf("marshal flight request: %w", err)
	}
	ex := Exchange{Request: body}

	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.token)
	h.Set("Duffel-Version", c.apiVersion)

	status, respBody, err := send(ctx, c.http, models.ProviderFlight, "create_order", http.MethodPost,
		c.baseURL+"/air/orders", h, body)
	ex.Response = rawJSON(respBody)
	if err != nil {
		util.SpanError(span, err)
		return nil, ex, err
	}

	var env flightEnvelope
	parseErr := json.Unmarshal(respBody, &env)

	if status < 200 || status > 299 {
		msg := ""
		if parseErr == nil && len(env.Errors) > 0 {
			msg = env.Errors[0].Message
			if msg == "" {
				msg = env.Errors[0].Title
			}
		}
		if msg == "" {
			msg = fmt.Sprintf("flight provider returned status %d", status)
		}
		err := &Error{Provider: models.ProviderFlight, StatusCode: status, Message: msg, Body: respBody}
		util.SpanError(span, err)
		return nil, ex, err
	}

	if parseErr != nil || env.Data == nil || env.Data.ID == "" {
		err := &Error{Provider: models.ProviderFlight, StatusCode: status, Message: "flight provider returned no order", Body: respBody}
		util.SpanError(span, err)
		return nil, ex, err
	}
	return env.Data, ex, nil
}
