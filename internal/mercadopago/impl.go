package mercadopago

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const defaultBaseURL = "https://api.mercadopago.com"

// restClient is the concrete Client backed by the Mercado Pago REST API.
// Construct it with NewClient.
type restClient struct {
	http *resty.Client
}

// NewClient returns a Client authenticated with the given access token
// (your MP_ACCESS_TOKEN env var).
func NewClient(accessToken string) Client {
	return NewClientWithBaseURL(accessToken, defaultBaseURL)
}

// NewClientWithBaseURL is NewClient with the API host overridden. Used by
// tests and sandbox deployments.
func NewClientWithBaseURL(accessToken, baseURL string) Client {
	return &restClient{
		http: resty.New().
			SetBaseURL(baseURL).
			SetAuthToken(accessToken).
			SetHeader("Content-Type", "application/json").
			SetTimeout(30 * time.Second),
	}
}

// CreatePayment posts the merged payment body to /v1/payments.
//
// The X-Idempotency-Key header is required by the API on payment creation; a
// fresh UUID per call means a network-level retry by resty never creates a
// duplicate charge.
func (c *restClient) CreatePayment(ctx context.Context, body map[string]any) (*Payment, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Idempotency-Key", uuid.NewString()).
		SetBody(body).
		Post("/v1/payments")
	if err != nil {
		return nil, fmt.Errorf("mercadopago: create payment: %w", err)
	}

	return decodePayment(resp)
}

// GetPayment fetches /v1/payments/{id}.
func (c *restClient) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", paymentID).
		Get("/v1/payments/{id}")
	if err != nil {
		return nil, fmt.Errorf("mercadopago: get payment %s: %w", paymentID, err)
	}

	return decodePayment(resp)
}

// CreatePreference posts to /checkout/preferences and returns the created
// preference with its init_point checkout URL.
func (c *restClient) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Idempotency-Key", uuid.NewString()).
		SetBody(req).
		Post("/checkout/preferences")
	if err != nil {
		return nil, fmt.Errorf("mercadopago: create preference: %w", err)
	}

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return nil, newGatewayError(resp.StatusCode(), resp.Body())
	}

	var pref Preference
	if err := json.Unmarshal(resp.Body(), &pref); err != nil {
		return nil, fmt.Errorf("mercadopago: decode preference response: %w", err)
	}
	if pref.InitPoint == "" {
		return nil, &GatewayError{StatusCode: resp.StatusCode(), Message: "preference created without init_point"}
	}
	return &pref, nil
}

// decodePayment turns an API response into a *Payment or a *GatewayError.
func decodePayment(resp *resty.Response) (*Payment, error) {
	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		return nil, newGatewayError(resp.StatusCode(), resp.Body())
	}

	var payment Payment
	if err := json.Unmarshal(resp.Body(), &payment); err != nil {
		return nil, fmt.Errorf("mercadopago: decode payment response: %w", err)
	}
	if payment.ID == 0 {
		return nil, &GatewayError{StatusCode: resp.StatusCode(), Message: "payment response missing id"}
	}

	payment.Raw = json.RawMessage(resp.Body())
	return &payment, nil
}
