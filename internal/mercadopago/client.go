// Package mercadopago defines the interface for Mercado Pago API calls and
// webhook signature verification, plus the typed subset of the payment
// resource the rest of the service consumes.
//
// The REST API returns large dynamic payloads; everything outside the fields
// modelled here is intentionally ignored. The raw response body is kept on
// Payment.Raw so the fulfillment store can snapshot it without this package
// committing to the full schema.
package mercadopago

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// ─── PAYMENT STATUSES ────────────────────────────────────────────────────────

const (
	StatusApproved  = "approved"
	StatusPending   = "pending"
	StatusInProcess = "in_process"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// ─── TYPES ───────────────────────────────────────────────────────────────────

// Payment is the subset of a Mercado Pago payment resource that callers need.
// Unknown fields in the API response are dropped by json.Unmarshal.
type Payment struct {
	ID                int64          `json:"id"`
	Status            string         `json:"status"`
	StatusDetail      string         `json:"status_detail"`
	PaymentMethodID   string         `json:"payment_method_id"`
	ExternalReference string         `json:"external_reference"`
	Metadata          map[string]any `json:"metadata"`
	Payer             Payer          `json:"payer"`

	PointOfInteraction *PointOfInteraction `json:"point_of_interaction,omitempty"`

	// Raw is the full response body the payment was decoded from. Not part of
	// the API schema; populated by the client for audit snapshots.
	Raw json.RawMessage `json:"-"`
}

// PaymentID returns the gateway-assigned identifier as a string. The API
// encodes it as a JSON number, but every internal key (store, URLs, webhook
// bodies) is a string.
func (p *Payment) PaymentID() string {
	return strconv.FormatInt(p.ID, 10)
}

// Payer carries the payer fields the service reads back.
type Payer struct {
	Email string `json:"email"`
}

// PointOfInteraction holds the pix transaction data when the payment method
// is an instant transfer.
type PointOfInteraction struct {
	TransactionData *TransactionData `json:"transaction_data,omitempty"`
}

// TransactionData is the pix payload shown to the buyer.
type TransactionData struct {
	QRCode       string `json:"qr_code"`
	QRCodeBase64 string `json:"qr_code_base64"`
	TicketURL    string `json:"ticket_url"`
}

// PreferenceRequest creates a hosted-checkout preference (used for upsells).
type PreferenceRequest struct {
	Items             []PreferenceItem `json:"items"`
	ExternalReference string           `json:"external_reference,omitempty"`
	Metadata          map[string]any   `json:"metadata,omitempty"`
	BackURLs          *BackURLs        `json:"back_urls,omitempty"`
	AutoReturn        string           `json:"auto_return,omitempty"`
}

// PreferenceItem is a single line item on a checkout preference.
type PreferenceItem struct {
	ID         string  `json:"id,omitempty"`
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id,omitempty"`
}

// BackURLs are the post-checkout redirect targets.
type BackURLs struct {
	Success string `json:"success,omitempty"`
	Failure string `json:"failure,omitempty"`
	Pending string `json:"pending,omitempty"`
}

// Preference is the subset of the created preference callers need.
type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// ─── CLIENT INTERFACE ────────────────────────────────────────────────────────

// Client is the interface the api and checkout packages use for all Mercado
// Pago calls. The concrete implementation talks to the REST API; tests inject
// a stub.
type Client interface {
	// CreatePayment posts a payment body (Checkout Transparente / Payment
	// Brick). The body is a merged document built by the checkout service, so
	// it is passed as a map rather than a fixed struct.
	CreatePayment(ctx context.Context, body map[string]any) (*Payment, error)

	// GetPayment fetches the current payment resource by id. Called by both
	// the webhook processor and the status-poll handler.
	GetPayment(ctx context.Context, paymentID string) (*Payment, error)

	// CreatePreference creates a hosted-checkout preference and returns its
	// init_point URL. Used for the upsell flow.
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
}

// ─── ERRORS ──────────────────────────────────────────────────────────────────

// GatewayError is a normalized Mercado Pago API failure. Message is the most
// specific human-readable description the error payload carried; StatusCode
// is the upstream HTTP status.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("mercadopago: api error (status %d): %s", e.StatusCode, e.Message)
}

// apiError mirrors the error body the API returns on non-2xx responses.
type apiError struct {
	Message string `json:"message"`
	Err     string `json:"error"`
	Status  int    `json:"status"`
	Cause   []struct {
		Code        json.RawMessage `json:"code"` // string or number depending on endpoint
		Description string          `json:"description"`
		Message     string          `json:"message"`
	} `json:"cause"`
}

// newGatewayError extracts the best available message from an error response
// body: cause[0].description, then cause[0].message, then the top-level
// message, then a generic fallback.
func newGatewayError(statusCode int, body []byte) *GatewayError {
	msg := "payment gateway request failed"

	var parsed apiError
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case len(parsed.Cause) > 0 && parsed.Cause[0].Description != "":
			msg = parsed.Cause[0].Description
		case len(parsed.Cause) > 0 && parsed.Cause[0].Message != "":
			msg = parsed.Cause[0].Message
		case parsed.Message != "":
			msg = parsed.Message
		}
	}

	return &GatewayError{StatusCode: statusCode, Message: msg}
}

// ─── NOTIFICATION PARSING ────────────────────────────────────────────────────

// notificationBody matches the webhook delivery body: {"type":..,
// "data":{"id":..}} in the current format, or a bare {"id":..} in the legacy
// one. The id arrives as a string in webhook bodies but as a number in some
// IPN variants, so both are accepted.
type notificationBody struct {
	Type string `json:"type"`
	Data struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
	ID json.RawMessage `json:"id"`
}

// ExtractNotificationID pulls the payment id out of a webhook delivery:
// body data.id, body id, query data.id, query id — first non-empty wins.
// Returns "" when no id is present anywhere.
func ExtractNotificationID(rawBody []byte, query map[string][]string) string {
	if id := extractBodyID(rawBody); id != "" {
		return id
	}
	for _, key := range []string{"data.id", "id"} {
		if vs, ok := query[key]; ok && len(vs) > 0 && vs[0] != "" {
			return vs[0]
		}
	}
	return ""
}

// extractBodyID decodes the notification body and returns data.id or id.
func extractBodyID(rawBody []byte) string {
	if len(rawBody) == 0 {
		return ""
	}
	var body notificationBody
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return ""
	}
	if id := rawIDString(body.Data.ID); id != "" {
		return id
	}
	return rawIDString(body.ID)
}

// rawIDString renders a JSON id value (string or number) as a plain string.
func rawIDString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
