// Package checkout builds and submits payment requests to the gateway,
// enforcing the business invariants the browser cannot be trusted with: the
// transaction amount is server-asserted, required fields are validated
// before any gateway call, and the external_reference channel is always
// server-written.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/quizlm/fitiq-backend/internal/mercadopago"
	"github.com/quizlm/fitiq-backend/internal/profile"
)

// ErrInvalidRequest tags validation failures so the HTTP layer can map them
// to a 400 without inspecting message strings.
var ErrInvalidRequest = errors.New("invalid request")

// Config holds the server-side pricing and redirect targets.
type Config struct {
	// PlanAmount is the price of the primary quiz plan, used when the
	// request carries no amount. The request amount, when present, is still
	// validated server-side and always overrides whatever the form payload
	// claims.
	PlanAmount decimal.Decimal

	// UpsellAmount is the fixed price of the upsell purchase.
	UpsellAmount decimal.Decimal

	// CurrencyID tags preference line items, e.g. "BRL".
	CurrencyID string

	PlanDescription   string
	UpsellDescription string

	// SuccessURL / FailureURL are the frontend pages the hosted upsell
	// checkout redirects back to.
	SuccessURL string
	FailureURL string
}

// Service creates payments and upsell preferences. It talks to the gateway
// and nothing else — it never writes the fulfillment store.
type Service struct {
	gateway  mercadopago.Client
	cfg      Config
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService wires the checkout service.
func NewService(gateway mercadopago.Client, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		gateway:  gateway,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// ─── CREATE PAYMENT ──────────────────────────────────────────────────────────

// CreatePaymentRequest is the body the Payment Brick's onSubmit posts.
type CreatePaymentRequest struct {
	// Amount is optional; zero falls back to the configured plan price.
	Amount float64 `json:"amount" validate:"omitempty,gt=0"`

	PayerEmail string `json:"payerEmail" validate:"required,email"`

	// FormData is the method-specific payload the Brick assembled (card
	// token, installments, payment_method_id, pix payer identification, …).
	FormData map[string]any `json:"formData" validate:"required"`

	// Meta is client-declared quiz context (quizId, winnerId, metrics, …).
	Meta map[string]any `json:"meta"`
}

// CreatePaymentResult is the subset returned to the browser.
type CreatePaymentResult struct {
	ID              string
	Status          string
	StatusDetail    string
	PaymentMethodID string
	Pix             *mercadopago.TransactionData
}

// CreatePayment validates the request, builds the gateway payment body, and
// submits it. Gateway failures come back as *mercadopago.GatewayError;
// validation failures wrap ErrInvalidRequest. Neither is logged as an
// internal error — both are caused by bad upstream-rejected input.
func (s *Service) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error) {
	amount, err := s.validateRequest(req)
	if err != nil {
		return nil, err
	}

	prof := requestProfile(req)
	body := s.buildPaymentBody(req, prof, amount)

	payment, err := s.gateway.CreatePayment(ctx, body)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("checkout: payment created",
		"payment_id", payment.PaymentID(),
		"status", payment.Status,
		"method", payment.PaymentMethodID,
		"profile", prof,
	)

	result := &CreatePaymentResult{
		ID:              payment.PaymentID(),
		Status:          payment.Status,
		StatusDetail:    payment.StatusDetail,
		PaymentMethodID: payment.PaymentMethodID,
	}
	if payment.PointOfInteraction != nil {
		result.Pix = payment.PointOfInteraction.TransactionData
	}
	return result, nil
}

// validateRequest applies the fail-before-gateway rules and returns the
// server-asserted amount.
func (s *Service) validateRequest(req CreatePaymentRequest) (decimal.Decimal, error) {
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return decimal.Zero, fmt.Errorf("%w: amount must be a finite number", ErrInvalidRequest)
	}

	if err := s.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return decimal.Zero, fmt.Errorf("%w: %s is invalid", ErrInvalidRequest, jsonFieldName(fieldErrs[0]))
		}
		return decimal.Zero, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if len(req.FormData) == 0 {
		return decimal.Zero, fmt.Errorf("%w: formData is required", ErrInvalidRequest)
	}

	// Instant transfer requires taxpayer identification on the payer.
	if methodID(req.FormData) == "pix" {
		if !hasPayerIdentification(req.FormData) {
			return decimal.Zero, fmt.Errorf("%w: payer.identification {type, number} is required for pix", ErrInvalidRequest)
		}
	}

	amount := s.cfg.PlanAmount
	if req.Amount > 0 {
		amount = decimal.NewFromFloat(req.Amount).Round(2)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	return amount, nil
}

// buildPaymentBody merges the Brick form payload with server-derived fields.
// Order matters: client fields first, then payer, then metadata, then the
// external reference, and the server amount LAST so nothing the client sent
// can override it.
func (s *Service) buildPaymentBody(req CreatePaymentRequest, prof string, amount decimal.Decimal) map[string]any {
	body := make(map[string]any, len(req.FormData)+4)
	for k, v := range req.FormData {
		body[k] = v
	}

	// Payer: keep the Brick's payer fields (identification, name) and make
	// sure the validated email is present.
	payer := make(map[string]any)
	if fp, ok := req.FormData["payer"].(map[string]any); ok {
		for k, v := range fp {
			payer[k] = v
		}
	}
	if email, _ := payer["email"].(string); email == "" {
		payer["email"] = req.PayerEmail
	}
	body["payer"] = payer

	// Metadata: client quiz context, then any Brick metadata, then the
	// server-derived fields — so profile and payer_email cannot be spoofed.
	metadata := make(map[string]any)
	for k, v := range req.Meta {
		metadata[k] = v
	}
	if fm, ok := req.FormData["metadata"].(map[string]any); ok {
		for k, v := range fm {
			metadata[k] = v
		}
	}
	metadata["profile"] = prof
	metadata["payer_email"] = req.PayerEmail
	body["metadata"] = metadata

	if _, ok := body["description"]; !ok {
		body["description"] = s.cfg.PlanDescription
	}

	// Always server-written: a client-supplied reference could forge upsell
	// linkage or redirect profile resolution.
	body["external_reference"] = profile.Encode(profile.Reference{
		Kind:    profile.KindPlan,
		Profile: prof,
		Email:   req.PayerEmail,
		TS:      time.Now().Unix(),
	})

	body["transaction_amount"] = amount.InexactFloat64()
	return body
}

// requestProfile picks the winner profile from the client-declared meta,
// defaulting to the base profile. The value also rides the external
// reference, so the resolver reads back exactly what was decided here.
func requestProfile(req CreatePaymentRequest) string {
	for _, key := range []string{"profile", "winnerId", "winner_id"} {
		if v, ok := req.Meta[key].(string); ok {
			if code := strings.ToUpper(strings.TrimSpace(v)); code != "" {
				return code
			}
		}
	}
	return profile.Default
}

// ─── UPSELL PREFERENCE ───────────────────────────────────────────────────────

// CreateUpsellPreference creates a hosted-checkout preference for the upsell
// purchase linked to parentPaymentID and returns its checkout URL. The
// parent linkage travels both in metadata and in the external reference so
// the webhook can resolve it from either.
func (s *Service) CreateUpsellPreference(ctx context.Context, parentPaymentID, prof string) (string, error) {
	if parentPaymentID == "" {
		return "", fmt.Errorf("%w: paymentId is required", ErrInvalidRequest)
	}
	if prof == "" {
		prof = profile.Default
	}

	pref, err := s.gateway.CreatePreference(ctx, mercadopago.PreferenceRequest{
		Items: []mercadopago.PreferenceItem{{
			ID:         "fitiq-upsell",
			Title:      s.cfg.UpsellDescription,
			Quantity:   1,
			UnitPrice:  s.cfg.UpsellAmount.InexactFloat64(),
			CurrencyID: s.cfg.CurrencyID,
		}},
		ExternalReference: profile.Encode(profile.Reference{
			Kind:            profile.KindUpsell,
			Profile:         prof,
			ParentPaymentID: parentPaymentID,
			TS:              time.Now().Unix(),
		}),
		Metadata: map[string]any{
			"upsell":            true,
			"parent_payment_id": parentPaymentID,
			"profile":           prof,
		},
		BackURLs: &mercadopago.BackURLs{
			Success: s.cfg.SuccessURL,
			Failure: s.cfg.FailureURL,
		},
		AutoReturn: "approved",
	})
	if err != nil {
		return "", err
	}
	return pref.InitPoint, nil
}

// ─── HELPERS ─────────────────────────────────────────────────────────────────

// methodID reads payment_method_id from the form payload.
func methodID(formData map[string]any) string {
	id, _ := formData["payment_method_id"].(string)
	return strings.ToLower(strings.TrimSpace(id))
}

// hasPayerIdentification checks formData.payer.identification.{type,number}.
func hasPayerIdentification(formData map[string]any) bool {
	payer, ok := formData["payer"].(map[string]any)
	if !ok {
		return false
	}
	ident, ok := payer["identification"].(map[string]any)
	if !ok {
		return false
	}
	idType, _ := ident["type"].(string)
	number, _ := ident["number"].(string)
	return strings.TrimSpace(idType) != "" && strings.TrimSpace(number) != ""
}

// jsonFieldName maps a validator field error back to the JSON name the
// client sent, so 400 messages reference the request shape.
func jsonFieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "Amount":
		return "amount"
	case "PayerEmail":
		return "payerEmail"
	case "FormData":
		return "formData"
	default:
		return strings.ToLower(fe.Field())
	}
}
