package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quizlm/fitiq-backend/internal/fulfillment"
	"github.com/quizlm/fitiq-backend/internal/mercadopago"
	"github.com/quizlm/fitiq-backend/internal/profile"
)

// ─── GET /payment-status/{paymentID} ─────────────────────────────────────────

type downloadResponse struct {
	Token   string `json:"token"`
	Profile string `json:"profile"`
}

type paymentStatusResponse struct {
	ID           string            `json:"id"`
	Status       string            `json:"status"`
	StatusDetail string            `json:"status_detail"`
	Upsell       bool              `json:"upsell"`
	Download     *downloadResponse `json:"download"`
}

// handlePaymentStatus serves the thanks-page poller. It always fetches the
// live payment resource; when the payment is approved and the webhook has
// not landed yet, this path fulfills it — the store's idempotency makes the
// two racing paths converge on the same record and the same token.
func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	if paymentID == "" {
		respondErr(w, http.StatusBadRequest, "missing payment id")
		return
	}

	payment, err := s.gateway.GetPayment(r.Context(), paymentID)
	if err != nil {
		var gwErr *mercadopago.GatewayError
		if errors.As(err, &gwErr) && gwErr.StatusCode == http.StatusNotFound {
			respondErr(w, http.StatusNotFound, "payment not found")
			return
		}
		s.respondInternalErr(w, r, fmt.Errorf("get payment: %w", err))
		return
	}

	resp := paymentStatusResponse{
		ID:           payment.PaymentID(),
		Status:       payment.Status,
		StatusDetail: payment.StatusDetail,
	}

	if payment.Status == mercadopago.StatusApproved {
		rec, ok, err := s.store.Get(r.Context(), payment.PaymentID())
		if err != nil {
			s.respondInternalErr(w, r, fmt.Errorf("get record: %w", err))
			return
		}
		if !ok {
			// Webhook hasn't arrived yet — fulfill from the polling path.
			rec, err = s.store.Fulfill(r.Context(), fulfillment.FulfillParams{
				PaymentID:  payment.PaymentID(),
				Email:      payment.Payer.Email,
				Profile:    profile.Resolve(payment),
				RawPayload: payment.Raw,
			})
			if err != nil {
				s.respondInternalErr(w, r, fmt.Errorf("fulfill from poll: %w", err))
				return
			}
			s.logger.Info("status: fulfilled from polling path",
				"payment_id", rec.PaymentID,
				"profile", rec.Profile,
				logField(r),
			)
		}
		resp.Download = &downloadResponse{
			Token:   rec.DownloadToken,
			Profile: rec.Profile,
		}
	}

	// Upsell is true when this payment is itself an upsell purchase, or when
	// it is the parent of one already unlocked.
	unlocked, err := s.store.IsUpsellUnlocked(r.Context(), payment.PaymentID())
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("check upsell: %w", err))
		return
	}
	resp.Upsell = unlocked || profile.IsUpsell(payment)

	respond(w, http.StatusOK, resp)
}
