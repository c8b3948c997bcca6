package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/quizlm/fitiq-backend/internal/checkout"
	"github.com/quizlm/fitiq-backend/internal/mercadopago"
)

// ─── POST /upsell/create ─────────────────────────────────────────────────────

type createUpsellRequest struct {
	PaymentID string `json:"paymentId"`
}

type createUpsellResponse struct {
	CheckoutURL      string `json:"checkoutUrl,omitempty"`
	AlreadyPurchased bool   `json:"alreadyPurchased,omitempty"`
}

// handleCreateUpsell creates a hosted-checkout preference for the upsell
// linked to a parent payment. If the parent already has an approved upsell,
// no new preference is created — a second click on the offer button must not
// charge twice.
//
// Unlike create-payment, gateway failures here surface as 500: the buyer did
// not enter anything that could be invalid, so a failure is ours to retry.
func (s *Server) handleCreateUpsell(w http.ResponseWriter, r *http.Request) {
	var req createUpsellRequest
	if !decode(w, r, &req) {
		return
	}
	if req.PaymentID == "" {
		respondErr(w, http.StatusBadRequest, "paymentId is required")
		return
	}

	unlocked, err := s.store.IsUpsellUnlocked(r.Context(), req.PaymentID)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("check upsell: %w", err))
		return
	}
	if unlocked {
		respond(w, http.StatusOK, createUpsellResponse{AlreadyPurchased: true})
		return
	}

	// Carry the parent's resolved profile onto the upsell so the whole
	// purchase chain stays profile-consistent. A missing record (parent not
	// yet fulfilled) falls back to the default profile inside the service.
	prof := ""
	if rec, ok, err := s.store.Get(r.Context(), req.PaymentID); err == nil && ok {
		prof = rec.Profile
	}

	checkoutURL, err := s.checkout.CreateUpsellPreference(r.Context(), req.PaymentID, prof)
	if err != nil {
		if errors.Is(err, checkout.ErrInvalidRequest) {
			respondErr(w, http.StatusBadRequest, err.Error())
			return
		}
		var gwErr *mercadopago.GatewayError
		if errors.As(err, &gwErr) {
			s.logger.Error("upsell: preference creation failed",
				"parent_payment_id", req.PaymentID,
				"status", gwErr.StatusCode,
				"message", gwErr.Message,
				logField(r),
			)
			respondErr(w, http.StatusInternalServerError, "could not create upsell checkout")
			return
		}
		s.respondInternalErr(w, r, fmt.Errorf("create upsell preference: %w", err))
		return
	}

	respond(w, http.StatusOK, createUpsellResponse{CheckoutURL: checkoutURL})
}
