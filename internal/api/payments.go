package api

import (
	"errors"
	"net/http"

	"github.com/quizlm/fitiq-backend/internal/checkout"
	"github.com/quizlm/fitiq-backend/internal/mercadopago"
)

// ─── POST /create-payment ─────────────────────────────────────────────────────

// pixResponse is the QR payload returned for instant-transfer payments.
type pixResponse struct {
	QRCode       string `json:"qr_code"`
	QRCodeBase64 string `json:"qr_code_base64"`
	TicketURL    string `json:"ticket_url"`
}

type createPaymentResponse struct {
	ID              string       `json:"id"`
	Status          string       `json:"status"`
	StatusDetail    string       `json:"status_detail"`
	PaymentMethodID string       `json:"payment_method_id"`
	Pix             *pixResponse `json:"pix"`
}

// handleCreatePayment is what the Payment Brick calls in onSubmit. All
// validation and body construction lives in the checkout service; this
// handler only maps errors to statuses.
//
// Gateway rejections come back as 400, never 500 — they are almost always
// caused by invalid card/payer input the user can correct and retry.
func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req checkout.CreatePaymentRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := s.checkout.CreatePayment(r.Context(), req)

	var gwErr *mercadopago.GatewayError
	switch {
	case errors.Is(err, checkout.ErrInvalidRequest):
		respondErr(w, http.StatusBadRequest, err.Error())
		return
	case errors.As(err, &gwErr):
		s.logger.Warn("create-payment: gateway rejected",
			"status", gwErr.StatusCode,
			"message", gwErr.Message,
			logField(r),
		)
		respondErr(w, http.StatusBadRequest, gwErr.Message)
		return
	case err != nil:
		s.respondInternalErr(w, r, err)
		return
	}

	resp := createPaymentResponse{
		ID:              result.ID,
		Status:          result.Status,
		StatusDetail:    result.StatusDetail,
		PaymentMethodID: result.PaymentMethodID,
	}
	if result.Pix != nil {
		resp.Pix = &pixResponse{
			QRCode:       result.Pix.QRCode,
			QRCodeBase64: result.Pix.QRCodeBase64,
			TicketURL:    result.Pix.TicketURL,
		}
	}

	respond(w, http.StatusOK, resp)
}
