package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quizlm/fitiq-backend/internal/email"
	"github.com/quizlm/fitiq-backend/internal/fulfillment"
	"github.com/quizlm/fitiq-backend/internal/mercadopago"
	"github.com/quizlm/fitiq-backend/internal/profile"
)

// processTimeout bounds the post-ack gateway fetch and store writes.
const processTimeout = 30 * time.Second

// ─── POST /webhook ────────────────────────────────────────────────────────────

// handleWebhook is the entry point for Mercado Pago payment notifications.
//
// Order of operations is load-bearing:
//
//  1. Verify the x-signature header against the raw body. A forged
//     notification that passed here could trigger a fulfillment, so when a
//     webhook secret is configured an invalid signature is rejected with 401
//     BEFORE anything else happens.
//  2. Ack with 200 and flush. The notifier retries on slow or non-2xx
//     responses; everything that can be slow (the gateway fetch) or can fail
//     (store writes) happens after the response is on the wire, and its
//     errors are logged, never returned.
//
// Deliveries are at-least-once and the webhook races the status poller, so
// all downstream writes go through the store's idempotent operations.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		respondErr(w, http.StatusBadRequest, "could not read request body")
		return
	}

	if s.cfg.WebhookSecret != "" {
		valid := mercadopago.VerifySignature(
			r.Header.Get("x-signature"),
			r.Header.Get("x-request-id"),
			payload,
			r.URL.Query(),
			s.cfg.WebhookSecret,
		)
		if !valid {
			s.logger.Warn("webhook: invalid signature", logField(r))
			respondErr(w, http.StatusUnauthorized, "invalid webhook signature")
			return
		}
	}

	// Ack before any gateway-dependent work.
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	paymentID := mercadopago.ExtractNotificationID(payload, r.URL.Query())
	if paymentID == "" {
		s.logger.Debug("webhook: delivery without payment id", logField(r))
		return
	}

	// The response is already sent; detach from the request context so a
	// dropped notifier connection cannot cancel fulfillment mid-write.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), processTimeout)
	defer cancel()

	if err := s.processNotification(ctx, paymentID, logField(r)); err != nil {
		s.logger.Error("webhook: processing failed",
			"payment_id", paymentID,
			"error", err,
			logField(r),
		)
	}
}

// processNotification fetches the payment resource and reconciles it into
// the fulfillment store. Runs after the 200 ack; every error it returns ends
// up in the log only.
func (s *Server) processNotification(ctx context.Context, paymentID string, reqField any) error {
	payment, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("get payment: %w", err)
	}

	if payment.Status != mercadopago.StatusApproved {
		// No stored negative state — absence of a record is "not approved".
		s.logger.Info("webhook: payment not approved",
			"payment_id", payment.PaymentID(),
			"status", payment.Status,
			"status_detail", payment.StatusDetail,
			reqField,
		)
		return nil
	}

	if profile.IsUpsell(payment) {
		parent := profile.ParentPaymentID(payment)
		if parent == "" {
			// A parent must come from the payment itself; fabricating one
			// would unlock the upsell for the wrong buyer.
			s.logger.Error("webhook: upsell payment without resolvable parent",
				"payment_id", payment.PaymentID(),
				"external_reference", payment.ExternalReference,
				reqField,
			)
			return nil
		}
		if err := s.store.MarkUpsellUnlocked(ctx, parent); err != nil {
			return fmt.Errorf("mark upsell unlocked: %w", err)
		}
		s.logger.Info("webhook: upsell unlocked",
			"payment_id", payment.PaymentID(),
			"parent_payment_id", parent,
			reqField,
		)
		return nil
	}

	rec, err := s.store.Fulfill(ctx, fulfillment.FulfillParams{
		PaymentID:  payment.PaymentID(),
		Email:      payment.Payer.Email,
		Profile:    profile.Resolve(payment),
		RawPayload: payment.Raw,
	})
	if err != nil {
		return fmt.Errorf("fulfill: %w", err)
	}

	s.logger.Info("webhook: payment fulfilled",
		"payment_id", rec.PaymentID,
		"profile", rec.Profile,
		reqField,
	)

	if rec.Email != "" {
		sendErr := s.mailer.SendDownloadLink(ctx, email.DownloadLinkParams{
			To:        rec.Email,
			PaymentID: rec.PaymentID,
			Profile:   rec.Profile,
			Token:     rec.DownloadToken,
		})
		if sendErr != nil {
			s.logger.Error("webhook: delivery email failed",
				"payment_id", rec.PaymentID,
				"error", sendErr,
				reqField,
			)
		}
	}

	return nil
}
