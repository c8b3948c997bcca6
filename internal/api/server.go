// Package api implements the HTTP layer for the FitIQ funnel backend.
// Handlers are methods on *Server. Each handler file is responsible for one
// endpoint and only imports the dependencies it actually uses.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quizlm/fitiq-backend/internal/checkout"
	"github.com/quizlm/fitiq-backend/internal/email"
	"github.com/quizlm/fitiq-backend/internal/fulfillment"
	"github.com/quizlm/fitiq-backend/internal/mercadopago"
)

// Config holds values read from environment variables at startup.
type Config struct {
	// Env is "production", "staging", or "development".
	Env string

	// AllowedOrigins is the CORS allow-list for the quiz frontend.
	AllowedOrigins []string

	// WebhookSecret is the shared secret from the Mercado Pago dashboard.
	// When empty (development only — config.Load refuses it in production)
	// signature verification is skipped.
	WebhookSecret string

	// DownloadDir is the directory holding the per-profile PDFs.
	DownloadDir string
}

// Server holds all shared dependencies. Each handler file attaches methods
// to this type and uses only the fields it needs.
type Server struct {
	// store is the payment → fulfillment state machine, the only mutable
	// shared resource. Both the webhook and the status poller write it.
	store fulfillment.Store

	// gateway fetches payment resources for webhook processing and polling.
	gateway mercadopago.Client

	// checkout creates payments and upsell preferences.
	checkout *checkout.Service

	// mailer sends the delivery email after fulfillment.
	mailer email.Sender

	cfg    Config
	logger *slog.Logger
}

// NewServer constructs the Server and wires the chi router. The returned
// http.Handler is ready to pass to http.ListenAndServe.
func NewServer(
	store fulfillment.Store,
	gateway mercadopago.Client,
	checkoutSvc *checkout.Service,
	mailer email.Sender,
	cfg Config,
	logger *slog.Logger,
) http.Handler {
	s := &Server{
		store:    store,
		gateway:  gateway,
		checkout: checkoutSvc,
		mailer:   mailer,
		cfg:      cfg,
		logger:   logger,
	}

	return s.routes()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// ── Global middleware ─────────────────────────────────────────────────────
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggerMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)
	r.Use(middleware.Timeout(30 * time.Second))

	// ── Health ────────────────────────────────────────────────────────────────
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Backend FitIQ rodando"))
	})

	// ── Funnel endpoints ──────────────────────────────────────────────────────
	r.Post("/create-payment", s.handleCreatePayment)
	r.Get("/payment-status/{paymentID}", s.handlePaymentStatus)
	r.Get("/download/{paymentID}", s.handleDownload)
	r.Post("/upsell/create", s.handleCreateUpsell)

	// Gateway webhook — no auth (signature verification inside handler).
	r.Post("/webhook", s.handleWebhook)

	return r
}
