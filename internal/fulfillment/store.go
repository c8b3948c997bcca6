// Package fulfillment is the authoritative payment → entitlement state
// machine. A record exists only once the gateway has confirmed approval;
// absence of a record IS the pending state. Records are immutable after
// first write: the profile, email, and download token are set exactly once,
// no matter how many times the webhook and the polling path race to fulfill
// the same payment.
//
// Store is an interface so the backing state can be swapped (in-memory for
// the reference behavior, Postgres for durability) without touching callers.
package fulfillment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// StatusApproved is the only status a stored record can hold. There is no
// stored negative terminal state: a payment that never approves simply never
// produces a record.
const StatusApproved = "approved"

// Record maps one gateway payment id to its fulfillment state.
type Record struct {
	PaymentID string
	Status    string
	Email     string // best-effort, first writer wins
	Profile   string // resolved once, then frozen
	// DownloadToken is the single-use credential gating the PDF download.
	// Generated exactly once per record, never reissued.
	DownloadToken string
	CreatedAt     time.Time
}

// FulfillParams is what a caller passes after confirming, against the
// gateway, that the payment is approved. Fulfill performs no status check of
// its own.
type FulfillParams struct {
	PaymentID string
	Email     string
	Profile   string
	// RawPayload is an optional snapshot of the gateway payment resource.
	// Persisted by durable stores for audit; ignored by the memory store.
	RawPayload json.RawMessage
}

// Store is the single mutable shared resource in the system. Implementations
// must make Fulfill and MarkUpsellUnlocked atomic per key: the webhook and
// the status poller may call them concurrently and repeatedly for the same
// payment, and exactly one record (and one token) may ever result.
type Store interface {
	// Fulfill inserts an approved record for the payment if none exists and
	// returns it. When a record already exists it is returned unchanged —
	// the idempotent no-op that reconciles the racing webhook/poll paths.
	Fulfill(ctx context.Context, p FulfillParams) (Record, error)

	// Get returns the record for a payment id, with ok=false when the
	// payment has not been fulfilled.
	Get(ctx context.Context, paymentID string) (Record, bool, error)

	// MarkUpsellUnlocked records that an approved upsell payment references
	// parentPaymentID. Idempotent; independent of the parent's own record.
	MarkUpsellUnlocked(ctx context.Context, parentPaymentID string) error

	// IsUpsellUnlocked reports whether an approved upsell exists for the
	// given parent payment id.
	IsUpsellUnlocked(ctx context.Context, parentPaymentID string) (bool, error)
}

// newDownloadToken returns a fresh download credential: 32 random bytes,
// hex-encoded. 256 bits of entropy makes the token unguessable; hex keeps it
// URL-safe without escaping.
func newDownloadToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("fulfillment: generate download token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
