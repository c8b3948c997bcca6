// Package email defines the interface for transactional email delivery and
// provides a Resend-backed implementation.
package email

import "context"

// DownloadLinkParams holds the data for the post-fulfillment delivery email.
type DownloadLinkParams struct {
	To        string // recipient email address
	PaymentID string
	Profile   string // resolved profile code, e.g. "P3"
	Token     string // download credential — inserted into the link
}

// Sender is the interface the webhook processor uses to send email. Tests
// inject a stub that records calls without hitting the network.
type Sender interface {
	// SendDownloadLink sends the "your plan is ready" email with the gated
	// download link. Called after a payment is fulfilled. Failures are
	// logged and swallowed by the caller — the thanks page link is the
	// primary delivery channel.
	SendDownloadLink(ctx context.Context, p DownloadLinkParams) error
}

// NoopSender is the Sender used when no email provider is configured.
type NoopSender struct{}

func (NoopSender) SendDownloadLink(context.Context, DownloadLinkParams) error { return nil }
