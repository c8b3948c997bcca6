package mercadopago

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// VerifySignature checks that a webhook delivery genuinely originates from
// Mercado Pago.
//
// The x-signature header carries comma-separated key=value pairs, at minimum
// a unix timestamp (ts) and a hex-encoded HMAC (v1). The signed manifest is
//
//	id:<paymentId>;request-id:<requestId>;ts:<ts>;
//
// where <paymentId> comes from the delivery body (data.id or id), falling
// back to the query string for IPN-style deliveries. The HMAC is SHA-256 over
// the manifest with the shared webhook secret.
//
// This is a pure predicate: it never panics and returns false for every
// malformed input — empty secret, missing headers or payment id, missing ts/v1
// pairs, invalid hex, or a digest length mismatch. The length check runs
// before the constant-time comparison so unequal-length buffers are never
// compared. A false positive here is a forged fulfillment, so any doubt
// resolves to false.
func VerifySignature(xSignature, xRequestID string, rawBody []byte, query url.Values, secret string) bool {
	if secret == "" || xSignature == "" || xRequestID == "" {
		return false
	}

	paymentID := ExtractNotificationID(rawBody, query)
	if paymentID == "" {
		return false
	}

	var ts, v1 string
	for _, part := range strings.Split(xSignature, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "ts":
			ts = value
		case "v1":
			v1 = value
		}
	}
	if ts == "" || v1 == "" {
		return false
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", paymentID, xRequestID, ts)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	expected := mac.Sum(nil)

	received, err := hex.DecodeString(v1)
	if err != nil || len(received) != len(expected) {
		return false
	}

	return hmac.Equal(expected, received)
}
