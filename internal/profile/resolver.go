package profile

import (
	"strconv"
	"strings"

	"github.com/quizlm/fitiq-backend/internal/mercadopago"
)

// Resolve derives the content profile for a payment. Resolution order, first
// match wins:
//
//  1. metadata.profile
//  2. metadata.winner_id (the Brick submits winnerId; the API snake_cases
//     metadata keys, so both spellings are checked)
//  3. external_reference — canonical JSON or legacy colon form
//  4. Default
//
// Malformed metadata values and references never fail resolution; they fall
// through to the next rule. The result is always upper-cased.
func Resolve(p *mercadopago.Payment) string {
	if p != nil {
		if code := metaString(p.Metadata, "profile"); code != "" {
			return strings.ToUpper(code)
		}
		if code := metaString(p.Metadata, "winner_id", "winnerId"); code != "" {
			return strings.ToUpper(code)
		}
		if ref, ok := Decode(p.ExternalReference); ok {
			if code := ref.ProfileCode(); code != "" {
				return code
			}
		}
	}
	return Default
}

// IsUpsell reports whether the payment is a secondary upsell purchase rather
// than a primary plan purchase. Any of these marks it: an upsell-kind
// external reference, a truthy upsell metadata flag, or a parent_payment_id
// metadata field.
func IsUpsell(p *mercadopago.Payment) bool {
	if p == nil {
		return false
	}
	if ref, ok := Decode(p.ExternalReference); ok && ref.Kind == KindUpsell {
		return true
	}
	if metaBool(p.Metadata, "upsell") {
		return true
	}
	return metaString(p.Metadata, "parent_payment_id") != ""
}

// ParentPaymentID returns the parent payment id an upsell purchase is linked
// to: metadata.parent_payment_id first, then the external reference. Empty
// when no parent is recorded — callers must treat that as unresolvable and
// never fabricate one.
func ParentPaymentID(p *mercadopago.Payment) string {
	if p == nil {
		return ""
	}
	if id := metaString(p.Metadata, "parent_payment_id"); id != "" {
		return id
	}
	if ref, ok := Decode(p.ExternalReference); ok {
		return ref.ParentPaymentID
	}
	return ""
}

// ─── METADATA HELPERS ────────────────────────────────────────────────────────

// metaString reads the first present key from a metadata map, rendering
// strings and numbers (the API returns numeric metadata values as float64).
func metaString(meta map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := meta[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		}
	}
	return ""
}

// metaBool interprets a metadata value as a flag: true, "true", or "1".
func metaBool(meta map[string]any, key string) bool {
	switch t := meta[key].(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "1"
	case float64:
		return t == 1
	}
	return false
}
