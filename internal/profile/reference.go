package profile

import (
	"encoding/json"
	"strings"
)

// Reference kinds. A "plan" reference tags a primary quiz-plan purchase; an
// "upsell" reference links a secondary purchase to its parent payment.
const (
	KindPlan   = "plan"
	KindUpsell = "upsell"
)

// legacyPrefix is the colon-delimited scheme older clients attached:
// "fitiq:<profile>:<timestamp>". It is decoded for backward compatibility
// but never written.
const legacyPrefix = "fitiq:"

// Reference is the structured payload carried in a payment's
// external_reference field. The canonical wire form is JSON; see Encode.
type Reference struct {
	Kind            string `json:"kind,omitempty"`
	Profile         string `json:"profile,omitempty"`
	WinnerID        string `json:"winnerId,omitempty"`
	Email           string `json:"email,omitempty"`
	ParentPaymentID string `json:"parent_payment_id,omitempty"`
	TS              int64  `json:"ts,omitempty"`
}

// ProfileCode returns the profile carried by the reference, preferring the
// explicit profile field over the legacy winnerId alias. Empty when neither
// is set.
func (r Reference) ProfileCode() string {
	if r.Profile != "" {
		return strings.ToUpper(r.Profile)
	}
	if r.WinnerID != "" {
		return strings.ToUpper(r.WinnerID)
	}
	return ""
}

// Encode serialises the reference in its canonical JSON form. Encoding and
// decoding share this one scheme so the resolver always reads back exactly
// what checkout wrote.
func Encode(r Reference) string {
	b, err := json.Marshal(r)
	if err != nil {
		// Reference contains only plain strings and an int64; Marshal cannot
		// fail on it. Keep the resolver's default path as the safety net.
		return ""
	}
	return string(b)
}

// Decode parses an external_reference string. JSON is tried first; the
// legacy "fitiq:<profile>:<timestamp>" form is accepted read-only. Returns
// ok=false for anything unparsable — malformed references are not an error,
// they just fall through to the resolver's next rule.
func Decode(s string) (Reference, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Reference{}, false
	}

	if strings.HasPrefix(s, "{") {
		var ref Reference
		if err := json.Unmarshal([]byte(s), &ref); err != nil {
			return Reference{}, false
		}
		return ref, true
	}

	if rest, ok := strings.CutPrefix(s, legacyPrefix); ok {
		// fitiq:<profile>:<timestamp> — only the profile segment matters.
		seg, _, _ := strings.Cut(rest, ":")
		if seg == "" {
			return Reference{}, false
		}
		return Reference{Kind: KindPlan, Profile: strings.ToUpper(seg)}, true
	}

	return Reference{}, false
}
