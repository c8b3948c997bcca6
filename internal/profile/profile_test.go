package profile_test

import (
	"testing"

	"github.com/quizlm/fitiq-backend/internal/mercadopago"
	"github.com/quizlm/fitiq-backend/internal/profile"
)

// ─── RESOLUTION ──────────────────────────────────────────────────────────────

func TestResolve_Order(t *testing.T) {
	tests := []struct {
		name    string
		payment *mercadopago.Payment
		want    string
	}{
		{
			"metadata.profile wins over everything",
			&mercadopago.Payment{
				Metadata:          map[string]any{"profile": "P3", "winner_id": "P4"},
				ExternalReference: `{"profile":"P5"}`,
			},
			"P3",
		},
		{
			"winner_id when profile absent",
			&mercadopago.Payment{
				Metadata:          map[string]any{"winner_id": "P4"},
				ExternalReference: `{"profile":"P5"}`,
			},
			"P4",
		},
		{
			"camelCase winnerId accepted",
			&mercadopago.Payment{Metadata: map[string]any{"winnerId": "p2"}},
			"P2",
		},
		{
			"external reference JSON",
			&mercadopago.Payment{ExternalReference: `{"kind":"plan","profile":"P5","ts":1700000000}`},
			"P5",
		},
		{
			"external reference winnerId alias",
			&mercadopago.Payment{ExternalReference: `{"winnerId":"p3"}`},
			"P3",
		},
		{
			"legacy colon reference",
			&mercadopago.Payment{ExternalReference: "fitiq:p4:1700000000"},
			"P4",
		},
		{
			"malformed reference falls to default",
			&mercadopago.Payment{ExternalReference: "order-8812"},
			"P1",
		},
		{
			"malformed JSON reference falls to default",
			&mercadopago.Payment{ExternalReference: `{"profile":`},
			"P1",
		},
		{
			"empty metadata value skipped",
			&mercadopago.Payment{
				Metadata:          map[string]any{"profile": "  "},
				ExternalReference: `{"profile":"P2"}`,
			},
			"P2",
		},
		{
			"nothing resolvable",
			&mercadopago.Payment{},
			"P1",
		},
		{
			"nil payment",
			nil,
			"P1",
		},
		{
			"lowercase upper-cased",
			&mercadopago.Payment{Metadata: map[string]any{"profile": "p5"}},
			"P5",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := profile.Resolve(tc.payment); got != tc.want {
				t.Errorf("Resolve: got %q, want %q", got, tc.want)
			}
		})
	}
}

// ─── UPSELL DETECTION ────────────────────────────────────────────────────────

func TestIsUpsell(t *testing.T) {
	tests := []struct {
		name    string
		payment *mercadopago.Payment
		want    bool
	}{
		{
			"upsell kind reference",
			&mercadopago.Payment{ExternalReference: `{"kind":"upsell","parent_payment_id":"111"}`},
			true,
		},
		{
			"metadata upsell bool",
			&mercadopago.Payment{Metadata: map[string]any{"upsell": true}},
			true,
		},
		{
			"metadata upsell string true",
			&mercadopago.Payment{Metadata: map[string]any{"upsell": "true"}},
			true,
		},
		{
			"metadata parent_payment_id alone",
			&mercadopago.Payment{Metadata: map[string]any{"parent_payment_id": "111"}},
			true,
		},
		{
			"plan reference is not an upsell",
			&mercadopago.Payment{ExternalReference: `{"kind":"plan","profile":"P1"}`},
			false,
		},
		{
			"upsell false is not an upsell",
			&mercadopago.Payment{Metadata: map[string]any{"upsell": false}},
			false,
		},
		{"empty payment", &mercadopago.Payment{}, false},
		{"nil payment", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := profile.IsUpsell(tc.payment); got != tc.want {
				t.Errorf("IsUpsell: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParentPaymentID(t *testing.T) {
	// Metadata takes precedence; numeric metadata ids are rendered as strings.
	p := &mercadopago.Payment{
		Metadata:          map[string]any{"parent_payment_id": float64(12345678)},
		ExternalReference: `{"kind":"upsell","parent_payment_id":"999"}`,
	}
	if got := profile.ParentPaymentID(p); got != "12345678" {
		t.Errorf("metadata parent: got %q", got)
	}

	p = &mercadopago.Payment{ExternalReference: `{"kind":"upsell","parent_payment_id":"999"}`}
	if got := profile.ParentPaymentID(p); got != "999" {
		t.Errorf("reference parent: got %q", got)
	}

	// No parent anywhere: empty, never fabricated.
	p = &mercadopago.Payment{ID: 42, Metadata: map[string]any{"upsell": true}}
	if got := profile.ParentPaymentID(p); got != "" {
		t.Errorf("expected empty parent, got %q", got)
	}
}

// ─── REFERENCE CODEC ─────────────────────────────────────────────────────────

func TestEncodeDecode_Canonical(t *testing.T) {
	ref := profile.Reference{
		Kind:    profile.KindPlan,
		Profile: "P2",
		Email:   "buyer@example.com",
		TS:      1700000000,
	}
	encoded := profile.Encode(ref)
	if encoded == "" {
		t.Fatal("Encode returned empty string")
	}

	decoded, ok := profile.Decode(encoded)
	if !ok {
		t.Fatalf("Decode(%q) failed", encoded)
	}
	if decoded != ref {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, ref)
	}
}

func TestDecode_LegacyForm(t *testing.T) {
	ref, ok := profile.Decode("fitiq:p3:1699999999")
	if !ok {
		t.Fatal("legacy reference rejected")
	}
	if ref.Profile != "P3" {
		t.Errorf("Profile: got %q", ref.Profile)
	}
	if ref.Kind != profile.KindPlan {
		t.Errorf("Kind: got %q", ref.Kind)
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, s := range []string{"", "   ", "order-123", "fitiq:", `{"broken`} {
		if _, ok := profile.Decode(s); ok {
			t.Errorf("Decode(%q) unexpectedly succeeded", s)
		}
	}
}

// ─── CATALOG ─────────────────────────────────────────────────────────────────

func TestCatalog(t *testing.T) {
	if profile.Default != "P1" {
		t.Fatalf("Default: got %q", profile.Default)
	}
	for _, code := range []string{"P1", "P2", "P3", "P4", "P5"} {
		if !profile.Known(code) {
			t.Errorf("Known(%q) = false", code)
		}
		if profile.FileFor(code) != "FitIQ-"+code+".pdf" {
			t.Errorf("FileFor(%q): got %q", code, profile.FileFor(code))
		}
		if profile.TitleFor(code) == "" {
			t.Errorf("TitleFor(%q) empty", code)
		}
	}

	// Unknown codes fall back to the default deliverable.
	if profile.FileFor("P99") != profile.FileFor(profile.Default) {
		t.Errorf("unknown profile file: got %q", profile.FileFor("P99"))
	}
	if profile.Known("P99") {
		t.Error("Known(P99) = true")
	}
}
