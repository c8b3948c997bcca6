// Package profile owns everything about content profiles: the P1..P5
// catalog, resolution of a profile from a gateway payment, and the
// external-reference encoding used to round-trip profile and upsell linkage
// metadata through the payment gateway.
package profile

import "strings"

// Default is the profile used when nothing on the payment resolves.
const Default = "P1"

// Info describes one quiz outcome profile and its deliverable.
type Info struct {
	Title string
	File  string // PDF file name under the configured download directory
}

// catalog is the fixed profile → deliverable table. The quiz computes the
// winner browser-side; the backend only needs the mapping to a file.
var catalog = map[string]Info{
	"P1": {Title: "Emagrecimento Rápido (Iniciante)", File: "FitIQ-P1.pdf"},
	"P2": {Title: "Platô (Travado)", File: "FitIQ-P2.pdf"},
	"P3": {Title: "Emocional / Ansiedade", File: "FitIQ-P3.pdf"},
	"P4": {Title: "Definição / Gordura Localizada", File: "FitIQ-P4.pdf"},
	"P5": {Title: "Falta de Tempo", File: "FitIQ-P5.pdf"},
}

// Known reports whether code is a catalogued profile.
func Known(code string) bool {
	_, ok := catalog[strings.ToUpper(code)]
	return ok
}

// FileFor returns the deliverable file name for a profile code, falling back
// to the base profile's file when the code is unmapped.
func FileFor(code string) string {
	if info, ok := catalog[strings.ToUpper(code)]; ok {
		return info.File
	}
	return catalog[Default].File
}

// TitleFor returns the display title for a profile code, falling back to the
// base profile.
func TitleFor(code string) string {
	if info, ok := catalog[strings.ToUpper(code)]; ok {
		return info.Title
	}
	return catalog[Default].Title
}
