package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/quizlm/fitiq-backend/internal/fulfillment"
	"github.com/quizlm/fitiq-backend/internal/profile"
)

// ─── GET /download/{paymentID}?token= ────────────────────────────────────────

// handleDownload streams the buyer's plan PDF. Access requires an existing
// approved record whose stored credential exactly matches the supplied
// token. All denial paths return the same 403 body so the response cannot be
// used to probe which check failed.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentID")
	token := r.URL.Query().Get("token")

	rec, ok, err := s.store.Get(r.Context(), paymentID)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("get record: %w", err))
		return
	}
	if !ok || rec.Status != fulfillment.StatusApproved || !tokenMatches(rec.DownloadToken, token) {
		respondErr(w, http.StatusForbidden, "invalid download credentials")
		return
	}

	fileName := profile.FileFor(rec.Profile)
	path := filepath.Join(s.cfg.DownloadDir, fileName)

	if _, err := os.Stat(path); err != nil {
		s.logger.Error("download: file missing",
			"payment_id", paymentID,
			"profile", rec.Profile,
			"path", path,
			"error", err,
			logField(r),
		)
		respondErr(w, http.StatusNotFound, "file not available")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	http.ServeFile(w, r, path)
}

// tokenMatches compares the supplied token in constant time. The empty
// string never matches: a record always has a token, so an empty supplied
// token is an immediate deny.
func tokenMatches(stored, supplied string) bool {
	if supplied == "" || len(stored) != len(supplied) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
