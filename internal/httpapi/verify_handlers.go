package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"quoteguard.org/internal/audit"
	"quoteguard.org/internal/invoice"
	"quoteguard.org/internal/obs"
)

// handleVerify is the anonymous endpoint printed on invoices. The id may be
// given as a path segment or as ?id= for QR codes that carry a query string.
func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	publicID := r.PathValue("publicId")
	if publicID == "" {
		publicID = r.URL.Query().Get("id")
	}

	out, err := a.invoices.Verify(r.Context(), publicID)
	if err != nil {
		obs.ObserveVerification("ERROR")
		a.log.Error("verification failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeError(w, r, http.StatusServiceUnavailable, codeVerificationUnavailable,
			"verification is temporarily unavailable, try again later")
		return
	}

	status := out.Status()
	obs.ObserveVerification(string(status))
	if status == invoice.OutcomeModified {
		_ = audit.LogEvent(r.Context(), "invoice.verify.modified", map[string]any{
			"public_id": publicID,
		})
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, invoice.NewVerificationResponse(out))
}
