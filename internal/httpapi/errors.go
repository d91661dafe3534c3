package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"quoteguard.org/internal/invoice"
)

const (
	codeInvalidContent          = "INVALID_CONTENT"
	codeInvalidArgument         = "INVALID_ARGUMENT"
	codeUnauthenticated         = "UNAUTHENTICATED"
	codeInvalidCredentials      = "INVALID_CREDENTIALS"
	codeForbidden               = "FORBIDDEN"
	codeNotFound                = "NOT_FOUND"
	codeAlreadyRevoked          = "ALREADY_REVOKED"
	codeEmailTaken              = "EMAIL_TAKEN"
	codeRateLimited             = "RATE_LIMITED"
	codeVerificationUnavailable = "VERIFICATION_UNAVAILABLE"
	codeInternal                = "INTERNAL"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func (a *API) handleInvoiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, invoice.ErrInvalidContent):
		writeError(w, r, http.StatusBadRequest, codeInvalidContent, err.Error())
	case errors.Is(err, invoice.ErrInvalidArgument):
		writeError(w, r, http.StatusBadRequest, codeInvalidArgument, err.Error())
	case errors.Is(err, invoice.ErrForbidden):
		writeError(w, r, http.StatusForbidden, codeForbidden, "only the issuer may revoke this invoice")
	case errors.Is(err, invoice.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeNotFound, "invoice not found")
	case errors.Is(err, invoice.ErrAlreadyRevoked):
		writeError(w, r, http.StatusConflict, codeAlreadyRevoked, "invoice is already revoked")
	default:
		a.log.Error("invoice request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
