package httpapi

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"quoteguard.org/internal/audit"
	"quoteguard.org/internal/auth"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type issuerResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if a.accounts == nil {
		writeError(w, r, http.StatusServiceUnavailable, codeInternal, "accounts are not configured")
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidArgument, err.Error())
		return
	}

	iss, err := a.accounts.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidInput):
			writeError(w, r, http.StatusBadRequest, codeInvalidArgument, err.Error())
		case errors.Is(err, auth.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, codeEmailTaken, "email is already registered")
		default:
			a.log.Error("register issuer", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
		}
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.issuer.registered", map[string]any{
		"issuer_id": iss.ID,
	})
	writeJSON(w, http.StatusCreated, issuerResponse{
		ID:        iss.ID,
		Email:     iss.Email,
		Name:      iss.Name,
		CreatedAt: iss.CreatedAt,
	})
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if a.accounts == nil || a.tokens == nil {
		writeError(w, r, http.StatusServiceUnavailable, codeInternal, "authentication is not configured")
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidArgument, err.Error())
		return
	}

	iss, err := a.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, r, http.StatusUnauthorized, codeInvalidCredentials, "invalid email or password")
			return
		}
		a.log.Error("login issuer", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
		return
	}

	token, expiresAt, err := a.tokens.Generate(auth.Identity{ID: iss.ID, Name: iss.Name})
	if err != nil {
		a.log.Error("sign token", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, codeInternal, "token generation failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"issuer_id":  iss.ID,
		"expires_at": expiresAt.Format(time.RFC3339),
	})
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expiresAt,
	})
}
