// Package httpapi exposes the auth service over JSON/HTTP under /api/v1/auth.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/sonifoy/authsvc/internal/common"
	"github.com/sonifoy/authsvc/internal/logging"
	"github.com/sonifoy/authsvc/internal/server/models"
	"github.com/sonifoy/authsvc/internal/server/services"
)

// maxBodyBytes bounds request bodies; every payload is a handful of strings.
const maxBodyBytes = 1 << 16

// AuthService is the subset of services.AuthService the handlers call.
type AuthService interface {
	Register(ctx context.Context, req services.RegisterRequest) (*models.Identity, error)
	VerifyEmail(ctx context.Context, email, code string) (*models.Identity, error)
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	Refresh(ctx context.Context, token string) (*services.RefreshResult, error)
	Logout(ctx context.Context, sessionID string) error
}

type validatable interface {
	Validate() error
}

type handler struct {
	auth   AuthService
	logger logging.Logger
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}

	identity, err := h.auth.Register(r.Context(), services.RegisterRequest{
		Email:           req.Email,
		Password:        req.Password,
		Name:            req.Name,
		ProfileCategory: req.ProfileCategory,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newIdentityResponse(identity))
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newLoginResponse(res))
}

func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newRefreshResponse(res))
}

func (h *handler) verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	identity, err := h.auth.VerifyEmail(r.Context(), req.Email, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, newIdentityResponse(identity))
}

func (h *handler) resendVerify(w http.ResponseWriter, r *http.Request) {
	var req ResendVerifyRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.auth.ResendVerification(r.Context(), req.Email); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get(common.SessionIDQueryParam)
	if err := h.auth.Logout(r.Context(), sessionID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// decode reads a JSON body into dst and validates it. On failure it writes
// the error response and returns false.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, dst validatable) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		h.writeJSON(w, r, http.StatusBadRequest, &ErrorResponse{Code: CodeMalformedBody, Message: "request body is not valid JSON"})
		return false
	}
	if err := dst.Validate(); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := toErrorResponse(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	h.writeJSON(w, r, status, body)
}

func (h *handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn(r.Context(), "error writing response", "error", err)
	}
}
