package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/rahlquantum/pairing-server-go/internal/errors"
	"github.com/rahlquantum/pairing-server-go/internal/httputil"
	"github.com/rahlquantum/pairing-server-go/internal/service"
)

type PairingHandler struct {
	issuer *service.Issuer
}

func NewPairingHandler(issuer *service.Issuer) *PairingHandler {
	return &PairingHandler{issuer: issuer}
}

type pairRequest struct {
	Number string `json:"number"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

// POST /pair
func (h *PairingHandler) Pair(w http.ResponseWriter, r *http.Request) {
	var req pairRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.MissingRequired("Phone number"))
		return
	}

	result, err := h.issuer.RequestPairing(r.Context(), req.Number)
	if err != nil {
		log.Warn().Err(err).Msg("pairing request rejected")
		httputil.WriteError(w, err)
		return
	}

	fields := map[string]any{
		"code":      result.Code,
		"expiresIn": result.ExpiresIn,
	}
	if result.Warning != "" {
		fields["warning"] = result.Warning
	}
	httputil.WriteOK(w, fields)
}

// POST /verify
func (h *PairingHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.MissingRequired("Code"))
		return
	}

	result, err := h.issuer.Verify(r.Context(), req.Code)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	fields := map[string]any{
		"sessionId": result.SessionID,
	}
	if result.Warning != "" {
		fields["warning"] = result.Warning
	}
	httputil.WriteOK(w, fields)
}
