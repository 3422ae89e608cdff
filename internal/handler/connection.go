package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	apperrors "github.com/rahlquantum/pairing-server-go/internal/errors"
	"github.com/rahlquantum/pairing-server-go/internal/httputil"
	"github.com/rahlquantum/pairing-server-go/internal/supervisor"
	"github.com/rahlquantum/pairing-server-go/internal/transport"
	"github.com/rahlquantum/pairing-server-go/internal/util"
)

type ConnectionHandler struct {
	sup *supervisor.Supervisor
}

func NewConnectionHandler(sup *supervisor.Supervisor) *ConnectionHandler {
	return &ConnectionHandler{sup: sup}
}

type startRequest struct {
	Mode   string `json:"mode"`
	Number string `json:"number"`
}

// POST /start
//
// No body (or {"mode":"qr"}) begins a QR-mode connection. With
// {"mode":"pair","number":...} the transport's device-linking code is
// returned; this code links the relay account itself and is unrelated to
// the application codes issued by /pair.
func (h *ConnectionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httputil.WriteError(w, apperrors.ValidationError("Invalid JSON body"))
		return
	}

	mode := transport.ModeQR
	if req.Mode != "" {
		switch transport.Mode(req.Mode) {
		case transport.ModeQR, transport.ModePair:
			mode = transport.Mode(req.Mode)
		default:
			httputil.WriteError(w, apperrors.ValidationError("Mode must be \"qr\" or \"pair\""))
			return
		}
	}

	if mode == transport.ModeQR {
		if err := h.sup.Start(r.Context(), transport.ModeQR, ""); err != nil {
			log.Error().Err(err).Msg("failed to start connection")
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteOK(w, nil)
		return
	}

	number, ok := util.NormalizeNumber(req.Number)
	if !ok {
		httputil.WriteError(w, apperrors.ValidationError("Invalid phone number"))
		return
	}

	if err := h.sup.Start(r.Context(), transport.ModePair, number); err != nil {
		log.Error().Err(err).Msg("failed to start connection")
		httputil.WriteError(w, err)
		return
	}

	code, err := h.sup.RequestPairingCode(r.Context(), number)
	if err != nil {
		log.Error().Err(err).Msg("failed to request linking code")
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteOK(w, map[string]any{"code": code})
}

// POST /stop
func (h *ConnectionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.sup.Stop()
	httputil.WriteOK(w, nil)
}

// GET /qr
func (h *ConnectionHandler) QR(w http.ResponseWriter, r *http.Request) {
	qr, err := h.sup.CurrentQR()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteOK(w, map[string]any{"qr": qr})
}

// GET /status
func (h *ConnectionHandler) Status(w http.ResponseWriter, r *http.Request) {
	state, mode, retryCount, lastErr := h.sup.Snapshot()

	fields := map[string]any{
		"state":      state,
		"retryCount": retryCount,
	}
	if mode != "" {
		fields["mode"] = mode
	}
	if lastErr != nil {
		fields["lastError"] = lastErr.Error()
	}
	httputil.WriteOK(w, fields)
}
