package server

import (
	"log/slog"
	"net/http"

	"github.com/onnwee/streamwatch/reconcile"
	"github.com/onnwee/streamwatch/telemetry"
)

type cronResponse struct {
	Success bool `json:"success"`
	reconcile.GlobalResult
}

// HandleCronUpdateStreamers runs a global reconciliation and waits for every write.
func (h *Handlers) HandleCronUpdateStreamers(w http.ResponseWriter, r *http.Request) {
	res, err := h.reconciler.Global(r.Context())
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("global reconciliation failed", slog.Any("err", err), slog.String("component", "http"))
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, cronResponse{Success: true, GlobalResult: res})
}
