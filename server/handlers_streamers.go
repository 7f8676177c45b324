package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/streamwatch/streamer"
	"github.com/onnwee/streamwatch/telemetry"
)

// HandleListStreamers returns the user's tracked accounts with refreshed live status.
func (h *Handlers) HandleListStreamers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.reconciler.Scoped(r.Context(), chi.URLParam(r, "userID"))
	h.writeAccounts(w, r, accounts, err)
}

// HandleListLiveStreamers returns only the user's accounts that are live right now.
func (h *Handlers) HandleListLiveStreamers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.reconciler.Live(r.Context(), chi.URLParam(r, "userID"))
	h.writeAccounts(w, r, accounts, err)
}

func (h *Handlers) writeAccounts(w http.ResponseWriter, r *http.Request, accounts []streamer.TrackedAccount, err error) {
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list streamers failed", slog.Any("err", err), slog.String("component", "http"))
		writeInternalError(w)
		return
	}
	if accounts == nil {
		accounts = []streamer.TrackedAccount{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

type createStreamerRequest struct {
	Platform string `json:"platform"`
	Username string `json:"username"`
}

// HandleCreateStreamer starts tracking {platform, username} for the user.
func (h *Handlers) HandleCreateStreamer(w http.ResponseWriter, r *http.Request) {
	var body createStreamerRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	platform, err := streamer.ParsePlatform(body.Platform)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acct, err := h.store.Create(r.Context(), chi.URLParam(r, "userID"), platform, body.Username)
	if errors.Is(err, streamer.ErrInvalid) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("create streamer failed", slog.Any("err", err), slog.String("component", "http"))
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

// HandleDeleteStreamer stops tracking an account the user owns.
func (h *Handlers) HandleDeleteStreamer(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.Delete(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("delete streamer failed", slog.Any("err", err), slog.String("component", "http"))
		writeInternalError(w)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, streamer.ErrNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
