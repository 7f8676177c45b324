package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/onnwee/streamwatch/clipsource"
	"github.com/onnwee/streamwatch/social"
	"github.com/onnwee/streamwatch/telemetry"
)

// HandleListClipSources returns the user's clip sources, newest first.
func (h *Handlers) HandleListClipSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.clipSources.ListByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list clip sources failed", slog.Any("err", err), slog.String("component", "http"))
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

type createClipSourceRequest struct {
	Platform string `json:"platform"`
	Page     string `json:"page"`
}

func (h *Handlers) HandleCreateClipSource(w http.ResponseWriter, r *http.Request) {
	var body createClipSourceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	platform, err := clipsource.ParsePlatform(body.Platform)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	src, err := h.clipSources.Create(r.Context(), chi.URLParam(r, "userID"), platform, body.Page)
	if errors.Is(err, clipsource.ErrInvalid) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("create clip source failed", slog.Any("err", err), slog.String("component", "http"))
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (h *Handlers) HandleDeleteClipSource(w http.ResponseWriter, r *http.Request) {
	n, err := h.clipSources.Delete(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("delete clip source failed", slog.Any("err", err), slog.String("component", "http"))
		writeInternalError(w)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, clipsource.ErrNotFound.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListSocialAccounts returns the user's linked social accounts, newest first.
func (h *Handlers) HandleListSocialAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.socialAccounts.ListByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("list social accounts failed", slog.Any("err", err), slog.String("component", "http"))
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

type createSocialAccountRequest struct {
	Platform string `json:"platform"`
	Username string `json:"username"`
	URL      string `json:"url"`
}

// HandleCreateSocialAccount links an account; the URL must match the platform's profile pattern.
func (h *Handlers) HandleCreateSocialAccount(w http.ResponseWriter, r *http.Request) {
	var body createSocialAccountRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	platform, err := social.ParsePlatform(body.Platform)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	acct, err := h.socialAccounts.Create(r.Context(), chi.URLParam(r, "userID"), platform, body.Username, body.URL)
	if errors.Is(err, social.ErrInvalid) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("create social account failed", slog.Any("err", err), slog.String("component", "http"))
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (h *Handlers) HandleDeleteSocialAccount(w http.ResponseWriter, r *http.Request) {
	err := h.socialAccounts.Delete(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	switch {
	case errors.Is(err, social.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		telemetry.LoggerWithCorr(r.Context()).Error("delete social account failed", slog.Any("err", err), slog.String("component", "http"))
		writeInternalError(w)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}
