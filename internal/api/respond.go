package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MikeSquared-Agency/fleek/internal/processor"
	"github.com/MikeSquared-Agency/fleek/internal/session"
	"github.com/MikeSquared-Agency/fleek/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure maps a pipeline error to its HTTP status.
func writeFailure(w http.ResponseWriter, err error) {
	var terr *processor.TransportError
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, processor.ErrBusy),
		errors.Is(err, processor.ErrNothingToRetry),
		errors.Is(err, processor.ErrNotStreaming):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, processor.ErrEmptyMessage), errors.Is(err, processor.ErrEmptyDocument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, processor.ErrStoreDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &terr):
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "retryable": true})
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
