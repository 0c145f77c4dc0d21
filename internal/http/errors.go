package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/messenger/internal/bots"
	"github.com/nextlevelbuilder/messenger/internal/messenger"
	"github.com/nextlevelbuilder/messenger/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		valErr     *messenger.ValidationError
		featErr    *messenger.FeatureDisabledError
		composeErr *messenger.ComposerError
		reactErr   *messenger.ReactionError
		knockErr   *messenger.KnockError
		botErr     *bots.BotError
	)
	switch {
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"message": valErr.Error(),
			"errors":  valErr.Fields,
		})
	case errors.As(err, &featErr):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": featErr.Msg})
	case errors.As(err, &reactErr):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": reactErr.Msg})
	case errors.As(err, &knockErr):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": knockErr.Msg})
	case errors.As(err, &botErr):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": botErr.Msg})
	case errors.Is(err, bots.ErrNotAuthorized):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &composeErr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": composeErr.Error()})
	default:
		slog.Error("http.request.failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeForbidden(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusForbidden, map[string]string{"error": msg})
}
