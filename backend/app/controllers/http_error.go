package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"folder-sync/backend/app/services"
	"folder-sync/backend/app/syncer"
)

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps the error taxonomy onto HTTP statuses. Recoverable
// transport conditions never reach here; they surface only as a transient
// unsynced status.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, syncer.ErrUnknownFolder), errors.Is(err, syncer.ErrUnknownComputer):
		status = http.StatusNotFound
	case errors.Is(err, syncer.ErrInvalidOrigin):
		status = http.StatusForbidden
	case errors.Is(err, syncer.ErrSelfBackup):
		status = http.StatusBadRequest
	case errors.Is(err, syncer.ErrDuplicateBackup),
		errors.Is(err, syncer.ErrNotSynced),
		errors.Is(err, syncer.ErrNotBackup),
		errors.Is(err, syncer.ErrSequenceGap),
		errors.Is(err, services.ErrNameTaken):
		status = http.StatusConflict
	case errors.Is(err, services.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
