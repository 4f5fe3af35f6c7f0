package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/disasterlens/civicguard/internal/cgerr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeDomainError maps the error taxonomy onto HTTP status codes. All of
// these are recoverable at the client: the user may retry the action.
func writeDomainError(w http.ResponseWriter, err error) {
	var (
		authErr      *cgerr.AuthorizationError
		contractErr  *cgerr.ClassifierContractError
		notFoundErr  *cgerr.NotFoundError
		validateErr  *cgerr.ValidationError
		transportErr *cgerr.TransportError
	)
	switch {
	case errors.As(err, &authErr):
		writeError(w, http.StatusForbidden, authErr.Error())
	case errors.As(err, &notFoundErr):
		writeError(w, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &validateErr):
		writeError(w, http.StatusBadRequest, validateErr.Error())
	case errors.As(err, &contractErr):
		writeError(w, http.StatusBadGateway, contractErr.Error())
	case errors.As(err, &transportErr):
		writeError(w, http.StatusServiceUnavailable, transportErr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
