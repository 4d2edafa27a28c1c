package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"accounts/internal/domain"
	"accounts/internal/observability/middleware"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters: the first sentinel the error matches wins.
var errorMappings = []errorMapping{
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{domain.ErrAccountLocked, http.StatusLocked, "account_locked"},
	{domain.ErrAccountInactive, http.StatusForbidden, "account_inactive"},
	{domain.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{domain.ErrInvalidOrExpiredToken, http.StatusBadRequest, "invalid_or_expired_token"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "unavailable"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
}

// writeError maps a service error onto a status code and a stable JSON
// body. Wrapped driver detail never reaches the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrInvalidInput) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: err.Error()})
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			if m.status == http.StatusServiceUnavailable {
				w.Header().Set("Retry-After", "1")
				slog.Warn("store unavailable", append([]any{"error", err, "path", r.URL.Path}, middleware.LogAttrs(r.Context())...)...)
			}
			writeJSON(w, m.status, errorBody{Error: m.code, Message: m.err.Error()})
			return
		}
	}
	slog.Error("unhandled error", append([]any{"error", err, "path", r.URL.Path}, middleware.LogAttrs(r.Context())...)...)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: "internal server error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		msg := "malformed JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_input", Message: msg})
		return false
	}
	return true
}
