// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tripwise/tripwise/internal/auth"
	"github.com/tripwise/tripwise/pkg/errutil"
)

// Error codes produced by the transport itself.
const (
	CodeMalformedRequest = "REQUEST_MALFORMED"
	CodeBodyTooLarge     = "REQUEST_TOO_LARGE"
	CodeInternal         = "INTERNAL_ERROR"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind auth.Kind) int {
	switch kind {
	case auth.KindValidation:
		return http.StatusBadRequest
	case auth.KindConflict:
		return http.StatusConflict
	case auth.KindAuthentication:
		return http.StatusUnauthorized
	case auth.KindNotFound:
		return http.StatusNotFound
	case auth.KindExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Infrastructure and configuration failures are
// logged and reported without detail.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(auth.KindOf(err))
	if status == http.StatusInternalServerError {
		errutil.Log(r.Context(), h.logger, slog.LevelError, "request failed", err,
			"method", r.Method, "path", r.URL.Path)
		writeJSON(w, status, errorBody{Error: CodeInternal, Message: "internal server error"})
		return
	}
	writeJSON(w, status, errorBody{Error: auth.Code(err), Message: err.Error()})
}

// decode reads the JSON body into dst, writing a 400 or 413 on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: CodeBodyTooLarge, Message: "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: CodeMalformedRequest, Message: "request body must be a JSON object"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(body)
}
