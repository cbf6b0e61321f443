// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/oklog/ulid/v2"

	"github.com/tripwise/tripwise/internal/auth"
	"github.com/tripwise/tripwise/internal/logging"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 64 << 10

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

type userKey struct{}

// UserFromContext returns the account authenticated by requireBearer.
func UserFromContext(ctx context.Context) (*auth.UserSummary, bool) {
	user, ok := ctx.Value(userKey{}).(*auth.UserSummary)
	return user, ok
}

// requestID propagates X-Request-ID, minting one when absent.
func (h *Handlers) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = ulid.Make().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (h *Handlers) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				h.logger.ErrorContext(r.Context(), "handler panic", "panic", v, "path", r.URL.Path)
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: CodeInternal, Message: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// observe records request metrics under the route template.
func (h *Handlers) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		elapsed := time.Since(start)
		h.metrics.ObserveRequest(route, r.Method, rec.status, elapsed)
		h.logger.DebugContext(r.Context(), "request served",
			"method", r.Method, "route", route, "status", rec.status, "duration", elapsed)
	})
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// requireBearer authenticates the Authorization: Bearer access token.
func (h *Handlers) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="tripwise"`)
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: auth.CodeInvalidAccessToken, Message: "missing bearer token"})
			return
		}
		user, err := h.svc.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			if auth.KindOf(err) == auth.KindAuthentication {
				w.Header().Set("WWW-Authenticate", `Bearer realm="tripwise", error="invalid_token"`)
			}
			h.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}
