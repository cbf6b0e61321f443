// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tripwise Contributors

// Package httpapi exposes the credential service as JSON over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tripwise/tripwise/internal/auth"
	"github.com/tripwise/tripwise/internal/observability"
)

// CredentialService is the subset of *auth.CredentialService the API calls.
type CredentialService interface {
	Register(ctx context.Context, email, userName, password string) (*auth.RegisterResult, error)
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.RefreshResult, error)
	Logout(ctx context.Context, refreshToken string) (string, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) (string, error)
	Authenticate(ctx context.Context, accessToken string) (*auth.UserSummary, error)
}

// Handlers serves /api/auth.
type Handlers struct {
	svc     CredentialService
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewHandlers creates handlers. metrics may be nil.
func NewHandlers(svc CredentialService, logger *slog.Logger, metrics *observability.Metrics) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, logger: logger, metrics: metrics}
}

// Router returns a router with the auth routes and middleware installed.
func (h *Handlers) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(h.requestID, h.recoverPanic, h.observe, limitBody)
	h.RegisterRoutes(router)
	router.NotFoundHandler = http.HandlerFunc(notFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	return router
}

// RegisterRoutes adds the auth routes to router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/auth").Subrouter()
	// A subrouter does not inherit these, and a method mismatch is decided here.
	api.NotFoundHandler = http.HandlerFunc(notFound)
	api.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	api.HandleFunc("/register", h.register).Methods(http.MethodPost)
	api.HandleFunc("/login", h.login).Methods(http.MethodPost)
	api.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)
	api.HandleFunc("/logout", h.logout).Methods(http.MethodPost)
	api.HandleFunc("/forgot-password", h.forgotPassword).Methods(http.MethodPost)
	api.HandleFunc("/reset-password", h.resetPassword).Methods(http.MethodPost)
	api.Handle("/me", h.requireBearer(http.HandlerFunc(h.me))).Methods(http.MethodGet)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: "NOT_FOUND", Message: "no such endpoint"})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
}

type registerRequest struct {
	Email    string `json:"email"`
	UserName string `json:"userName"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// register handles POST /api/auth/register
func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.Register(r.Context(), req.Email, req.UserName, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// login handles POST /api/auth/login
func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// refresh handles POST /api/auth/refresh
func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// logout handles POST /api/auth/logout
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondMessage(w, r)(h.svc.Logout(r.Context(), req.RefreshToken))
}

// forgotPassword handles POST /api/auth/forgot-password
func (h *Handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondMessage(w, r)(h.svc.ForgotPassword(r.Context(), req.Email))
}

// resetPassword handles POST /api/auth/reset-password
func (h *Handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.respondMessage(w, r)(h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword))
}

// me handles GET /api/auth/me
func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: auth.CodeInvalidAccessToken, Message: "invalid access token"})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) respondMessage(w http.ResponseWriter, r *http.Request) func(string, error) {
	return func(msg string, err error) {
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: msg})
	}
}
