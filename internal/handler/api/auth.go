// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/olegiv/surveydesk/internal/auth"
	"github.com/olegiv/surveydesk/internal/middleware"
	"github.com/olegiv/surveydesk/internal/model"
	"github.com/olegiv/surveydesk/internal/service"
	"github.com/olegiv/surveydesk/internal/session"
	"github.com/olegiv/surveydesk/internal/util"
)

// CookieConfig controls the session cookie mirrored to browsers.
type CookieConfig struct {
	Name   string
	Secure bool
}

// AuthHandler handles signup, login, logout and the current-user endpoint.
type AuthHandler struct {
	auth   *service.AuthService
	cookie CookieConfig
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, cookie CookieConfig) *AuthHandler {
	if cookie.Name == "" {
		cookie.Name = auth.SessionCookieName
	}
	return &AuthHandler{auth: authService, cookie: cookie}
}

// authResponse is returned by signup and login.
type authResponse struct {
	Token string         `json:"token"`
	User  model.Identity `json:"user"`
}

// userResponse is returned by the current-user endpoint.
type userResponse struct {
	User model.Identity `json:"user"`
}

// Signup handles POST /auth/signup.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var in service.SignupInput
	if err := decodeJSON(w, r, &in); err != nil {
		WriteServiceError(w, r, err)
		return
	}

	res, err := h.auth.Signup(r.Context(), in, clientInfo(r))
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	h.setSessionCookie(w, res.Session)
	WriteJSON(w, http.StatusCreated, authResponse{Token: res.Session.Token, User: res.User})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var in service.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		WriteServiceError(w, r, err)
		return
	}

	res, err := h.auth.Login(r.Context(), in, clientInfo(r))
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	h.setSessionCookie(w, res.Session)
	WriteJSON(w, http.StatusOK, authResponse{Token: res.Session.Token, User: res.User})
}

// Logout handles POST /auth/logout. It always succeeds; a missing or
// unknown token is ignored.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token, ok := auth.TokenFromRequest(r, h.cookie.Name); ok {
		if err := h.auth.Logout(r.Context(), token); err != nil {
			slog.Error("logout failed", "error", err, "ip", util.ClientIP(r))
		}
	}

	h.clearSessionCookie(w)
	WriteJSON(w, http.StatusOK, okResponse{OK: true})
}

// Me handles GET /auth/me. It runs behind AuthGate.RequireSession.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		WriteServiceError(w, r, service.Unauthorized(nil))
		return
	}

	user, err := h.auth.Me(r.Context(), id)
	if err != nil {
		WriteServiceError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusOK, userResponse{User: user})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, s session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clientInfo(r *http.Request) session.ClientInfo {
	return service.NewClientInfo(util.ClientIP(r), r.UserAgent())
}
