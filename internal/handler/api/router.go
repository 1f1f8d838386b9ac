// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/olegiv/surveydesk/internal/middleware"
	"github.com/olegiv/surveydesk/internal/model"
	"github.com/olegiv/surveydesk/internal/service"
)

// Route paths.
const (
	RouteHealth       = "/healthz"
	RouteSignup       = "/auth/signup"
	RouteLogin        = "/auth/login"
	RouteLogout       = "/auth/logout"
	RouteMe           = "/auth/me"
	RouteSurveys      = "/surveys"
	RouteSurvey       = "/surveys/{slug}"
	RouteSurveySubmit = "/surveys/{slug}/submit"
)

// Messages for requests that match no route.
const (
	msgNotFound         = "Not found"
	msgMethodNotAllowed = "Method not allowed"
)

// RouterConfig wires handlers and middleware into a router.
// LoginProtection, RateLimiter and CSRF are optional. CSRF guards only the
// submit route, the one state change a forged cookie request could abuse.
type RouterConfig struct {
	CORS    *middleware.CORSPolicy
	Gate    *middleware.AuthGate
	Auth    *AuthHandler
	Surveys *SurveysHandler
	Health  *HealthHandler

	LoginProtection *middleware.LoginProtection
	RateLimiter     *middleware.GlobalRateLimiter
	CSRF            func(http.Handler) http.Handler
	SecurityHeaders middleware.SecurityHeadersConfig

	RequestTimeout time.Duration
	LogRequests    bool
}

// NewRouter builds the HTTP router.
//
// CORS headers are applied outermost so that panics, timeouts and unmatched
// routes stay readable by allowed origins; each route then narrows the
// advertised methods. Every route also answers OPTIONS with a 204 preflight.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(cfg.CORS.Handler(middleware.MethodsAny))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	if cfg.LogRequests {
		r.Use(chimw.Logger)
	}
	r.Use(middleware.SecurityHeaders(cfg.SecurityHeaders))
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(middleware.RequestPath)

	var common []func(http.Handler) http.Handler
	if cfg.RateLimiter != nil {
		common = append(common, cfg.RateLimiter.Middleware())
	}

	route := func(methods string, extra ...func(http.Handler) http.Handler) chi.Router {
		mws := make([]func(http.Handler) http.Handler, 0, 1+len(common)+len(extra))
		mws = append(mws, cfg.CORS.Handler(methods))
		mws = append(mws, common...)
		mws = append(mws, extra...)
		return r.With(mws...)
	}
	preflight := func(path, methods string) {
		r.Options(path, cfg.CORS.Preflight(methods))
	}

	var loginLimit []func(http.Handler) http.Handler
	if cfg.LoginProtection != nil {
		loginLimit = append(loginLimit, cfg.LoginProtection.Middleware())
	}

	// Health
	route(middleware.MethodsGet).Get(RouteHealth, cfg.Health.Health)
	preflight(RouteHealth, middleware.MethodsGet)

	// Authentication
	route(middleware.MethodsPost, loginLimit...).Post(RouteSignup, cfg.Auth.Signup)
	preflight(RouteSignup, middleware.MethodsPost)

	route(middleware.MethodsPost, loginLimit...).Post(RouteLogin, cfg.Auth.Login)
	preflight(RouteLogin, middleware.MethodsPost)

	route(middleware.MethodsPost).Post(RouteLogout, cfg.Auth.Logout)
	preflight(RouteLogout, middleware.MethodsPost)

	route(middleware.MethodsGet, cfg.Gate.RequireSession()).Get(RouteMe, cfg.Auth.Me)
	preflight(RouteMe, middleware.MethodsGet)

	// Surveys
	route(middleware.MethodsGet, cfg.Gate.RequireSession()).Get(RouteSurveys, cfg.Surveys.List)
	preflight(RouteSurveys, middleware.MethodsGet)

	route(middleware.MethodsGet, cfg.Gate.RequireSession()).Get(RouteSurvey, cfg.Surveys.Get)
	preflight(RouteSurvey, middleware.MethodsGet)

	var submitChain []func(http.Handler) http.Handler
	if cfg.CSRF != nil {
		submitChain = append(submitChain, cfg.CSRF)
	}
	submitChain = append(submitChain, cfg.Gate.RequireRole(func(model.Role) string {
		return service.MsgAdminCannotSubmit
	}, model.RoleUser))
	route(middleware.MethodsPost, submitChain...).Post(RouteSurveySubmit, cfg.Surveys.Submit)
	preflight(RouteSurveySubmit, middleware.MethodsPost)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		cfg.CORS.Apply(w, req, middleware.MethodsAny)
		middleware.WriteAPIError(w, http.StatusNotFound, msgNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		cfg.CORS.Apply(w, req, middleware.MethodsAny)
		middleware.WriteAPIError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
	})

	return r
}
