// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/olegiv/surveydesk/internal/model"
	"github.com/olegiv/surveydesk/internal/service"
	"github.com/olegiv/surveydesk/internal/session"
	"github.com/olegiv/surveydesk/internal/util"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// Context keys for request data.
const (
	ContextKeyIdentity    ContextKey = "identity"
	ContextKeyRequestPath ContextKey = "request_path"
)

// IdentityResolver authenticates a request. *session.Resolver satisfies it.
type IdentityResolver interface {
	Resolve(r *http.Request) (model.Identity, error)
}

// ForbiddenMessage builds the 403 message shown to a caller holding role.
type ForbiddenMessage func(role model.Role) string

// DefaultForbiddenMessage names the caller's role.
func DefaultForbiddenMessage(role model.Role) string {
	return "Forbidden: " + role.String() + " accounts cannot access this resource."
}

// AuthGate authorizes requests against a session and a set of roles.
type AuthGate struct {
	resolver IdentityResolver
	events   *service.EventService
}

// NewAuthGate creates an AuthGate. events may be nil.
func NewAuthGate(resolver IdentityResolver, events *service.EventService) *AuthGate {
	return &AuthGate{resolver: resolver, events: events}
}

// Authorize resolves the caller and checks their role against roles.
// With no roles any authenticated caller passes. Failures are *service.Error
// values of kind KindUnauthorized, KindForbidden or KindInternal.
func (g *AuthGate) Authorize(r *http.Request, message ForbiddenMessage, roles ...model.Role) (model.Identity, error) {
	id, err := g.resolver.Resolve(r)
	if err != nil {
		if session.IsUnauthorized(err) {
			slog.Debug("request unauthenticated", "path", r.URL.Path, "reason", err)
			return model.Identity{}, service.Unauthorized(err)
		}
		return model.Identity{}, service.Internal("Internal server error", err)
	}

	if len(roles) > 0 && !id.HasRole(roles...) {
		if message == nil {
			message = DefaultForbiddenMessage
		}
		g.logForbidden(r, id, roles)
		return id, service.Forbidden(message(id.Role))
	}

	return id, nil
}

// RequireSession returns middleware admitting any authenticated caller.
func (g *AuthGate) RequireSession() func(http.Handler) http.Handler {
	return g.RequireRole(nil)
}

// RequireRole returns middleware admitting callers holding one of roles.
// The identity is stored in the request context for handlers.
func (g *AuthGate) RequireRole(message ForbiddenMessage, roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := g.Authorize(r, message, roles...)
			if err != nil {
				se := service.AsError(err)
				if se.Kind == service.KindInternal {
					slog.Error("session resolution failed", "path", r.URL.Path, "error", se.Err)
				}
				WriteAPIError(w, service.StatusCode(se), se.Message)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

func (g *AuthGate) logForbidden(r *http.Request, id model.Identity, roles []model.Role) {
	required := make([]string, 0, len(roles))
	for _, role := range roles {
		required = append(required, role.String())
	}

	slog.Warn("access denied",
		"status", http.StatusForbidden,
		"method", r.Method,
		"path", r.URL.Path,
		"user_id", id.ID,
		"user_role", id.Role,
		"required_roles", strings.Join(required, ","),
	)

	if g.events != nil {
		metadata := map[string]any{
			"method":         r.Method,
			"path":           r.URL.Path,
			"user_role":      id.Role.String(),
			"required_roles": required,
		}
		_ = g.events.LogAuthEvent(r.Context(), model.EventLevelWarning, "Access denied: insufficient role", id.ID, util.ClientIP(r), metadata)
	}
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id model.Identity) context.Context {
	return context.WithValue(ctx, ContextKeyIdentity, id)
}

// IdentityFromContext returns the identity stored by an AuthGate middleware.
func IdentityFromContext(ctx context.Context) (model.Identity, bool) {
	id, ok := ctx.Value(ContextKeyIdentity).(model.Identity)
	return id, ok
}

// RequestPath creates middleware that stores the request path in the context.
// This is used by the logging handler to include the URL in error logs.
func RequestPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ContextKeyRequestPath, r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestPath retrieves the request path from the context.
func GetRequestPath(ctx context.Context) string {
	path, ok := ctx.Value(ContextKeyRequestPath).(string)
	if !ok {
		return ""
	}
	return path
}
