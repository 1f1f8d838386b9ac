// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/olegiv/surveydesk/internal/auth"
	"github.com/olegiv/surveydesk/internal/model"
	"github.com/olegiv/surveydesk/internal/store"
)

// Reasons a request is unauthenticated. They are logged, never returned to clients.
const (
	ReasonMissing = "missing credential"
	ReasonInvalid = "invalid credential"
	ReasonExpired = "expired"
)

// UnauthorizedError reports why a request could not be authenticated.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	return "unauthorized: " + e.Reason
}

// IsUnauthorized reports whether err is an *UnauthorizedError.
func IsUnauthorized(err error) bool {
	var ue *UnauthorizedError
	return errors.As(err, &ue)
}

// UserLoader loads the owner of a session. *store.Queries satisfies it.
type UserLoader interface {
	GetUserByID(ctx context.Context, id string) (store.User, error)
}

// Resolver turns request credentials into an authenticated identity.
type Resolver struct {
	manager    *Manager
	users      UserLoader
	cookieName string
}

// NewResolver creates a Resolver reading the token from the Authorization
// header or the named cookie.
func NewResolver(manager *Manager, users UserLoader, cookieName string) *Resolver {
	if cookieName == "" {
		cookieName = auth.SessionCookieName
	}
	return &Resolver{manager: manager, users: users, cookieName: cookieName}
}

// Resolve authenticates r. Any failure to authenticate is an
// *UnauthorizedError; other errors come from the persistence layer.
func (res *Resolver) Resolve(r *http.Request) (model.Identity, error) {
	token, ok := auth.TokenFromRequest(r, res.cookieName)
	if !ok {
		return model.Identity{}, &UnauthorizedError{Reason: ReasonMissing}
	}
	return res.ResolveToken(r.Context(), token)
}

// ResolveToken authenticates a raw token.
func (res *Resolver) ResolveToken(ctx context.Context, token string) (model.Identity, error) {
	rec, err := res.manager.Lookup(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return model.Identity{}, &UnauthorizedError{Reason: ReasonInvalid}
	}
	if err != nil {
		return model.Identity{}, err
	}

	if rec.Expired(res.manager.Now()) {
		if err := res.manager.RevokeExpired(ctx, token); err != nil {
			slog.Warn("failed to remove expired session", "user_id", rec.UserID, "error", err)
		}
		return model.Identity{}, &UnauthorizedError{Reason: ReasonExpired}
	}

	user, err := res.users.GetUserByID(ctx, rec.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Identity{}, &UnauthorizedError{Reason: ReasonInvalid}
	}
	if err != nil {
		return model.Identity{}, err
	}

	return user.ToModel().Identity(), nil
}
