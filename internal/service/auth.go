// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/olegiv/surveydesk/internal/auth"
	"github.com/olegiv/surveydesk/internal/model"
	"github.com/olegiv/surveydesk/internal/session"
	"github.com/olegiv/surveydesk/internal/store"
	"github.com/olegiv/surveydesk/internal/util"
)

// MinPasswordLength is the shortest password accepted at signup.
const MinPasswordLength = 8

// Client-facing messages for the auth endpoints.
const (
	msgSignupRequired     = "Email and password are required."
	msgPasswordTooShort   = "Password must be at least 8 characters."
	msgEmailTaken         = "An account with this email already exists."
	msgSignupFailed       = "Signup failed."
	msgLoginRequired      = "Login role, username/email and password are required."
	msgInvalidLoginRole   = "Invalid login role selected."
	msgInvalidCredentials = "Invalid username/email or password."
	msgLoginFailed        = "Login failed."
	msgAccountLocked      = "Too many failed login attempts. Please try again later."
)

// LoginGuard tracks failed logins per account and locks accounts that
// exceed the allowed number of failures.
type LoginGuard interface {
	IsAccountLocked(ctx context.Context, account string) (bool, time.Duration)
	RecordFailedAttempt(ctx context.Context, account string) (bool, time.Duration)
	RecordSuccessfulLogin(ctx context.Context, account string)
}

// SignupInput is the body of a signup request.
type SignupInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginInput is the body of a login request.
type LoginInput struct {
	LoginAs    string `json:"loginAs"`
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// AuthResult is returned by a successful signup or login.
type AuthResult struct {
	Session session.Session
	User    model.Identity
}

// AuthService implements account signup, login and logout.
type AuthService struct {
	queries  *store.Queries
	sessions *session.Manager
	events   *EventService
	guard    LoginGuard
}

// NewAuthService creates an AuthService. events and guard may be nil.
func NewAuthService(db *sql.DB, sessions *session.Manager, events *EventService, guard LoginGuard) *AuthService {
	return &AuthService{
		queries:  store.New(db),
		sessions: sessions,
		events:   events,
		guard:    guard,
	}
}

// Signup creates a USER account and opens its first session.
func (s *AuthService) Signup(ctx context.Context, in SignupInput, client session.ClientInfo) (AuthResult, error) {
	email := util.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return AuthResult{}, Validation(msgSignupRequired)
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return AuthResult{}, Validation(msgPasswordTooShort)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return AuthResult{}, Internal(msgSignupFailed, fmt.Errorf("hashing password: %w", err))
	}

	now := time.Now().UTC()
	user, err := s.queries.CreateUser(ctx, store.CreateUserParams{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Role:         string(model.RoleUser),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if errors.Is(err, store.ErrUniqueViolation) {
		return AuthResult{}, Conflict(msgEmailTaken)
	}
	if err != nil {
		return AuthResult{}, Internal(msgSignupFailed, fmt.Errorf("creating user: %w", err))
	}

	sess, err := s.sessions.Create(ctx, user.ID, client)
	if err != nil {
		return AuthResult{}, Internal(msgSignupFailed, err)
	}

	slog.Info("user signed up", "user_id", user.ID, "email", user.Email)
	s.logAuth(ctx, model.EventLevelInfo, "User signed up", user.ID, client.IPAddress, map[string]any{"email": user.Email})

	return AuthResult{Session: sess, User: user.ToModel().Identity()}, nil
}

// Login verifies credentials for the requested role and opens a session.
func (s *AuthService) Login(ctx context.Context, in LoginInput, client session.ClientInfo) (AuthResult, error) {
	identifier := util.NormalizeEmail(in.Identifier)
	if in.LoginAs == "" || identifier == "" || in.Password == "" {
		return AuthResult{}, Validation(msgLoginRequired)
	}

	loginAs, ok := model.ParseRole(in.LoginAs)
	if !ok {
		return AuthResult{}, Validation(msgInvalidLoginRole)
	}

	if s.guard != nil {
		if locked, remaining := s.guard.IsAccountLocked(ctx, identifier); locked {
			slog.Warn("login attempt on locked account", "email", identifier, "ip", client.IPAddress)
			return AuthResult{}, RateLimited(msgAccountLocked, remaining)
		}
	}

	user, err := s.queries.GetUserByEmail(ctx, identifier)
	if errors.Is(err, sql.ErrNoRows) {
		// Keep unknown and known accounts indistinguishable by timing
		auth.CheckDummyPassword(in.Password)
		return AuthResult{}, s.failedLogin(ctx, identifier, "", client, "unknown account")
	}
	if err != nil {
		return AuthResult{}, Internal(msgLoginFailed, fmt.Errorf("loading user: %w", err))
	}

	if !auth.CheckPassword(in.Password, user.PasswordHash) {
		return AuthResult{}, s.failedLogin(ctx, identifier, user.ID, client, "wrong password")
	}

	if s.guard != nil {
		s.guard.RecordSuccessfulLogin(ctx, identifier)
	}

	role := model.Role(user.Role)
	if role != loginAs {
		s.logAuth(ctx, model.EventLevelWarning, "Login with wrong role", user.ID, client.IPAddress,
			map[string]any{"requested": loginAs.String(), "actual": role.String()})
		return AuthResult{}, Forbidden(fmt.Sprintf("This account is registered as %s. Please choose %s login.", role, role))
	}

	s.upgradeHash(ctx, user, in.Password)

	now := time.Now().UTC()
	if err := s.queries.UpdateUserLastLogin(ctx, store.UpdateUserLastLoginParams{
		LastLoginAt: sql.NullTime{Time: now, Valid: true},
		ID:          user.ID,
	}); err != nil {
		slog.Warn("failed to record last login", "user_id", user.ID, "error", err)
	}

	sess, err := s.sessions.Create(ctx, user.ID, client)
	if err != nil {
		return AuthResult{}, Internal(msgLoginFailed, err)
	}

	slog.Info("user logged in", "user_id", user.ID, "role", user.Role)
	s.logAuth(ctx, model.EventLevelInfo, "User logged in", user.ID, client.IPAddress, nil)

	return AuthResult{Session: sess, User: user.ToModel().Identity()}, nil
}

// Logout revokes the session for token. An empty or unknown token is a no-op.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, token); err != nil {
		return Internal("Logout failed.", err)
	}
	return nil
}

// Me loads the current state of the identity's account.
func (s *AuthService) Me(ctx context.Context, id model.Identity) (model.Identity, error) {
	user, err := s.queries.GetUserByID(ctx, id.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Identity{}, Unauthorized(errors.New("user no longer exists"))
	}
	if err != nil {
		return model.Identity{}, Internal("Internal server error", err)
	}
	return user.ToModel().Identity(), nil
}

// RevokeAllSessions ends every session of userID.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID string) (int64, error) {
	n, err := s.sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("revoked user sessions", "user_id", userID, "count", n)
		if s.events != nil {
			_ = s.events.LogSessionEvent(ctx, model.EventLevelInfo, "All sessions revoked", userID, "",
				map[string]any{"count": n})
		}
	}
	return n, nil
}

func (s *AuthService) failedLogin(ctx context.Context, identifier, userID string, client session.ClientInfo, reason string) error {
	slog.Info("login failed", "email", identifier, "ip", client.IPAddress, "reason", reason)
	s.logAuth(ctx, model.EventLevelWarning, "Failed login attempt", userID, client.IPAddress,
		map[string]any{"email": identifier, "reason": reason})

	if s.guard != nil {
		if locked, d := s.guard.RecordFailedAttempt(ctx, identifier); locked {
			return RateLimited(msgAccountLocked, d)
		}
	}
	return &Error{Kind: KindUnauthorized, Message: msgInvalidCredentials}
}

// upgradeHash re-hashes a verified password stored with outdated parameters.
func (s *AuthService) upgradeHash(ctx context.Context, user store.User, password string) {
	if !auth.NeedsRehash(user.PasswordHash) {
		return
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		slog.Warn("failed to rehash password", "user_id", user.ID, "error", err)
		return
	}

	if err := s.queries.UpdateUserPassword(ctx, store.UpdateUserPasswordParams{
		PasswordHash: hash,
		UpdatedAt:    time.Now().UTC(),
		ID:           user.ID,
	}); err != nil {
		slog.Warn("failed to store rehashed password", "user_id", user.ID, "error", err)
		return
	}
	slog.Debug("password hash upgraded", "user_id", user.ID)
}

func (s *AuthService) logAuth(ctx context.Context, level, message, userID, ip string, metadata map[string]any) {
	if s.events == nil {
		return
	}
	_ = s.events.LogAuthEvent(ctx, level, message, userID, ip, metadata)
}
