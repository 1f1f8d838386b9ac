// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/olegiv/surveydesk/internal/auth"
)

// DefaultTTL is the fixed lifetime of a session.
const DefaultTTL = 7 * 24 * time.Hour

// maxCreateAttempts bounds retries on token hash collision.
const maxCreateAttempts = 3

// Session is an issued session. Token is only known at creation time.
type Session struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// ClientInfo describes the client a session was issued to.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// Manager issues and revokes sessions on top of a Store.
type Manager struct {
	store    Store
	ttl      time.Duration
	now      func() time.Time
	newToken func() (string, error)
}

// NewManager creates a Manager. A non-positive ttl uses DefaultTTL.
func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:    store,
		ttl:      ttl,
		now:      time.Now,
		newToken: auth.NewToken,
	}
}

// TTL returns the session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Now returns the manager's current time.
func (m *Manager) Now() time.Time {
	return m.now()
}

// SetClock replaces the time source. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Create issues a new session for userID with expiry fixed at now + TTL.
func (m *Manager) Create(ctx context.Context, userID string, client ClientInfo) (Session, error) {
	for attempt := 1; ; attempt++ {
		token, err := m.newToken()
		if err != nil {
			return Session{}, err
		}

		now := m.now().UTC()
		rec := Record{
			TokenHash: auth.HashToken(token),
			UserID:    userID,
			CreatedAt: now,
			ExpiresAt: now.Add(m.ttl),
			IPAddress: client.IPAddress,
			UserAgent: client.UserAgent,
		}

		err = m.store.Create(ctx, rec)
		if errors.Is(err, ErrTokenCollision) && attempt < maxCreateAttempts {
			continue
		}
		if err != nil {
			return Session{}, fmt.Errorf("storing session: %w", err)
		}

		return Session{
			Token:     token,
			UserID:    userID,
			CreatedAt: rec.CreatedAt,
			ExpiresAt: rec.ExpiresAt,
		}, nil
	}
}

// Lookup finds the record for a raw token without checking expiry.
func (m *Manager) Lookup(ctx context.Context, token string) (Record, error) {
	return m.store.Lookup(ctx, auth.HashToken(token))
}

// Revoke deletes the session for a raw token. Unknown tokens are a no-op.
func (m *Manager) Revoke(ctx context.Context, token string) error {
	return m.store.Revoke(ctx, auth.HashToken(token))
}

// RevokeExpired deletes an expired session found during resolution.
func (m *Manager) RevokeExpired(ctx context.Context, token string) error {
	return m.store.RevokeExpired(ctx, auth.HashToken(token))
}

// RevokeAllForUser ends every session of userID.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	return m.store.RevokeAllForUser(ctx, userID)
}
