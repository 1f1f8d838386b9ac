// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/olegiv/surveydesk/internal/store"
)

// SQLStore keeps sessions in the sessions table.
type SQLStore struct {
	queries *store.Queries
}

// NewSQLStore creates a Store backed by the application database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{queries: store.New(db)}
}

// Create inserts rec.
func (s *SQLStore) Create(ctx context.Context, rec Record) error {
	_, err := s.queries.CreateSession(ctx, store.CreateSessionParams{
		TokenHash: rec.TokenHash,
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt.UTC(),
		ExpiresAt: rec.ExpiresAt.UTC(),
		IpAddress: rec.IPAddress,
		UserAgent: rec.UserAgent,
	})
	if errors.Is(err, store.ErrUniqueViolation) {
		return ErrTokenCollision
	}
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// Lookup returns the record for tokenHash, expired or not.
func (s *SQLStore) Lookup(ctx context.Context, tokenHash string) (Record, error) {
	row, err := s.queries.GetSessionByTokenHash(ctx, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("looking up session: %w", err)
	}
	return Record{
		TokenHash: row.TokenHash,
		UserID:    row.UserID,
		CreatedAt: row.CreatedAt,
		ExpiresAt: row.ExpiresAt,
		IPAddress: row.IpAddress,
		UserAgent: row.UserAgent,
	}, nil
}

// Revoke deletes the session if present.
func (s *SQLStore) Revoke(ctx context.Context, tokenHash string) error {
	if _, err := s.queries.DeleteSessionByTokenHash(ctx, tokenHash); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// RevokeExpired deletes an expired session.
func (s *SQLStore) RevokeExpired(ctx context.Context, tokenHash string) error {
	return s.Revoke(ctx, tokenHash)
}

// RevokeAllForUser deletes every session of userID.
func (s *SQLStore) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := s.queries.DeleteSessionsByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoking user sessions: %w", err)
	}
	return n, nil
}

var _ Store = (*SQLStore)(nil)
