// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"
)

const createSession = `-- name: CreateSession :one
INSERT INTO sessions (token_hash, user_id, created_at, expires_at, ip_address, user_agent)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING id, token_hash, user_id, created_at, expires_at, ip_address, user_agent`

// CreateSessionParams holds the columns for CreateSession.
type CreateSessionParams struct {
	TokenHash string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	IpAddress string
	UserAgent string
}

// CreateSession inserts a session. A token hash collision yields ErrUniqueViolation.
func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	row := q.db.QueryRowContext(ctx, createSession,
		arg.TokenHash,
		arg.UserID,
		arg.CreatedAt,
		arg.ExpiresAt,
		arg.IpAddress,
		arg.UserAgent,
	)
	var s Session
	err := row.Scan(
		&s.ID,
		&s.TokenHash,
		&s.UserID,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.IpAddress,
		&s.UserAgent,
	)
	return s, translateError(err)
}

const getSessionByTokenHash = `-- name: GetSessionByTokenHash :one
SELECT id, token_hash, user_id, created_at, expires_at, ip_address, user_agent
FROM sessions WHERE token_hash = ?`

// GetSessionByTokenHash does not filter on expiry.
func (q *Queries) GetSessionByTokenHash(ctx context.Context, tokenHash string) (Session, error) {
	row := q.db.QueryRowContext(ctx, getSessionByTokenHash, tokenHash)
	var s Session
	err := row.Scan(
		&s.ID,
		&s.TokenHash,
		&s.UserID,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.IpAddress,
		&s.UserAgent,
	)
	return s, err
}

const deleteSessionByTokenHash = `-- name: DeleteSessionByTokenHash :execrows
DELETE FROM sessions WHERE token_hash = ?`

func (q *Queries) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteSessionByTokenHash, tokenHash)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteSessionsByUserID = `-- name: DeleteSessionsByUserID :execrows
DELETE FROM sessions WHERE user_id = ?`

func (q *Queries) DeleteSessionsByUserID(ctx context.Context, userID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteSessionsByUserID, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
