// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package session issues, stores and resolves opaque bearer session tokens.
//
// Tokens are random 256-bit strings handed to the client once; only their
// SHA-256 hash is persisted. Expiry is fixed at creation and enforced lazily:
// an expired record is deleted the first time it is presented.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Store.Lookup when no record matches.
	ErrNotFound = errors.New("session not found")

	// ErrTokenCollision is returned by Store.Create when the token hash already exists.
	ErrTokenCollision = errors.New("session token collision")
)

// Record is a persisted session keyed by token hash.
type Record struct {
	TokenHash string    `json:"token_hash"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// Expired reports whether the record is no longer valid at now.
// A session is valid only while now is strictly before ExpiresAt.
func (r Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Store persists session records. Implementations must enforce token hash
// uniqueness and must not filter lookups by expiry.
type Store interface {
	Create(ctx context.Context, rec Record) error
	Lookup(ctx context.Context, tokenHash string) (Record, error)
	// Revoke deletes the record if present. Missing records are not an error.
	Revoke(ctx context.Context, tokenHash string) error
	// RevokeExpired deletes a record already found to be expired.
	RevokeExpired(ctx context.Context, tokenHash string) error
	// RevokeAllForUser deletes every session owned by userID.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}
