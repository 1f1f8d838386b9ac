// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisGrace keeps expired records around long enough for the lazy
// cleanup path to observe them, while Redis still bounds storage.
const DefaultRedisGrace = 24 * time.Hour

// RedisStore keeps sessions in Redis as JSON values with a per-user index set.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	grace  time.Duration
	now    func() time.Time
}

// NewRedisStore creates a Store on client. Keys are namespaced with prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: prefix,
		grace:  DefaultRedisGrace,
		now:    time.Now,
	}
}

func (s *RedisStore) sessionKey(tokenHash string) string {
	return s.prefix + "session:" + tokenHash
}

func (s *RedisStore) userKey(userID string) string {
	return s.prefix + "user-sessions:" + userID
}

// Create stores rec with SETNX so a hash collision is detected.
func (s *RedisStore) Create(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	ttl := rec.ExpiresAt.Sub(s.now()) + s.grace
	if ttl <= 0 {
		ttl = s.grace
	}

	ok, err := s.client.SetNX(ctx, s.sessionKey(rec.TokenHash), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	if !ok {
		return ErrTokenCollision
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.userKey(rec.UserID), rec.TokenHash)
	pipe.ExpireGT(ctx, s.userKey(rec.UserID), ttl)
	pipe.ExpireNX(ctx, s.userKey(rec.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("indexing session: %w", err)
	}
	return nil
}

// Lookup returns the record for tokenHash, expired or not.
func (s *RedisStore) Lookup(ctx context.Context, tokenHash string) (Record, error) {
	data, err := s.client.Get(ctx, s.sessionKey(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("looking up session: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decoding session: %w", err)
	}
	return rec, nil
}

// Revoke deletes the session if present.
func (s *RedisStore) Revoke(ctx context.Context, tokenHash string) error {
	rec, err := s.Lookup(ctx, tokenHash)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.sessionKey(tokenHash))
	pipe.SRem(ctx, s.userKey(rec.UserID), tokenHash)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// RevokeExpired deletes an expired session.
func (s *RedisStore) RevokeExpired(ctx context.Context, tokenHash string) error {
	return s.Revoke(ctx, tokenHash)
}

// RevokeAllForUser deletes every session of userID.
func (s *RedisStore) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	hashes, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("listing user sessions: %w", err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, s.sessionKey(h))
	}

	var deleted *redis.IntCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		pipe.Del(ctx, s.userKey(userID))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("revoking user sessions: %w", err)
	}
	return deleted.Val(), nil
}

var _ Store = (*RedisStore)(nil)
