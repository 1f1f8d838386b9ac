// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/surveydesk/internal/auth"
)

// Default admin credentials, used when no override is configured.
const (
	DefaultAdminEmail    = "admin@example.com"
	DefaultAdminPassword = "changeme"
)

// SeedOptions controls initial data creation.
type SeedOptions struct {
	Enabled       bool
	AdminEmail    string
	AdminPassword string
}

// Seed creates the initial ADMIN account when enabled and absent.
// Admins cannot sign up through the API, so this is the only way to create one.
func Seed(ctx context.Context, db *sql.DB, opts SeedOptions) error {
	if !opts.Enabled {
		slog.Debug("seeding disabled")
		return nil
	}

	email := strings.ToLower(strings.TrimSpace(opts.AdminEmail))
	if email == "" {
		email = DefaultAdminEmail
	}
	password := opts.AdminPassword
	if password == "" {
		password = DefaultAdminPassword
	}

	queries := New(db)

	_, err := queries.GetUserByEmail(ctx, email)
	if err == nil {
		slog.Info("admin user already exists, skipping seed", "email", email)
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("checking for admin user: %w", err)
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now().UTC()
	user, err := queries.CreateUser(ctx, CreateUserParams{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         "ADMIN",
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}

	if password == DefaultAdminPassword {
		slog.Warn("created admin user with default password; change it before exposing the server",
			"id", user.ID, "email", user.Email)
	} else {
		slog.Info("created admin user", "id", user.ID, "email", user.Email)
	}

	return nil
}
