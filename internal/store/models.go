// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"database/sql"
	"time"

	"github.com/olegiv/surveydesk/internal/model"
)

// User is a row of the users table.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  sql.NullTime
}

// ToModel converts the row into the domain user.
func (u User) ToModel() model.User {
	return model.User{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         model.Role(u.Role),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		LastLoginAt:  u.LastLoginAt,
	}
}

// Session is a row of the sessions table.
type Session struct {
	ID        int64
	TokenHash string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	IpAddress string
	UserAgent string
}

// Submission is a row of the submissions table.
type Submission struct {
	ID         string
	SurveySlug string
	UserID     string
	Data       string
	CreatedAt  time.Time
}

// Event is a row of the events table.
type Event struct {
	ID        int64
	Level     string
	Category  string
	Message   string
	UserID    sql.NullString
	Metadata  string
	IpAddress string
	CreatedAt time.Time
}
