// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging provides a custom slog handler that integrates with the Event Log system.
// It forwards logs at WARN level and above to the database-backed Event Log for auditing.
package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/olegiv/surveydesk/internal/model"
	"github.com/olegiv/surveydesk/internal/store"
)

// Attribute keys lifted out of the metadata into dedicated event columns.
const (
	attrCategory = "category"
	attrUserID   = "user_id"
	attrIP       = "ip"
)

// EventLogHandler is a slog.Handler that wraps another handler and also writes
// WARN and ERROR level logs to the Event Log database.
type EventLogHandler struct {
	inner    slog.Handler
	queries  *store.Queries
	level    slog.Level // Minimum level to forward to Event Log (default: WARN)
	attrs    []slog.Attr
	pathFunc func(context.Context) string
}

// NewEventLogHandler creates a new EventLogHandler that wraps the given handler.
// Logs at WARN level and above will be written to both the wrapped handler and the Event Log.
func NewEventLogHandler(inner slog.Handler, db *sql.DB) *EventLogHandler {
	return NewEventLogHandlerWithLevel(inner, db, slog.LevelWarn)
}

// NewEventLogHandlerWithLevel creates a new EventLogHandler with a custom minimum level.
func NewEventLogHandlerWithLevel(inner slog.Handler, db *sql.DB, level slog.Level) *EventLogHandler {
	return &EventLogHandler{
		inner:   inner,
		queries: store.New(db),
		level:   level,
	}
}

// WithRequestPath sets a function that extracts the request path from the
// logging context. The path is recorded in event metadata under "path".
func (h *EventLogHandler) WithRequestPath(fn func(context.Context) string) *EventLogHandler {
	c := h.clone()
	c.pathFunc = fn
	return c
}

// Enabled implements slog.Handler.
func (h *EventLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *EventLogHandler) Handle(ctx context.Context, r slog.Record) error {
	// Always forward to the inner handler first
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level >= h.level {
		h.writeToEventLog(ctx, r)
	}

	return nil
}

// WithAttrs implements slog.Handler.
func (h *EventLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	c.inner = h.inner.WithAttrs(attrs)
	c.attrs = append(c.attrs, attrs...)
	return c
}

// WithGroup implements slog.Handler.
func (h *EventLogHandler) WithGroup(name string) slog.Handler {
	c := h.clone()
	c.inner = h.inner.WithGroup(name)
	return c
}

func (h *EventLogHandler) clone() *EventLogHandler {
	return &EventLogHandler{
		inner:    h.inner,
		queries:  h.queries,
		level:    h.level,
		attrs:    append([]slog.Attr(nil), h.attrs...),
		pathFunc: h.pathFunc,
	}
}

// writeToEventLog writes a log record to the Event Log database.
func (h *EventLogHandler) writeToEventLog(ctx context.Context, r slog.Record) {
	var category, userID, ip string
	metadata := make(map[string]string)

	collect := func(a slog.Attr) bool {
		switch a.Key {
		case attrCategory:
			category = a.Value.String()
		case attrUserID:
			userID = a.Value.String()
		case attrIP:
			ip = a.Value.String()
		default:
			metadata[a.Key] = a.Value.String()
		}
		return true
	}
	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(collect)

	if category == "" {
		category = inferCategory(r.Message)
	}
	if h.pathFunc != nil {
		if path := h.pathFunc(ctx); path != "" {
			metadata["path"] = path
		}
	}

	meta := "{}"
	if len(metadata) > 0 {
		if b, err := json.Marshal(metadata); err == nil {
			meta = string(b)
		}
	}

	// Background context so the event survives request cancellation
	_, _ = h.queries.CreateEvent(context.Background(), store.CreateEventParams{
		Level:     slogLevelToEventLevel(r.Level),
		Category:  category,
		Message:   r.Message,
		UserID:    sql.NullString{String: userID, Valid: userID != ""},
		Metadata:  meta,
		IpAddress: ip,
		CreatedAt: r.Time.UTC(),
	})
}

// slogLevelToEventLevel converts a slog.Level to an Event Log level.
func slogLevelToEventLevel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return model.EventLevelError
	case level >= slog.LevelWarn:
		return model.EventLevelWarning
	default:
		return model.EventLevelInfo
	}
}

// inferCategory guesses a category from common words in the message.
func inferCategory(message string) string {
	msg := strings.ToLower(message)
	switch {
	case strings.Contains(msg, "session") || strings.Contains(msg, "token"):
		return model.EventCategorySession
	case strings.Contains(msg, "survey") || strings.Contains(msg, "submission") || strings.Contains(msg, "answers"):
		return model.EventCategorySurvey
	case strings.Contains(msg, "auth") || strings.Contains(msg, "login") ||
		strings.Contains(msg, "logout") || strings.Contains(msg, "signup") ||
		strings.Contains(msg, "csrf") || strings.Contains(msg, "access denied"):
		return model.EventCategoryAuth
	default:
		return model.EventCategorySystem
	}
}
