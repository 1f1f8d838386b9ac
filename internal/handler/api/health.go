// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	db      *sql.DB
	version string
}

// NewHealthHandler creates a new health handler. db may be nil.
func NewHealthHandler(db *sql.DB, version string) *HealthHandler {
	return &HealthHandler{db: db, version: version}
}

// HealthStatus is the health response body.
type HealthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health handles GET /healthz. It reports 503 when the database is unreachable.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			slog.Error("health check failed", "error", err)
			WriteJSON(w, http.StatusServiceUnavailable, HealthStatus{Status: "unavailable", Version: h.version})
			return
		}
	}
	WriteJSON(w, http.StatusOK, HealthStatus{Status: "ok", Version: h.version})
}
