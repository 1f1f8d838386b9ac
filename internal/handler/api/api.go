// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package api provides the JSON HTTP handlers and router of the survey portal.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/olegiv/surveydesk/internal/middleware"
	"github.com/olegiv/surveydesk/internal/service"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 1 << 20

// msgInvalidBody is returned for bodies that are not valid JSON.
const msgInvalidBody = "Invalid request body."

// okResponse is the body of endpoints that only acknowledge.
type okResponse struct {
	OK bool `json:"ok"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteServiceError maps err to a status code and writes {"error": message}.
// Internal errors are logged; their cause never reaches the client.
func WriteServiceError(w http.ResponseWriter, r *http.Request, err error) {
	se := service.AsError(err)
	status := service.StatusCode(se)

	if se.Kind == service.KindInternal {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", se.Err,
		)
	}
	if se.Kind == service.KindRateLimited {
		middleware.WriteRetryAfter(w, se.RetryAfter)
	}

	middleware.WriteAPIError(w, status, se.Message)
}

// decodeJSON reads a single JSON value from the request body into dst.
// The body is capped at maxBodyBytes.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)

	if err := dec.Decode(dst); err != nil {
		return &service.Error{Kind: service.KindValidation, Message: msgInvalidBody, Err: fmt.Errorf("decoding body: %w", err)}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return &service.Error{Kind: service.KindValidation, Message: msgInvalidBody, Err: errors.New("trailing data after JSON body")}
	}
	return nil
}
