// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"errors"
	"net/http"
	"time"
)

// Kind classifies a service error by how it is reported to clients.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
)

// MessageUnauthorized is the only message returned for authentication failures.
const MessageUnauthorized = "Unauthorized"

// Error is a domain error carrying a client-safe message.
// Err holds the underlying cause and is never shown to clients.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed or missing input.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// Unauthorized reports a missing, invalid or expired credential.
// The cause is kept for logging only.
func Unauthorized(cause error) *Error {
	return &Error{Kind: KindUnauthorized, Message: MessageUnauthorized, Err: cause}
}

// Forbidden reports an authenticated caller lacking the required role.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// NotFound reports an unknown resource.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Conflict reports a duplicate unique key.
func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// RateLimited reports a throttled request.
func RateLimited(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: message, RetryAfter: retryAfter}
}

// Internal wraps an unexpected failure behind a generic message.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// AsError extracts a *Error from err. Any other error is treated as an
// internal failure with a generic message.
func AsError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return Internal("Internal server error", err)
}

// StatusCode maps err to an HTTP status code.
func StatusCode(err error) int {
	switch AsError(err).Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
