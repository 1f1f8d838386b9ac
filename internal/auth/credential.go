// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"net/http"
	"strings"
)

// SessionCookieName is the cookie that mirrors the session token for browsers.
const SessionCookieName = "session_token"

const bearerPrefix = "bearer "

// ExtractToken picks the session token from an Authorization header value and
// an optional cookie value.
//
// A header starting with "Bearer " (any case) wins outright: its trimmed
// remainder is the token even when empty, and the cookie is not consulted.
// Otherwise a non-empty cookie is used. ok is false when neither applies.
func ExtractToken(authorization string, cookie *string) (token string, ok bool) {
	if len(authorization) >= len(bearerPrefix) && strings.EqualFold(authorization[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(authorization[len(bearerPrefix):]), true
	}
	if cookie != nil && *cookie != "" {
		return *cookie, true
	}
	return "", false
}

// TokenFromRequest applies ExtractToken to an inbound request.
func TokenFromRequest(r *http.Request, cookieName string) (string, bool) {
	var cookie *string
	if c, err := r.Cookie(cookieName); err == nil {
		cookie = &c.Value
	}
	return ExtractToken(r.Header.Get("Authorization"), cookie)
}
