// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"filippo.io/csrf/gorilla"
)

// CSRFConfig holds configuration for CSRF protection.
// filippo.io/csrf/gorilla relies on Fetch metadata and Origin headers rather
// than tokens, so only the trusted origin list matters in practice.
type CSRFConfig struct {
	// AuthKey is a 32-byte key required by the gorilla-compatible API.
	AuthKey []byte

	// ErrorHandler is called when CSRF validation fails.
	ErrorHandler http.Handler

	// TrustedOrigins are host[:port] values allowed to make cross-origin
	// unsafe requests.
	TrustedOrigins []string
}

// NewCSRFConfig trusts the hosts of the given CORS origins.
// In development localhost:8080 and 127.0.0.1:8080 are trusted as well.
func NewCSRFConfig(authKey []byte, origins []string, isDev bool) CSRFConfig {
	cfg := CSRFConfig{AuthKey: authKey}

	seen := make(map[string]bool)
	add := func(host string) {
		if host != "" && !seen[host] {
			seen[host] = true
			cfg.TrustedOrigins = append(cfg.TrustedOrigins, host)
		}
	}

	for _, o := range origins {
		add(originHost(o))
	}
	if isDev {
		add("localhost:8080")
		add("127.0.0.1:8080")
	}

	return cfg
}

// originHost returns the host[:port] of an origin URL.
func originHost(origin string) string {
	u, err := url.Parse(NormalizeOrigin(origin))
	if err != nil {
		return ""
	}
	return u.Host
}

// CSRF returns a middleware that provides CSRF protection.
// Requests authenticated with a bearer token carry no ambient credentials
// and are not checked.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	var opts []csrf.Option

	if cfg.ErrorHandler != nil {
		opts = append(opts, csrf.ErrorHandler(cfg.ErrorHandler))
	} else {
		opts = append(opts, csrf.ErrorHandler(http.HandlerFunc(csrfErrorHandler)))
	}

	if len(cfg.TrustedOrigins) > 0 {
		opts = append(opts, csrf.TrustedOrigins(cfg.TrustedOrigins))
	}

	protect := csrf.Protect(cfg.AuthKey, opts...)

	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasBearer(r) {
				r = csrf.UnsafeSkipCheck(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}

func hasBearer(r *http.Request) bool {
	h := r.Header.Get("Authorization")
	return len(h) >= 7 && strings.EqualFold(h[:7], "bearer ")
}

// csrfErrorHandler handles CSRF validation failures.
func csrfErrorHandler(w http.ResponseWriter, r *http.Request) {
	reason := csrf.FailureReason(r)
	reasonStr := "unknown"
	if reason != nil {
		reasonStr = reason.Error()
	}
	slog.Warn("CSRF validation failed",
		"reason", reasonStr,
		"method", r.Method,
		"path", r.URL.Path,
		"origin", r.Header.Get("Origin"),
		"sec_fetch_site", r.Header.Get("Sec-Fetch-Site"),
	)
	WriteAPIError(w, http.StatusForbidden, "Forbidden - CSRF validation failed")
}
