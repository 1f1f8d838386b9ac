// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"
	"slices"
	"strings"
)

// Allowed method lists advertised per route.
const (
	MethodsPost = "POST, OPTIONS"
	MethodsGet  = "GET, OPTIONS"
	MethodsAny  = "GET, POST, OPTIONS"
)

// corsAllowHeaders is advertised on every response.
const corsAllowHeaders = "Content-Type, Authorization"

// CORSConfig lists the origins allowed to read API responses.
type CORSConfig struct {
	DefaultOrigins []string
	ExtraOrigins   []string
}

// CORSPolicy computes cross-origin response headers from a fixed allow-list.
// It is immutable after construction and safe for concurrent use.
type CORSPolicy struct {
	allowed map[string]struct{}
}

// NewCORSPolicy builds a policy from cfg. Entries are trimmed, stripped of one
// trailing slash, and empty entries are ignored.
func NewCORSPolicy(cfg CORSConfig) *CORSPolicy {
	p := &CORSPolicy{allowed: make(map[string]struct{})}
	for _, list := range [][]string{cfg.DefaultOrigins, cfg.ExtraOrigins} {
		for _, o := range list {
			if o = NormalizeOrigin(o); o != "" {
				p.allowed[o] = struct{}{}
			}
		}
	}
	return p
}

// NormalizeOrigin trims whitespace and one trailing slash.
func NormalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.TrimSpace(origin), "/")
}

// Allowed reports whether origin is on the allow-list.
func (p *CORSPolicy) Allowed(origin string) bool {
	origin = NormalizeOrigin(origin)
	if origin == "" {
		return false
	}
	_, ok := p.allowed[origin]
	return ok
}

// Origins returns the allow-list in no particular order.
func (p *CORSPolicy) Origins() []string {
	out := make([]string, 0, len(p.allowed))
	for o := range p.allowed {
		out = append(out, o)
	}
	return out
}

// Headers returns the CORS headers for r. The requesting origin is reflected
// only when allowed; otherwise no Access-Control-Allow-Origin is set.
func (p *CORSPolicy) Headers(r *http.Request, methods string) http.Header {
	h := make(http.Header, 4)
	h.Set("Access-Control-Allow-Methods", methods)
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)

	if origin := NormalizeOrigin(r.Header.Get("Origin")); p.Allowed(origin) {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	}
	return h
}

// Apply writes the CORS headers for r onto w. Applying twice is harmless.
func (p *CORSPolicy) Apply(w http.ResponseWriter, r *http.Request, methods string) {
	dst := w.Header()
	for k, vs := range p.Headers(r, methods) {
		for _, v := range vs {
			if k == "Vary" {
				if !slices.Contains(dst.Values(k), v) {
					dst.Add(k, v)
				}
			} else {
				dst.Set(k, v)
			}
		}
	}
}

// Handler returns middleware that applies the policy to every response.
func (p *CORSPolicy) Handler(methods string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p.Apply(w, r, methods)
			next.ServeHTTP(w, r)
		})
	}
}

// Preflight answers OPTIONS with 204, the CORS headers and no body.
func (p *CORSPolicy) Preflight(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.Apply(w, r, methods)
		w.WriteHeader(http.StatusNoContent)
	}
}
