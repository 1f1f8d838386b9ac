// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testDefaultOrigin = "https://company-secreteriat-v1-frontend.vercel.app"

func testCORSPolicy() *CORSPolicy {
	return NewCORSPolicy(CORSConfig{
		DefaultOrigins: []string{testDefaultOrigin},
		ExtraOrigins:   []string{" http://localhost:3000/ ", "", "https://staging.example.com"},
	})
}

func TestCORSPolicy_Headers(t *testing.T) {
	p := testCORSPolicy()

	tests := []struct {
		name       string
		origin     string
		wantOrigin string
	}{
		{"default origin", testDefaultOrigin, testDefaultOrigin},
		{"extra origin", "http://localhost:3000", "http://localhost:3000"},
		{"trailing slash on request", "https://staging.example.com/", "https://staging.example.com"},
		{"unknown origin", "https://evil.example.com", ""},
		{"absent origin", "", ""},
		{"scheme mismatch", "http://staging.example.com", ""},
		{"port mismatch", "http://localhost:3001", ""},
		{"case sensitive", "https://STAGING.example.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/surveys", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}

			h := p.Headers(req, MethodsGet)
			assert.Equal(t, MethodsGet, h.Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type, Authorization", h.Get("Access-Control-Allow-Headers"))

			if tt.wantOrigin == "" {
				_, present := h["Access-Control-Allow-Origin"]
				assert.False(t, present, "Access-Control-Allow-Origin must be absent")
				assert.Empty(t, h.Get("Vary"))
				return
			}
			assert.Equal(t, tt.wantOrigin, h.Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "Origin", h.Get("Vary"))
		})
	}
}

func TestCORSPolicy_NeverWildcard(t *testing.T) {
	p := NewCORSPolicy(CORSConfig{ExtraOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://anything.example.com")

	_, present := p.Headers(req, MethodsGet)["Access-Control-Allow-Origin"]
	assert.False(t, present)
}

func TestCORSPolicy_Preflight(t *testing.T) {
	p := testCORSPolicy()

	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", testDefaultOrigin)
	rr := httptest.NewRecorder()

	p.Preflight(MethodsPost).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
	assert.Equal(t, MethodsPost, rr.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, testDefaultOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPolicy_Handler(t *testing.T) {
	p := testCORSPolicy()

	handler := p.Handler(MethodsPost)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteAPIError(w, http.StatusBadRequest, "nope")
	}))

	req := httptest.NewRequest(http.MethodPost, "/auth/signup", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, MethodsPost, rr.Header().Get("Access-Control-Allow-Methods"))
	assert.JSONEq(t, `{"error":"nope"}`, rr.Body.String())
}

func TestCORSPolicy_ApplyNested(t *testing.T) {
	p := testCORSPolicy()

	outer := p.Handler(MethodsAny)
	inner := p.Handler(MethodsGet)
	handler := outer(inner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/surveys", nil)
	req.Header.Set("Origin", testDefaultOrigin)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, []string{"Origin"}, rr.Header().Values("Vary"))
	assert.Equal(t, MethodsGet, rr.Header().Get("Access-Control-Allow-Methods"))
}

func TestCORSPolicy_Allowed(t *testing.T) {
	p := testCORSPolicy()

	assert.True(t, p.Allowed(testDefaultOrigin+"/"))
	assert.False(t, p.Allowed(""))
	assert.Len(t, p.Origins(), 3)
}
