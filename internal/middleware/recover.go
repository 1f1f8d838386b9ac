// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// MsgInternalError is the error body sent after a recovered panic.
const MsgInternalError = "Internal server error"

// Recoverer is chi's Recoverer with a JSON error body, so a panic still
// produces {"error": ...} behind any headers already set by outer middleware.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			if logEntry := chimw.GetLogEntry(r); logEntry != nil {
				logEntry.Panic(rvr, debug.Stack())
			} else {
				chimw.PrintPrettyStack(rvr)
			}
			slog.Error("panic recovered", "panic", rvr, "request_id", chimw.GetReqID(r.Context()), "path", r.URL.Path)

			if r.Header.Get("Connection") != "Upgrade" {
				WriteAPIError(w, http.StatusInternalServerError, MsgInternalError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
