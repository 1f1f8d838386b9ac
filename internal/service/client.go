// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"strings"

	"github.com/mileusna/useragent"

	"github.com/olegiv/surveydesk/internal/session"
)

// maxUserAgentLen caps the label stored on a session row.
const maxUserAgentLen = 255

// NewClientInfo builds the client description recorded with a new session.
// The raw User-Agent is reduced to a "browser on OS (device)" label.
func NewClientInfo(ip, rawUserAgent string) session.ClientInfo {
	return session.ClientInfo{
		IPAddress: ip,
		UserAgent: userAgentLabel(rawUserAgent),
	}
}

func userAgentLabel(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	ua := useragent.Parse(raw)

	browser := ua.Name
	if browser == "" {
		browser = "Unknown"
	}
	os := ua.OS
	if os == "" {
		os = "Unknown"
	}

	var device string
	switch {
	case ua.Bot:
		device = "bot"
	case ua.Mobile:
		device = "mobile"
	case ua.Tablet:
		device = "tablet"
	default:
		device = "desktop"
	}

	label := browser + " on " + os + " (" + device + ")"
	if len(label) > maxUserAgentLen {
		label = label[:maxUserAgentLen]
	}
	return label
}
