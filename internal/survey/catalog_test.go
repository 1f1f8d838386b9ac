// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package survey

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *StaticCatalog {
	t.Helper()
	c, err := NewStaticCatalog([]Survey{
		{Slug: "wellbeing", Title: "Workplace Wellbeing", Description: "Stress and workload"},
		{Slug: "governance", Title: "Board Governance", Description: "Annual board review"},
		{Title: "Training Feedback", Description: "After the session"},
	})
	require.NoError(t, err)
	return c
}

func slugs(surveys []Survey) []string {
	out := make([]string, 0, len(surveys))
	for _, s := range surveys {
		out = append(out, s.Slug)
	}
	return out
}

func TestStaticCatalog_List(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"empty query", "", []string{"wellbeing", "governance", "training-feedback"}},
		{"whitespace query", "   ", []string{"wellbeing", "governance", "training-feedback"}},
		{"title match", "board", []string{"governance"}},
		{"description match", "WORKLOAD", []string{"wellbeing"}},
		{"trimmed query", "  feedback ", []string{"training-feedback"}},
		{"shared substring", "e", []string{"wellbeing", "governance", "training-feedback"}},
		{"no match", "payroll", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, slugs(c.List(ctx, tt.query)))
		})
	}
}

func TestStaticCatalog_Get(t *testing.T) {
	c := testCatalog(t)
	ctx := context.Background()

	s, ok := c.Get(ctx, "governance")
	require.True(t, ok)
	assert.Equal(t, "Board Governance", s.Title)

	s, ok = c.Get(ctx, "training-feedback")
	require.True(t, ok)
	assert.Equal(t, "Training Feedback", s.Title)

	_, ok = c.Get(ctx, "Governance")
	assert.False(t, ok)

	_, ok = c.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestNewStaticCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		surveys []Survey
	}{
		{"missing title", []Survey{{Slug: "a"}}},
		{"bad slug", []Survey{{Slug: "Not A Slug", Title: "x"}}},
		{"duplicate slug", []Survey{{Slug: "a", Title: "x"}, {Slug: "a", Title: "y"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewStaticCatalog(tt.surveys)
			assert.Error(t, err)
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	doc := `
surveys:
  - slug: pulse
    title: Pulse
    description: Weekly pulse
    questions:
      - key: mood
        type: rating_5
`
	c, err := LoadCatalog(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, 1, c.Len())

	s, ok := c.Get(context.Background(), "pulse")
	require.True(t, ok)

	// Questions must survive a JSON round trip untouched
	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"questions":[{"key":"mood","type":"rating_5"}]`)
}

func TestLoadCatalog_UnknownField(t *testing.T) {
	_, err := LoadCatalog(strings.NewReader("surveys:\n  - slug: a\n    title: A\n    colour: red\n"))
	assert.Error(t, err)
}

func TestDefaultCatalog(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)
	assert.Greater(t, c.Len(), 0)

	_, ok := c.Get(context.Background(), "workplace-wellbeing")
	assert.True(t, ok)
}
