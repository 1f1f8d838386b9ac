// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"github.com/olegiv/surveydesk/internal/model"
	"github.com/olegiv/surveydesk/internal/store"
	"github.com/olegiv/surveydesk/internal/survey"
)

// Client-facing messages for the survey endpoints.
const (
	MsgSurveyNotFound    = "Survey not found"
	MsgAdminCannotSubmit = "Admins cannot submit assessments."
	msgInvalidAnswers    = "Invalid answers payload."
	msgSubmissionFailed  = "Submission failed."
)

// answerSanitizer strips all markup from free-text answers.
var answerSanitizer = bluemonday.StrictPolicy()

// SubmissionService stores survey answers.
type SubmissionService struct {
	queries *store.Queries
	catalog survey.Catalog
	events  *EventService
}

// NewSubmissionService creates a SubmissionService. events may be nil.
func NewSubmissionService(db *sql.DB, catalog survey.Catalog, events *EventService) *SubmissionService {
	return &SubmissionService{
		queries: store.New(db),
		catalog: catalog,
		events:  events,
	}
}

// Submit records answers from id for the survey identified by slug.
// answers must be a JSON object; an empty object is accepted.
func (s *SubmissionService) Submit(ctx context.Context, id model.Identity, slug string, answers json.RawMessage) (store.Submission, error) {
	if id.Role != model.RoleUser {
		return store.Submission{}, Forbidden(MsgAdminCannotSubmit)
	}

	sv, ok := s.catalog.Get(ctx, slug)
	if !ok {
		return store.Submission{}, NotFound(MsgSurveyNotFound)
	}

	obj, err := decodeAnswers(answers)
	if err != nil {
		slog.Debug("rejected answers payload", "survey", slug, "error", err)
		return store.Submission{}, Validation(msgInvalidAnswers)
	}

	data, err := encodeAnswers(sanitizeValue(obj))
	if err != nil {
		return store.Submission{}, Internal(msgSubmissionFailed, fmt.Errorf("encoding answers: %w", err))
	}

	sub, err := s.queries.CreateSubmission(ctx, store.CreateSubmissionParams{
		ID:         uuid.NewString(),
		SurveySlug: sv.Slug,
		UserID:     id.ID,
		Data:       data,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		return store.Submission{}, Internal(msgSubmissionFailed, fmt.Errorf("storing submission: %w", err))
	}

	slog.Info("survey submitted", "survey", sv.Slug, "user_id", id.ID, "submission_id", sub.ID)
	if s.events != nil {
		_ = s.events.LogSurveyEvent(ctx, model.EventLevelInfo, "Survey submitted", id.ID, "",
			map[string]any{"survey": sv.Slug, "submission_id": sub.ID})
	}

	return sub, nil
}

// decodeAnswers accepts only a JSON object.
func decodeAnswers(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("answers must be a JSON object")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// encodeAnswers marshals answers without HTML-escaping &, < and >.
func encodeAnswers(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// sanitizeValue walks a decoded JSON value and strips tags from every string.
// Text without tags is stored exactly as submitted.
func sanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return stripTags(t)
	case map[string]any:
		for k, val := range t {
			t[k] = sanitizeValue(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = sanitizeValue(val)
		}
		return t
	default:
		return v
	}
}

// stripTags removes markup and undoes the entity escaping the policy applies
// to the remaining text.
func stripTags(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	return html.UnescapeString(answerSanitizer.Sanitize(s))
}
