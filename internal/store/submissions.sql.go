// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"
)

const createSubmission = `-- name: CreateSubmission :one
INSERT INTO submissions (id, survey_slug, user_id, data, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING id, survey_slug, user_id, data, created_at`

// CreateSubmissionParams holds the columns for CreateSubmission.
type CreateSubmissionParams struct {
	ID         string
	SurveySlug string
	UserID     string
	Data       string
	CreatedAt  time.Time
}

func (q *Queries) CreateSubmission(ctx context.Context, arg CreateSubmissionParams) (Submission, error) {
	row := q.db.QueryRowContext(ctx, createSubmission,
		arg.ID,
		arg.SurveySlug,
		arg.UserID,
		arg.Data,
		arg.CreatedAt,
	)
	var s Submission
	err := row.Scan(&s.ID, &s.SurveySlug, &s.UserID, &s.Data, &s.CreatedAt)
	return s, translateError(err)
}
