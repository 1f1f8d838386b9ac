// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/surveydesk/internal/middleware"
	"github.com/olegiv/surveydesk/internal/service"
	"github.com/olegiv/surveydesk/internal/survey"
)

// SurveysHandler serves the survey catalog and accepts submissions.
type SurveysHandler struct {
	catalog     survey.Catalog
	submissions *service.SubmissionService
}

// NewSurveysHandler creates a new SurveysHandler.
func NewSurveysHandler(catalog survey.Catalog, submissions *service.SubmissionService) *SurveysHandler {
	return &SurveysHandler{catalog: catalog, submissions: submissions}
}

type surveyListResponse struct {
	Surveys []survey.Survey `json:"surveys"`
}

type surveyResponse struct {
	Survey survey.Survey `json:"survey"`
}

// submitRequest is the body of a submission. Answers is validated by the
// submission service so that an unknown survey is reported first.
type submitRequest struct {
	Answers json.RawMessage `json:"answers"`
}

// List handles GET /surveys with an optional q search filter.
func (h *SurveysHandler) List(w http.ResponseWriter, r *http.Request) {
	surveys := h.catalog.List(r.Context(), r.URL.Query().Get("q"))
	if surveys == nil {
		surveys = []survey.Survey{}
	}
	WriteJSON(w, http.StatusOK, surveyListResponse{Surveys: surveys})
}

// Get handles GET /surveys/{slug}.
func (h *SurveysHandler) Get(w http.ResponseWriter, r *http.Request) {
	sv, ok := h.catalog.Get(r.Context(), chi.URLParam(r, "slug"))
	if !ok {
		WriteServiceError(w, r, service.NotFound(service.MsgSurveyNotFound))
		return
	}
	WriteJSON(w, http.StatusOK, surveyResponse{Survey: sv})
}

// Submit handles POST /surveys/{slug}/submit. It runs behind
// AuthGate.RequireRole for USER accounts.
func (h *SurveysHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		WriteServiceError(w, r, service.Unauthorized(nil))
		return
	}

	var req submitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		// Leave Answers empty; the service rejects it after the survey lookup.
		slog.Debug("unreadable submission body", "error", err)
		req.Answers = nil
	}

	if _, err := h.submissions.Submit(r.Context(), id, chi.URLParam(r, "slug"), req.Answers); err != nil {
		WriteServiceError(w, r, err)
		return
	}

	WriteJSON(w, http.StatusCreated, okResponse{OK: true})
}
