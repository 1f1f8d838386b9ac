// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package survey provides the survey catalog consulted by the API.
// Question definitions are carried opaquely and never interpreted here.
package survey

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/olegiv/surveydesk/internal/util"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Survey is one entry of the catalog.
type Survey struct {
	Slug        string `yaml:"slug" json:"slug"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Questions   any    `yaml:"questions" json:"questions"`
}

// Catalog looks up surveys.
type Catalog interface {
	// List returns surveys whose title or description contains query,
	// ignoring case. An empty query returns everything.
	List(ctx context.Context, query string) []Survey
	Get(ctx context.Context, slug string) (Survey, bool)
}

// StaticCatalog is an immutable in-memory Catalog.
type StaticCatalog struct {
	surveys []Survey
	bySlug  map[string]int
}

// NewStaticCatalog validates surveys and builds a catalog preserving their order.
// A survey without a slug gets one derived from its title.
func NewStaticCatalog(surveys []Survey) (*StaticCatalog, error) {
	c := &StaticCatalog{
		surveys: make([]Survey, 0, len(surveys)),
		bySlug:  make(map[string]int, len(surveys)),
	}

	for i, s := range surveys {
		if strings.TrimSpace(s.Title) == "" {
			return nil, fmt.Errorf("survey %d: title is required", i)
		}
		if s.Slug == "" {
			s.Slug = util.Slugify(s.Title)
		}
		if !util.IsValidSlug(s.Slug) {
			return nil, fmt.Errorf("survey %d: invalid slug %q", i, s.Slug)
		}
		if _, dup := c.bySlug[s.Slug]; dup {
			return nil, fmt.Errorf("survey %d: duplicate slug %q", i, s.Slug)
		}

		c.bySlug[s.Slug] = len(c.surveys)
		c.surveys = append(c.surveys, s)
	}

	return c, nil
}

// LoadCatalog decodes a YAML document of the form {surveys: [...]}.
func LoadCatalog(r io.Reader) (*StaticCatalog, error) {
	var doc struct {
		Surveys []Survey `yaml:"surveys"`
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding survey catalog: %w", err)
	}

	return NewStaticCatalog(doc.Surveys)
}

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() (*StaticCatalog, error) {
	return LoadCatalog(strings.NewReader(string(defaultCatalogYAML)))
}

// List implements Catalog.
func (c *StaticCatalog) List(_ context.Context, query string) []Survey {
	query = strings.TrimSpace(query)

	out := make([]Survey, 0, len(c.surveys))
	for _, s := range c.surveys {
		if query == "" || util.ContainsFold(s.Title, query) || util.ContainsFold(s.Description, query) {
			out = append(out, s)
		}
	}
	return out
}

// Get implements Catalog.
func (c *StaticCatalog) Get(_ context.Context, slug string) (Survey, bool) {
	i, ok := c.bySlug[slug]
	if !ok {
		return Survey{}, false
	}
	return c.surveys[i], true
}

// Len returns the number of surveys in the catalog.
func (c *StaticCatalog) Len() int {
	return len(c.surveys)
}
