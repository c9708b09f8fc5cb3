// Package kb is the knowledge lookup the pipeline cites from: a small
// in-memory corpus of support-desk articles searched by token overlap.
// Empty results are a valid, non-error response.
package kb

import (
	"context"
	"sort"
	"strings"

	"github.com/cardsentry/cardsentry/internal/model"
)

// Anchors the decision stage depends on.
const (
	PreAuthAnchor       = "disputes:pre-auth-vs-capture"
	DisputeAnchorPrefix = "disputes:"
	maxResults          = 3
	extractLength       = 160
)

// Lookup is the capability interface the orchestrator consumes.
type Lookup interface {
	Search(ctx context.Context, query string) ([]model.KBHit, error)
}

// Document is one knowledge-base article with a stable citation anchor.
type Document struct {
	ID     string `yaml:"id"`
	Title  string `yaml:"title"`
	Anchor string `yaml:"anchor"`
	Body   string `yaml:"body"`
}

// Store is an in-memory Lookup over a fixed document set.
type Store struct {
	docs  []Document
	limit int
}

// NewStore creates a Store over the given documents.
func NewStore(docs []Document) *Store {
	return &Store{docs: docs, limit: maxResults}
}

// Search ranks documents by token overlap with the query and returns at
// most a small bounded number of hits. A query matching nothing returns an
// empty list, not an error.
func (s *Store) Search(_ context.Context, query string) ([]model.KBHit, error) {
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return []model.KBHit{}, nil
	}

	type scored struct {
		doc   Document
		score int
		order int
	}
	var matches []scored
	for i, doc := range s.docs {
		score := overlap(queryTokens, tokenize(doc.Title+" "+doc.Body))
		if score > 0 {
			matches = append(matches, scored{doc: doc, score: score, order: i})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].order < matches[j].order
	})

	if len(matches) > s.limit {
		matches = matches[:s.limit]
	}

	hits := make([]model.KBHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, model.KBHit{
			DocID:   m.doc.ID,
			Title:   m.doc.Title,
			Anchor:  m.doc.Anchor,
			Extract: extract(m.doc.Body),
		})
	}
	return hits, nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	var tokens []string
	for _, f := range fields {
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func overlap(query, doc []string) int {
	docSet := make(map[string]bool, len(doc))
	for _, t := range doc {
		docSet[t] = true
	}
	score := 0
	for _, t := range query {
		if docSet[t] {
			score++
		}
	}
	return score
}

func extract(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= extractLength {
		return body
	}
	return body[:extractLength]
}
