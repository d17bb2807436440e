package vectordb

import (
	"context"

	"github.com/khulnasoft/pr-insight/internal/store/sqlite"
)

// SQLite is a brute force cosine index over the embeddings table. It suits
// the few thousand components of a single repository.
type SQLite struct {
	repo *sqlite.EmbeddingRepo
}

func NewSQLite(repo *sqlite.EmbeddingRepo) *SQLite {
	return &SQLite{repo: repo}
}

func (s *SQLite) Upsert(ctx context.Context, records []Record) error {
	items := make([]sqlite.Embedding, 0, len(records))
	for _, r := range records {
		items = append(items, sqlite.Embedding{
			ID:        r.ID(),
			Repo:      r.Repo,
			Component: r.Component,
			File:      r.File,
			URL:       r.URL,
			Vector:    r.Vector,
		})
	}
	return s.repo.Upsert(ctx, items)
}

func (s *SQLite) Query(ctx context.Context, repo string, vector []float32, topK int) ([]Match, error) {
	stored, err := s.repo.List(ctx, repo)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(stored))
	for _, e := range stored {
		matches = append(matches, Match{
			Record: Record{Repo: e.Repo, Component: e.Component, File: e.File, URL: e.URL, Vector: e.Vector},
			Score:  Cosine(vector, e.Vector),
		})
	}
	return topMatches(matches, topK), nil
}
