// Package vectordb indexes component embeddings for similar code search.
// Pinecone is used when an API key is configured, a local SQLite table
// otherwise.
package vectordb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/config"
	"github.com/khulnasoft/pr-insight/internal/store/sqlite"
)

// Record is one embedded code component.
type Record struct {
	Repo      string
	Component string
	File      string
	URL       string
	Vector    []float32
}

// ID is stable per repo, file and component, so re-indexing replaces.
func (r Record) ID() string {
	return strings.Join([]string{r.Repo, r.File, r.Component}, ":")
}

// Match is a query hit; higher Score is more similar.
type Match struct {
	Record
	Score float64
}

// Index stores records and answers nearest neighbour queries.
type Index interface {
	Upsert(ctx context.Context, records []Record) error
	// Query returns up to topK matches; repo "" searches every repo.
	Query(ctx context.Context, repo string, vector []float32, topK int) ([]Match, error)
}

// New picks the index named by pr_similar.vectordb. Pinecone requires
// pinecone.api_key; without it the SQLite index is used.
func New(ctx context.Context, s *config.Settings, db *sqlite.DB) (Index, error) {
	if strings.EqualFold(s.PRSimilar.VectorDB, "pinecone") && s.Pinecone.APIKey != "" {
		p, err := NewPinecone(ctx, s.Pinecone)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	if db == nil {
		return nil, fmt.Errorf("sqlite index requires an open store")
	}
	return NewSQLite(sqlite.NewEmbeddingRepo(db)), nil
}

// Cosine returns the cosine similarity of a and b, 0 when either is empty
// or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func topMatches(matches []Match, topK int) []Match {
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches
}
