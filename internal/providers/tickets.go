package providers

import (
	"context"

	"github.com/khulnasoft/pr-insight/internal/config"
	"github.com/khulnasoft/pr-insight/internal/store/sqlite"
	"github.com/khulnasoft/pr-insight/internal/tickets"
	"github.com/khulnasoft/pr-insight/internal/vectordb"
)

// NewTicketExtractor returns nil when ticket analysis is disabled.
func NewTicketExtractor(s *config.Settings) *tickets.Extractor {
	if !s.Config.RequireTicketAnalysisReview {
		return nil
	}
	return tickets.NewExtractor()
}

// NewSimilarityIndex opens the index configured in [pr_similar]. The
// returned close func releases the local store, if one was opened.
func NewSimilarityIndex(ctx context.Context, s *config.Settings) (vectordb.Index, func() error, error) {
	noop := func() error { return nil }
	if s.PRSimilar.VectorDB == "pinecone" && s.Pinecone.APIKey != "" {
		idx, err := vectordb.New(ctx, s, nil)
		if err != nil {
			return nil, noop, err
		}
		return idx, noop, nil
	}

	db, err := sqlite.Open(ctx, s)
	if err != nil {
		return nil, noop, err
	}
	idx, err := vectordb.New(ctx, s, db)
	if err != nil {
		_ = db.Close()
		return nil, noop, err
	}
	return idx, db.Close, nil
}
