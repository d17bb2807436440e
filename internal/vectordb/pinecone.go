package vectordb

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/khulnasoft/pr-insight/internal/config"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/httpclient"
	"github.com/khulnasoft/pr-insight/internal/logger"
)

const (
	pineconeControlURL = "https://api.pinecone.io"
	pineconeAPIVersion = "2024-07"
	// upsert requests are capped at 1000 vectors
	pineconeBatch = 100
)

// Pinecone talks to a serverless index over the data plane REST API.
type Pinecone struct {
	api       *httpclient.Client
	namespace string
}

type PineconeOption func(*pineconeOptions)

type pineconeOptions struct {
	controlURL string
	host       string
}

// WithControlURL overrides the control plane used to resolve the index host.
func WithControlURL(u string) PineconeOption {
	return func(o *pineconeOptions) { o.controlURL = u }
}

// WithHost skips host resolution.
func WithHost(host string) PineconeOption {
	return func(o *pineconeOptions) { o.host = host }
}

// NewPinecone resolves the data plane host of cfg.Index. The environment,
// when set, is used as the namespace.
func NewPinecone(ctx context.Context, cfg config.Pinecone, opts ...PineconeOption) (*Pinecone, error) {
	if cfg.APIKey == "" {
		return nil, domainErrors.ErrAPIKeyMissing.WithContext("backend", "pinecone")
	}
	o := pineconeOptions{controlURL: pineconeControlURL}
	for _, opt := range opts {
		opt(&o)
	}
	authorize := func(r *http.Request) {
		r.Header.Set("Api-Key", cfg.APIKey)
		r.Header.Set("X-Pinecone-API-Version", pineconeAPIVersion)
	}

	host := o.host
	if host == "" {
		var desc struct {
			Host string `json:"host"`
		}
		control := httpclient.New(o.controlURL, authorize)
		if err := control.JSON(ctx, http.MethodGet, "/indexes/"+cfg.Index, nil, &desc); err != nil {
			return nil, fmt.Errorf("describe pinecone index %s: %w", cfg.Index, err)
		}
		host = desc.Host
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	logger.Debug(ctx, "pinecone index resolved", "index", cfg.Index, "host", host)
	return &Pinecone{api: httpclient.New(host, authorize), namespace: cfg.Environment}, nil
}

type pineconeVector struct {
	ID       string            `json:"id"`
	Values   []float32         `json:"values,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (p *Pinecone) Upsert(ctx context.Context, records []Record) error {
	for start := 0; start < len(records); start += pineconeBatch {
		end := min(start+pineconeBatch, len(records))
		vectors := make([]pineconeVector, 0, end-start)
		for _, r := range records[start:end] {
			vectors = append(vectors, pineconeVector{
				ID:     r.ID(),
				Values: r.Vector,
				Metadata: map[string]string{
					"repo":      r.Repo,
					"component": r.Component,
					"file":      r.File,
					"url":       r.URL,
				},
			})
		}
		body := map[string]any{"vectors": vectors, "namespace": p.namespace}
		if err := p.api.JSON(ctx, http.MethodPost, "/vectors/upsert", body, nil); err != nil {
			return fmt.Errorf("pinecone upsert: %w", err)
		}
	}
	return nil
}

func (p *Pinecone) Query(ctx context.Context, repo string, vector []float32, topK int) ([]Match, error) {
	body := map[string]any{
		"vector":          vector,
		"topK":            topK,
		"includeMetadata": true,
		"namespace":       p.namespace,
	}
	if repo != "" {
		body["filter"] = map[string]any{"repo": map[string]string{"$eq": repo}}
	}
	var resp struct {
		Matches []struct {
			ID       string            `json:"id"`
			Score    float64           `json:"score"`
			Metadata map[string]string `json:"metadata"`
		} `json:"matches"`
	}
	if err := p.api.JSON(ctx, http.MethodPost, "/query", body, &resp); err != nil {
		return nil, fmt.Errorf("pinecone query: %w", err)
	}
	out := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		out = append(out, Match{
			Record: Record{
				Repo:      m.Metadata["repo"],
				Component: m.Metadata["component"],
				File:      m.Metadata["file"],
				URL:       m.Metadata["url"],
			},
			Score: m.Score,
		})
	}
	return topMatches(out, topK), nil
}
