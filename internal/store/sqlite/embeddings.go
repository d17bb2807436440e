package sqlite

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Embedding is a stored component vector.
type Embedding struct {
	ID        string
	Repo      string
	Component string
	File      string
	URL       string
	Vector    []float32
	CreatedAt time.Time
}

// EmbeddingRepo stores component embeddings for the local similarity index.
type EmbeddingRepo struct {
	db *DB
}

func NewEmbeddingRepo(db *DB) *EmbeddingRepo {
	return &EmbeddingRepo{db: db}
}

// Upsert stores or replaces embeddings in one transaction.
func (r *EmbeddingRepo) Upsert(ctx context.Context, items []Embedding) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert embeddings: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `
		INSERT INTO embeddings (id, repo, component, file, url, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			repo = excluded.repo,
			component = excluded.component,
			file = excluded.file,
			url = excluded.url,
			vector = excluded.vector,
			created_at = excluded.created_at`
	now := formatTime(time.Now())
	for _, e := range items {
		if _, err := tx.ExecContext(ctx, query, e.ID, e.Repo, e.Component, e.File, e.URL, encodeVector(e.Vector), now); err != nil {
			return fmt.Errorf("upsert embedding %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit embeddings: %w", err)
	}
	return nil
}

// List returns the embeddings of repo, or of every repo when repo is "".
func (r *EmbeddingRepo) List(ctx context.Context, repo string) ([]Embedding, error) {
	query := `SELECT id, repo, component, file, url, vector, created_at FROM embeddings`
	var args []any
	if repo != "" {
		query += ` WHERE repo = ?`
		args = append(args, repo)
	}

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var out []Embedding
	for rows.Next() {
		var (
			e         Embedding
			blob      []byte
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Repo, &e.Component, &e.File, &e.URL, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		if e.Vector, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("decode embedding %s: %w", e.ID, err)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at for %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}

// Count returns how many embeddings repo has.
func (r *EmbeddingRepo) Count(ctx context.Context, repo string) (int, error) {
	var n int
	if err := r.db.Reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings WHERE repo = ?`, repo).Scan(&n); err != nil {
		return 0, fmt.Errorf("count embeddings for %s: %w", repo, err)
	}
	return n, nil
}

// vectors are stored as little-endian float32s
func encodeVector(v []float32) []byte {
	out := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(f))
	}
	return out
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out, nil
}
