package vectordb

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/khulnasoft/pr-insight/internal/config"
	domainErrors "github.com/khulnasoft/pr-insight/internal/errors"
	"github.com/khulnasoft/pr-insight/internal/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, Cosine(nil, nil))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func openStore(t *testing.T) *sqlite.DB {
	t.Helper()
	s, err := config.Default()
	require.NoError(t, err)
	s.Store.Path = ":memory:"
	db, err := sqlite.Open(context.Background(), s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteIndex(t *testing.T) {
	idx := NewSQLite(sqlite.NewEmbeddingRepo(openStore(t)))
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []Record{
		{Repo: "acme/api", Component: "ParseConfig", File: "config.go", Vector: []float32{1, 0, 0}},
		{Repo: "acme/api", Component: "LoadConfig", File: "load.go", Vector: []float32{0.9, 0.1, 0}},
		{Repo: "acme/api", Component: "Render", File: "view.go", Vector: []float32{0, 0, 1}},
		{Repo: "acme/web", Component: "ParseConfig", File: "cfg.ts", Vector: []float32{1, 0, 0}},
	}))

	got, err := idx.Query(ctx, "acme/api", []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ParseConfig", got[0].Component)
	assert.Equal(t, "LoadConfig", got[1].Component)
	assert.Greater(t, got[0].Score, got[1].Score)

	all, err := idx.Query(ctx, "", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestNew_PicksBackend(t *testing.T) {
	s, err := config.Default()
	require.NoError(t, err)
	db := openStore(t)

	s.PRSimilar.VectorDB = "pinecone"
	idx, err := New(context.Background(), s, db)
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, idx, "no api key falls back to sqlite")

	s.PRSimilar.VectorDB = "sqlite"
	_, err = New(context.Background(), s, nil)
	assert.Error(t, err)
}

func TestPinecone(t *testing.T) {
	var upserts, queries []map[string]any
	data := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pc-key", r.Header.Get("Api-Key"))
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		assert.NoError(t, json.Unmarshal(raw, &body))
		switch r.URL.Path {
		case "/vectors/upsert":
			upserts = append(upserts, body)
			_, _ = io.WriteString(w, `{"upsertedCount": 1}`)
		case "/query":
			queries = append(queries, body)
			_, _ = io.WriteString(w, `{"matches":[
				{"id":"a","score":0.5,"metadata":{"repo":"acme/api","component":"Low","file":"l.go"}},
				{"id":"b","score":0.9,"metadata":{"repo":"acme/api","component":"High","file":"h.go","url":"https://x/h.go"}}
			]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer data.Close()

	control := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/indexes/pr-insight", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"host": data.URL})
	}))
	defer control.Close()

	ctx := context.Background()
	p, err := NewPinecone(ctx, config.Pinecone{APIKey: "pc-key", Index: "pr-insight", Environment: "prod"}, WithControlURL(control.URL))
	require.NoError(t, err)

	require.NoError(t, p.Upsert(ctx, []Record{{Repo: "acme/api", Component: "High", File: "h.go", Vector: []float32{1, 2}}}))
	require.Len(t, upserts, 1)
	assert.Equal(t, "prod", upserts[0]["namespace"])

	got, err := p.Query(ctx, "acme/api", []float32{1, 2}, 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "High", got[0].Component)
	assert.Equal(t, "https://x/h.go", got[0].URL)
	require.Len(t, queries, 1)
	assert.Equal(t, map[string]any{"repo": map[string]any{"$eq": "acme/api"}}, queries[0]["filter"])
	assert.Equal(t, float64(5), queries[0]["topK"])
}

func TestPinecone_MissingKey(t *testing.T) {
	_, err := NewPinecone(context.Background(), config.Pinecone{Index: "x"})
	assert.ErrorIs(t, err, domainErrors.ErrAPIKeyMissing)
}
