package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/items":
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"name":"a"}`, string(body))
			fmt.Fprint(w, `{"id":7}`)
		case "/raw":
			fmt.Fprint(w, "plain text")
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, "missing")
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/", Bearer("secret"))
	ctx := context.Background()

	t.Run("should encode and decode json", func(t *testing.T) {
		var out struct {
			ID int `json:"id"`
		}
		require.NoError(t, c.JSON(ctx, http.MethodPost, "/items", map[string]string{"name": "a"}, &out))
		assert.Equal(t, 7, out.ID)
	})

	t.Run("should return raw bodies", func(t *testing.T) {
		got, err := c.Raw(ctx, srv.URL+"/raw")
		require.NoError(t, err)
		assert.Equal(t, "plain text", got)
	})

	t.Run("should surface status errors", func(t *testing.T) {
		err := c.JSON(ctx, http.MethodGet, "nope", nil, nil)
		require.Error(t, err)
		assert.Equal(t, http.StatusNotFound, StatusCode(err))
		assert.Contains(t, err.Error(), "missing")
		assert.Equal(t, 0, StatusCode(fmt.Errorf("plain")))
	})
}
