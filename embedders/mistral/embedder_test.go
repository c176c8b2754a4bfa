package mistral

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/maestro/embedders"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New()
	assert.ErrorIs(t, err, embedders.ErrMissingAPIKey)
}

func TestEmbedDefaults(t *testing.T) {
	var gotModel, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req struct {
			Model string `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotModel = req.Model
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"object": "list",
			"data": [{"object": "embedding", "embedding": [0.5], "index": 0}],
			"model": "mistral-embed",
			"usage": {"prompt_tokens": 1, "total_tokens": 1}
		}`))
	}))
	defer server.Close()

	emb, err := New(WithAPIKey("mistral-key"), WithBaseURL(server.URL))
	require.NoError(t, err)
	assert.Equal(t, 1024, emb.Dim())

	vectors, err := emb.Embed(context.Background(), []string{"bonjour"})
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, gotModel)
	assert.Equal(t, "Bearer mistral-key", gotAuth)
	require.Len(t, vectors, 1)
	assert.Equal(t, []float32{0.5}, vectors[0])
}
