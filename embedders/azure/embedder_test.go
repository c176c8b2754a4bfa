package azure

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

func TestNewValidation(t *testing.T) {
	_, err := New()
	assert.ErrorIs(t, err, embedders.ErrMissingAPIKey)

	_, err = New(WithAPIKey("key"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")

	_, err = New(WithAPIKey("key"), WithEndpoint("https://example.openai.azure.com"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deployment")
}

func TestEmbedUsesDeploymentRoute(t *testing.T) {
	var gotPath, gotKey string
	var gotInput []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Api-Key")
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		gotInput = req.Input
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"object": "list",
			"data": [{"object": "embedding", "embedding": [0.1, 0.2], "index": 0}],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 1, "total_tokens": 1}
		}`))
	}))
	defer server.Close()

	emb, err := New(
		WithAPIKey("azure-key"),
		WithEndpoint(server.URL),
		WithDeployment("prod-embed"),
	)
	require.NoError(t, err)

	vectors, err := emb.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)

	assert.Equal(t, "/openai/deployments/prod-embed/embeddings", gotPath)
	assert.Equal(t, "azure-key", gotKey)
	assert.Equal(t, []string{"hello"}, gotInput)
	require.Len(t, vectors, 1)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
}
