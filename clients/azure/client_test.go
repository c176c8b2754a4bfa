package azure

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/maestro/clients"
)

func TestNewValidation(t *testing.T) {
	_, err := New()
	require.ErrorIs(t, err, clients.ErrMissingAPIKey)

	_, err = New(WithAPIKey("k"))
	require.ErrorContains(t, err, "endpoint is required")

	_, err = New(WithAPIKey("k"), WithEndpoint("https://r.openai.azure.com"))
	require.ErrorContains(t, err, "deployment is required")
}

func TestInvokeTargetsDeployment(t *testing.T) {
	var gotPath, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Api-Key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	}))
	t.Cleanup(server.Close)

	client, err := New(
		WithAPIKey("azure-key"),
		WithEndpoint(server.URL),
		WithDeployment("prod-gpt4o"),
	)
	require.NoError(t, err)

	resp, err := client.Invoke(context.Background(), "ping")
	require.NoError(t, err)

	assert.Equal(t, "ok", resp.Text())
	assert.Equal(t, "/openai/deployments/prod-gpt4o/chat/completions", gotPath)
	assert.Equal(t, "azure-key", gotKey)
	assert.Equal(t, "prod-gpt4o", client.Model())
}
