package mistral

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/maestro/clients"
)

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New()
	require.ErrorIs(t, err, clients.ErrMissingAPIKey)
}

func TestInvokeUsesConfiguredModel(t *testing.T) {
	var req openai.ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"bonjour"},"finish_reason":"stop"}]}`))
	}))
	t.Cleanup(server.Close)

	client, err := New(
		WithAPIKey("mistral-key"),
		WithBaseURL(server.URL+"/v1"),
		WithModel("mistral-large-latest"),
	)
	require.NoError(t, err)

	resp, err := client.Invoke(context.Background(), "salut")
	require.NoError(t, err)

	assert.Equal(t, "bonjour", resp.Text())
	assert.Equal(t, "mistral-large-latest", req.Model)
	assert.Equal(t, "mistral-large-latest", client.Model())
}
