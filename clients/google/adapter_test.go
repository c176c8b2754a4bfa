package google

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/poiesic/maestro/clients"
	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/memory"
)

func TestMessagesFromTurns(t *testing.T) {
	turns := []memory.Turn{
		memory.NewTurn(core.RoleUser, core.TextBlock{Content: "Look this up."}),
		memory.NewTurn(core.RoleAssistant,
			core.ThoughtBlock{Content: "Needs the lookup tool."},
			core.FunctionCallBlock{ID: "c1", Name: "lookup", Arguments: map[string]any{"q": "posca"}},
		),
		memory.NewTurn(core.RoleAssistant,
			core.FunctionCallResultBlock{ID: "c1", Name: "lookup", Result: "a Roman drink"},
		),
	}

	messages, err := messagesFromTurns(turns)
	require.NoError(t, err)
	require.Len(t, messages, 3)

	assert.Equal(t, llms.ChatMessageTypeHuman, messages[0].Role)

	assert.Equal(t, llms.ChatMessageTypeAI, messages[1].Role)
	require.Len(t, messages[1].Parts, 1, "thought blocks must not reach the wire")
	call, ok := messages[1].Parts[0].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "lookup", call.FunctionCall.Name)
	assert.JSONEq(t, `{"q": "posca"}`, call.FunctionCall.Arguments)

	assert.Equal(t, llms.ChatMessageTypeTool, messages[2].Role)
	result, ok := messages[2].Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "c1", result.ToolCallID)
	assert.Equal(t, "a Roman drink", result.Content)
}

func TestMediaPartKinds(t *testing.T) {
	part, err := mediaPart(core.Media{
		MediaType:  core.MediaTypeImage,
		Source:     "https://example.com/chart.png",
		SourceType: core.MediaSourceURL,
	})
	require.NoError(t, err)
	url, ok := part.(llms.ImageURLContent)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/chart.png", url.URL)

	part, err = mediaPart(core.Media{
		MediaType:  core.MediaTypePDF,
		Source:     "aGVsbG8=",
		SourceType: core.MediaSourceBase64,
	})
	require.NoError(t, err)
	bin, ok := part.(llms.BinaryContent)
	require.True(t, ok)
	assert.Equal(t, "application/pdf", bin.MIMEType)
	assert.Equal(t, []byte("hello"), bin.Data)

	_, err = mediaPart(core.Media{
		MediaType:  "hologram",
		Source:     "x",
		SourceType: core.MediaSourceRaw,
	})
	require.ErrorIs(t, err, clients.ErrUnsupportedMedia)
}

func TestResponseFrom(t *testing.T) {
	resp, err := responseFrom(&llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			Content:    "done",
			StopReason: "STOP",
			GenerationInfo: map[string]any{
				"input_tokens":  int32(7),
				"output_tokens": 3,
			},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text())
	assert.Equal(t, core.StopReasonStop, resp.StopReason)
	assert.Equal(t, core.TokenUsage{Prompt: 7, Completion: 3}, resp.Usage)

	_, err = responseFrom(&llms.ContentResponse{})
	require.ErrorIs(t, err, clients.ErrEmptyResponse)
}

func TestResponseFromToolCalls(t *testing.T) {
	resp, err := responseFrom(&llms.ContentResponse{
		Choices: []*llms.ContentChoice{{
			ToolCalls: []llms.ToolCall{{
				ID:           "c7",
				Type:         "function",
				FunctionCall: &llms.FunctionCall{Name: "search", Arguments: `{"k": 3}`},
			}},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, core.StopReasonToolCalls, resp.StopReason)
	calls := resp.FunctionCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "search", calls[0].Name)
	assert.Equal(t, map[string]any{"k": float64(3)}, calls[0].Arguments)
}

func TestWireToolChoice(t *testing.T) {
	assert.Nil(t, wireToolChoice(""))
	assert.Equal(t, "auto", wireToolChoice(clients.ToolChoiceAuto))

	named, ok := wireToolChoice(clients.ToolChoice("search")).(llms.ToolChoice)
	require.True(t, ok)
	assert.Equal(t, "search", named.Function.Name)
}
