// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/poiesic/maestro/clients"
	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/memory"
	"github.com/poiesic/maestro/tools"
)

// messagesFromTurns converts session turns into chat messages. Tool results
// become role "tool" messages; thought blocks are not replayed to the
// provider.
func messagesFromTurns(turns []memory.Turn) ([]openai.ChatCompletionMessage, error) {
	var messages []openai.ChatCompletionMessage
	for _, turn := range turns {
		var (
			texts     []string
			media     []core.Media
			toolCalls []openai.ToolCall
		)
		for _, block := range turn.Blocks {
			switch b := block.(type) {
			case core.TextBlock:
				if b.Content != "" {
					texts = append(texts, b.Content)
				}
			case core.StructuredBlock:
				enc, err := json.Marshal(b.Content)
				if err != nil {
					return nil, fmt.Errorf("encode structured block: %w", err)
				}
				texts = append(texts, string(enc))
			case core.FunctionCallBlock:
				args, err := json.Marshal(b.Arguments)
				if err != nil {
					return nil, fmt.Errorf("encode tool call %q arguments: %w", b.Name, err)
				}
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   b.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      b.Name,
						Arguments: string(args),
					},
				})
			case core.FunctionCallResultBlock:
				messages = append(messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					ToolCallID: b.ID,
					Content:    b.Result,
				})
			case core.MediaBlock:
				media = append(media, b.Media)
			case core.ThoughtBlock:
				// Reasoning traces stay local.
			}
		}

		if len(texts) == 0 && len(media) == 0 && len(toolCalls) == 0 {
			continue
		}
		msg := openai.ChatCompletionMessage{Role: string(turn.Role)}
		if len(media) > 0 {
			parts, err := contentParts(strings.Join(texts, "\n"), media)
			if err != nil {
				return nil, err
			}
			msg.MultiContent = parts
		} else {
			msg.Content = strings.Join(texts, "\n")
		}
		msg.ToolCalls = toolCalls
		messages = append(messages, msg)
	}
	return messages, nil
}

// userMessage builds the trailing user message from the prompt and attached
// media.
func userMessage(prompt string, media []core.Media) (openai.ChatCompletionMessage, error) {
	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if len(media) == 0 {
		msg.Content = prompt
		return msg, nil
	}
	parts, err := contentParts(prompt, media)
	if err != nil {
		return openai.ChatCompletionMessage{}, err
	}
	msg.MultiContent = parts
	return msg, nil
}

func contentParts(text string, media []core.Media) ([]openai.ChatMessagePart, error) {
	var parts []openai.ChatMessagePart
	if text != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: text,
		})
	}
	for _, m := range media {
		part, err := mediaPart(m)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

func mediaPart(m core.Media) (openai.ChatMessagePart, error) {
	if m.MediaType != core.MediaTypeImage {
		return openai.ChatMessagePart{}, fmt.Errorf("%w: %s", clients.ErrUnsupportedMedia, m.MediaType)
	}
	var url string
	switch m.SourceType {
	case core.MediaSourceURL:
		url = m.Source
	case core.MediaSourceBase64:
		url = dataURL(m.Extension, m.Source)
	case core.MediaSourcePath:
		raw, err := os.ReadFile(m.Source)
		if err != nil {
			return openai.ChatMessagePart{}, fmt.Errorf("read media file: %w", err)
		}
		url = dataURL(m.Extension, base64.StdEncoding.EncodeToString(raw))
	case core.MediaSourceRaw:
		url = dataURL(m.Extension, base64.StdEncoding.EncodeToString([]byte(m.Source)))
	default:
		return openai.ChatMessagePart{}, fmt.Errorf("%w: source %s", clients.ErrUnsupportedMedia, m.SourceType)
	}
	return openai.ChatMessagePart{
		Type:     openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{URL: url},
	}, nil
}

func dataURL(ext, b64 string) string {
	if ext == "" {
		ext = "png"
	}
	return "data:image/" + ext + ";base64," + b64
}

// wireTools converts tool descriptors to the provider schema.
func wireTools(ts []tools.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(ts))
	for _, t := range ts {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

// wireToolChoice maps the shared ToolChoice onto the provider's field: the
// mode keywords pass through as strings, anything else names a function.
func wireToolChoice(choice clients.ToolChoice) any {
	switch choice {
	case "":
		return nil
	case clients.ToolChoiceAuto, clients.ToolChoiceRequired, clients.ToolChoiceNone:
		return string(choice)
	}
	return openai.ToolChoice{
		Type:     openai.ToolTypeFunction,
		Function: openai.ToolFunction{Name: string(choice)},
	}
}

// responseFromChoice normalizes a completion choice: content text first,
// then tool calls in provider order.
func responseFromChoice(choice openai.ChatCompletionChoice, usage openai.Usage) (*core.Response, error) {
	var blocks core.Blocks
	if choice.Message.Content != "" {
		blocks = append(blocks, core.TextBlock{Content: choice.Message.Content})
	}
	for _, call := range choice.Message.ToolCalls {
		block, err := callBlock(call)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return &core.Response{
		Content:    blocks,
		StopReason: core.StopReason(choice.FinishReason),
		Usage:      usageFrom(usage),
	}, nil
}

func callBlock(call openai.ToolCall) (core.FunctionCallBlock, error) {
	args := map[string]any{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return core.FunctionCallBlock{}, fmt.Errorf("decode tool call %q arguments: %w", call.Function.Name, err)
		}
	}
	return core.FunctionCallBlock{
		ID:        call.ID,
		Name:      call.Function.Name,
		Arguments: args,
	}, nil
}

func usageFrom(u openai.Usage) core.TokenUsage {
	usage := core.TokenUsage{
		Prompt:     u.PromptTokens,
		Completion: u.CompletionTokens,
	}
	if u.PromptTokensDetails != nil {
		usage.Cached = u.PromptTokensDetails.CachedTokens
	}
	if u.CompletionTokensDetails != nil {
		usage.Thinking = u.CompletionTokensDetails.ReasoningTokens
	}
	return usage
}

// toolCallMerger reassembles tool calls from streaming fragments, which
// arrive keyed by index with the arguments split across chunks.
type toolCallMerger struct {
	calls map[int]*openai.ToolCall
}

func (m *toolCallMerger) add(fragments []openai.ToolCall) {
	if len(fragments) == 0 {
		return
	}
	if m.calls == nil {
		m.calls = make(map[int]*openai.ToolCall)
	}
	for _, frag := range fragments {
		idx := 0
		if frag.Index != nil {
			idx = *frag.Index
		}
		call, ok := m.calls[idx]
		if !ok {
			call = &openai.ToolCall{}
			m.calls[idx] = call
		}
		if frag.ID != "" {
			call.ID = frag.ID
		}
		if frag.Function.Name != "" {
			call.Function.Name = frag.Function.Name
		}
		call.Function.Arguments += frag.Function.Arguments
	}
}

func (m *toolCallMerger) blocks() (core.Blocks, error) {
	if len(m.calls) == 0 {
		return nil, nil
	}
	indexes := make([]int, 0, len(m.calls))
	for idx := range m.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	var blocks core.Blocks
	for _, idx := range indexes {
		block, err := callBlock(*m.calls[idx])
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}
