package google

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/poiesic/maestro/clients"
	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/memory"
	"github.com/poiesic/maestro/tools"
)

var roleTypes = map[core.Role]llms.ChatMessageType{
	core.RoleUser:      llms.ChatMessageTypeHuman,
	core.RoleAssistant: llms.ChatMessageTypeAI,
	core.RoleSystem:    llms.ChatMessageTypeSystem,
}

// messagesFromTurns converts session turns into langchaingo messages. Tool
// results become tool-role messages; thought blocks are not replayed.
func messagesFromTurns(turns []memory.Turn) ([]llms.MessageContent, error) {
	var messages []llms.MessageContent
	for _, turn := range turns {
		role, ok := roleTypes[turn.Role]
		if !ok {
			return nil, fmt.Errorf("%w: %q", core.ErrInvalidRole, turn.Role)
		}
		var parts []llms.ContentPart
		for _, block := range turn.Blocks {
			switch b := block.(type) {
			case core.TextBlock:
				if b.Content != "" {
					parts = append(parts, llms.TextContent{Text: b.Content})
				}
			case core.StructuredBlock:
				enc, err := json.Marshal(b.Content)
				if err != nil {
					return nil, fmt.Errorf("encode structured block: %w", err)
				}
				parts = append(parts, llms.TextContent{Text: string(enc)})
			case core.FunctionCallBlock:
				args, err := json.Marshal(b.Arguments)
				if err != nil {
					return nil, fmt.Errorf("encode tool call %q arguments: %w", b.Name, err)
				}
				parts = append(parts, llms.ToolCall{
					ID:   b.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      b.Name,
						Arguments: string(args),
					},
				})
			case core.FunctionCallResultBlock:
				messages = append(messages, llms.MessageContent{
					Role: llms.ChatMessageTypeTool,
					Parts: []llms.ContentPart{llms.ToolCallResponse{
						ToolCallID: b.ID,
						Name:       b.Name,
						Content:    b.Result,
					}},
				})
			case core.MediaBlock:
				part, err := mediaPart(b.Media)
				if err != nil {
					return nil, err
				}
				parts = append(parts, part)
			case core.ThoughtBlock:
				// Reasoning traces stay local.
			}
		}
		if len(parts) == 0 {
			continue
		}
		messages = append(messages, llms.MessageContent{Role: role, Parts: parts})
	}
	return messages, nil
}

func promptParts(prompt string, media []core.Media) ([]llms.ContentPart, error) {
	parts := []llms.ContentPart{llms.TextContent{Text: prompt}}
	for _, m := range media {
		part, err := mediaPart(m)
		if err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// mediaPart converts an attachment into a content part. Gemini takes inline
// bytes for every supported kind, so URLs pass through and everything else
// is decoded to raw data.
func mediaPart(m core.Media) (llms.ContentPart, error) {
	if m.SourceType == core.MediaSourceURL {
		return llms.ImageURLContent{URL: m.Source}, nil
	}
	var data []byte
	switch m.SourceType {
	case core.MediaSourceBase64:
		raw, err := base64.StdEncoding.DecodeString(m.Source)
		if err != nil {
			return nil, fmt.Errorf("decode media: %w", err)
		}
		data = raw
	case core.MediaSourcePath:
		raw, err := os.ReadFile(m.Source)
		if err != nil {
			return nil, fmt.Errorf("read media file: %w", err)
		}
		data = raw
	case core.MediaSourceRaw:
		data = []byte(m.Source)
	default:
		return nil, fmt.Errorf("%w: source %s", clients.ErrUnsupportedMedia, m.SourceType)
	}
	mime, err := mimeType(m)
	if err != nil {
		return nil, err
	}
	return llms.BinaryContent{MIMEType: mime, Data: data}, nil
}

func mimeType(m core.Media) (string, error) {
	switch m.MediaType {
	case core.MediaTypeImage:
		ext := m.Extension
		if ext == "" {
			ext = "png"
		}
		return "image/" + ext, nil
	case core.MediaTypePDF:
		return "application/pdf", nil
	case core.MediaTypeAudio:
		ext := m.Extension
		if ext == "" {
			ext = "mp3"
		}
		return "audio/" + ext, nil
	}
	return "", fmt.Errorf("%w: %s", clients.ErrUnsupportedMedia, m.MediaType)
}

// wireTools converts tool descriptors to the langchaingo schema.
func wireTools(ts []tools.Tool) []llms.Tool {
	out := make([]llms.Tool, 0, len(ts))
	for _, t := range ts {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func wireToolChoice(choice clients.ToolChoice) any {
	switch choice {
	case "":
		return nil
	case clients.ToolChoiceAuto, clients.ToolChoiceRequired, clients.ToolChoiceNone:
		return string(choice)
	}
	return llms.ToolChoice{
		Type:     "function",
		Function: &llms.FunctionReference{Name: string(choice)},
	}
}

// responseFrom normalizes the first choice: content text first, then tool
// calls in provider order.
func responseFrom(resp *llms.ContentResponse) (*core.Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("google: %w", clients.ErrEmptyResponse)
	}
	choice := resp.Choices[0]

	var blocks core.Blocks
	if choice.Content != "" {
		blocks = append(blocks, core.TextBlock{Content: choice.Content})
	}
	for _, call := range choice.ToolCalls {
		if call.FunctionCall == nil {
			continue
		}
		args := map[string]any{}
		if raw := strings.TrimSpace(call.FunctionCall.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, fmt.Errorf("decode tool call %q arguments: %w", call.FunctionCall.Name, err)
			}
		}
		blocks = append(blocks, core.FunctionCallBlock{
			ID:        call.ID,
			Name:      call.FunctionCall.Name,
			Arguments: args,
		})
	}
	return &core.Response{
		Content:    blocks,
		StopReason: stopReasonFrom(choice.StopReason, len(choice.ToolCalls) > 0),
		Usage:      usageFrom(choice.GenerationInfo),
	}, nil
}

func stopReasonFrom(reason string, hasCalls bool) core.StopReason {
	if hasCalls {
		return core.StopReasonToolCalls
	}
	switch strings.ToUpper(reason) {
	case "STOP", "FINISHREASONSTOP":
		return core.StopReasonStop
	case "MAX_TOKENS", "MAXTOKENS", "FINISHREASONMAXTOKENS":
		return core.StopReasonLength
	}
	return core.StopReason(strings.ToLower(reason))
}

// usageFrom extracts token counts from the choice metadata. The binding
// stores them as whatever integer type the vendor SDK used.
func usageFrom(info map[string]any) core.TokenUsage {
	return core.TokenUsage{
		Prompt:     intFrom(info["input_tokens"]),
		Completion: intFrom(info["output_tokens"]),
	}
}

func intFrom(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
