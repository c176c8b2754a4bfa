package core

import (
	"encoding/json"
	"fmt"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser is the human (or calling program) side of the conversation.
	RoleUser Role = "user"
	// RoleAssistant is the model side of the conversation.
	RoleAssistant Role = "assistant"
	// RoleSystem carries instructions that frame the conversation.
	RoleSystem Role = "system"
)

// ParseRole converts a string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAssistant, RoleSystem:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// BlockType discriminates the concrete kinds of content block.
type BlockType string

const (
	BlockTypeText               BlockType = "text"
	BlockTypeThought            BlockType = "thought"
	BlockTypeFunctionCall       BlockType = "function_call"
	BlockTypeFunctionCallResult BlockType = "function_call_result"
	BlockTypeStructured         BlockType = "structured"
	BlockTypeMedia              BlockType = "media"
)

// Block is one ordered unit of content inside a model response or a memory
// turn. The set of implementations is closed to the *Block types in this
// package, so adapters can switch over them exhaustively.
type Block interface {
	Type() BlockType
}

// TextBlock is a plain text fragment.
type TextBlock struct {
	Content string `json:"content"`
}

func (TextBlock) Type() BlockType { return BlockTypeText }

// ThoughtBlock is reasoning text the model produced before its answer.
// Not every provider emits these.
type ThoughtBlock struct {
	Content string `json:"content"`
}

func (ThoughtBlock) Type() BlockType { return BlockTypeThought }

// FunctionCallBlock is a request from the model to invoke a named tool.
type FunctionCallBlock struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (FunctionCallBlock) Type() BlockType { return BlockTypeFunctionCall }

// FunctionCallResultBlock carries the outcome of a dispatched tool call back
// to the model. ID and Name echo the originating FunctionCallBlock.
type FunctionCallResultBlock struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Result string `json:"result"`
}

func (FunctionCallResultBlock) Type() BlockType { return BlockTypeFunctionCallResult }

// StructuredBlock holds schema-shaped output decoded from the model.
type StructuredBlock struct {
	Content map[string]any `json:"content"`
}

func (StructuredBlock) Type() BlockType { return BlockTypeStructured }

// MediaBlock attaches non-text content to a turn.
type MediaBlock struct {
	Media Media `json:"media"`
}

func (MediaBlock) Type() BlockType { return BlockTypeMedia }

// MediaType is the kind of media carried by a MediaBlock.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypePDF   MediaType = "pdf"
	MediaTypeAudio MediaType = "audio"
)

// MediaSourceType says how Media.Source is to be interpreted.
type MediaSourceType string

const (
	// MediaSourceURL means Source is a fetchable URL.
	MediaSourceURL MediaSourceType = "url"
	// MediaSourceBase64 means Source is base64-encoded content.
	MediaSourceBase64 MediaSourceType = "base64"
	// MediaSourcePath means Source is a local file path.
	MediaSourcePath MediaSourceType = "path"
	// MediaSourceRaw means Source is the raw bytes as a string.
	MediaSourceRaw MediaSourceType = "raw"
)

// Media describes one piece of non-text content and where its bytes live.
type Media struct {
	MediaType  MediaType       `json:"media_type"`
	Source     string          `json:"source"`
	SourceType MediaSourceType `json:"source_type"`
	// Extension is the file extension without the dot, e.g. "png" or "mp3".
	// Providers that need a MIME type derive it from here.
	Extension string `json:"extension,omitempty"`
}

// Blocks is an ordered list of content blocks. It round-trips through JSON
// with a "type" discriminator on every element, which is the wire format
// used for persisted memory turns.
type Blocks []Block

// MarshalJSON implements json.Marshaler.
func (bs Blocks) MarshalJSON() ([]byte, error) {
	raw := make([]json.RawMessage, len(bs))
	for i, b := range bs {
		enc, err := marshalBlock(b)
		if err != nil {
			return nil, err
		}
		raw[i] = enc
	}
	return json.Marshal(raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (bs *Blocks) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Blocks, 0, len(raw))
	for _, r := range raw {
		b, err := unmarshalBlock(r)
		if err != nil {
			return err
		}
		out = append(out, b)
	}
	*bs = out
	return nil
}

func marshalBlock(b Block) ([]byte, error) {
	type envelope struct {
		Type BlockType `json:"type"`
	}
	switch v := b.(type) {
	case TextBlock:
		return json.Marshal(struct {
			envelope
			TextBlock
		}{envelope{v.Type()}, v})
	case ThoughtBlock:
		return json.Marshal(struct {
			envelope
			ThoughtBlock
		}{envelope{v.Type()}, v})
	case FunctionCallBlock:
		return json.Marshal(struct {
			envelope
			FunctionCallBlock
		}{envelope{v.Type()}, v})
	case FunctionCallResultBlock:
		return json.Marshal(struct {
			envelope
			FunctionCallResultBlock
		}{envelope{v.Type()}, v})
	case StructuredBlock:
		return json.Marshal(struct {
			envelope
			StructuredBlock
		}{envelope{v.Type()}, v})
	case MediaBlock:
		return json.Marshal(struct {
			envelope
			MediaBlock
		}{envelope{v.Type()}, v})
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownBlockType, b)
}

func unmarshalBlock(data []byte) (Block, error) {
	var head struct {
		Type BlockType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	var (
		b   Block
		err error
	)
	switch head.Type {
	case BlockTypeText:
		var v TextBlock
		err = json.Unmarshal(data, &v)
		b = v
	case BlockTypeThought:
		var v ThoughtBlock
		err = json.Unmarshal(data, &v)
		b = v
	case BlockTypeFunctionCall:
		var v FunctionCallBlock
		err = json.Unmarshal(data, &v)
		b = v
	case BlockTypeFunctionCallResult:
		var v FunctionCallResultBlock
		err = json.Unmarshal(data, &v)
		b = v
	case BlockTypeStructured:
		var v StructuredBlock
		err = json.Unmarshal(data, &v)
		b = v
	case BlockTypeMedia:
		var v MediaBlock
		err = json.Unmarshal(data, &v)
		b = v
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBlockType, head.Type)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
