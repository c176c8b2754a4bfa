package core

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestBlocks_JSONRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		blocks Blocks
	}{
		{
			name:   "text",
			blocks: Blocks{TextBlock{Content: "hello"}},
		},
		{
			name: "mixed order preserved",
			blocks: Blocks{
				ThoughtBlock{Content: "thinking"},
				TextBlock{Content: "answer"},
				FunctionCallBlock{ID: "call_1", Name: "lookup", Arguments: map[string]any{"q": "go"}},
				FunctionCallResultBlock{ID: "call_1", Name: "lookup", Result: "found"},
			},
		},
		{
			name: "structured",
			blocks: Blocks{
				StructuredBlock{Content: map[string]any{"answer": "42"}},
			},
		},
		{
			name: "media",
			blocks: Blocks{
				MediaBlock{Media: Media{
					MediaType:  MediaTypeImage,
					Source:     "https://example.com/a.png",
					SourceType: MediaSourceURL,
					Extension:  "png",
				}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.blocks)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var got Blocks
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.blocks) {
				t.Errorf("round trip = %#v, want %#v", got, tt.blocks)
			}
		})
	}
}

func TestBlocks_UnmarshalUnknownType(t *testing.T) {
	var got Blocks
	err := json.Unmarshal([]byte(`[{"type":"hologram"}]`), &got)
	if !errors.Is(err, ErrUnknownBlockType) {
		t.Errorf("Unmarshal() error = %v, want ErrUnknownBlockType", err)
	}
}

func TestBlocks_MarshalTypeTag(t *testing.T) {
	data, err := json.Marshal(Blocks{TextBlock{Content: "x"}})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if raw[0]["type"] != "text" {
		t.Errorf("type tag = %v, want text", raw[0]["type"])
	}
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"user", "assistant", "system"} {
		if _, err := ParseRole(s); err != nil {
			t.Errorf("ParseRole(%q) error = %v", s, err)
		}
	}
	if _, err := ParseRole("robot"); !errors.Is(err, ErrInvalidRole) {
		t.Errorf("ParseRole(robot) error = %v, want ErrInvalidRole", err)
	}
}
