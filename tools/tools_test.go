package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoTool(name string) Tool {
	return Tool{
		Name:        name,
		Description: "echoes its input",
		Parameters:  ObjectSchema(map[string]*Schema{"text": StringParam("text to echo")}, "text"),
		Call: func(_ context.Context, args map[string]any) (string, error) {
			s, err := String(args, "text")
			if err != nil {
				return "", err
			}
			return s, nil
		},
	}
}

func TestRegistry_RegisterAndDispatch(t *testing.T) {
	r := NewRegistry(echoTool("echo"))

	out, err := r.Dispatch(context.Background(), "echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	_, err = r.Dispatch(context.Background(), "missing", nil)
	require.Error(t, err)
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry(echoTool("echo"))
	err := r.Register(echoTool("echo"))
	require.Error(t, err)
}

func TestRegistry_ListOrder(t *testing.T) {
	r := NewRegistry(echoTool("alpha"), echoTool("beta"), echoTool("gamma"))
	names := make([]string, 0, r.Len())
	for _, tool := range r.List() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, names)
}

func TestSchema_Marshal(t *testing.T) {
	s := ObjectSchema(map[string]*Schema{
		"chat_id": StringParam("target chat"),
		"count":   IntParam("how many"),
	}, "chat_id")

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "object", decoded["type"])
	props := decoded["properties"].(map[string]any)
	assert.Contains(t, props, "chat_id")
	assert.Equal(t, []any{"chat_id"}, decoded["required"].([]any))
}

func TestArgumentHelpers(t *testing.T) {
	args := map[string]any{
		"s":    "text",
		"f":    float64(7),
		"sn":   "42",
		"flag": true,
	}

	s, err := String(args, "s")
	require.NoError(t, err)
	assert.Equal(t, "text", s)

	_, err = String(args, "f")
	assert.Error(t, err)

	n, err := Int(args, "f")
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)

	n, err = Int(args, "sn")
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)

	b, err := Bool(args, "flag")
	require.NoError(t, err)
	assert.True(t, b)

	b, err = Bool(args, "absent")
	require.NoError(t, err)
	assert.False(t, b)

	assert.Equal(t, "fallback", StringOr(args, "absent", "fallback"))
}
