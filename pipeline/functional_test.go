package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoComponent returns a fixed value and records every input map it saw.
type echoComponent struct {
	out   any
	err   error
	calls []map[string]any
}

func (c *echoComponent) Run(_ context.Context, in map[string]any) (any, error) {
	c.calls = append(c.calls, in)
	if c.err != nil {
		return nil, c.err
	}
	return c.out, nil
}

func TestFunctionalPipelineRunsInOrderAndWiresDeps(t *testing.T) {
	split := &echoComponent{out: "split-out"}
	embed := &echoComponent{out: "embed-out"}

	p := NewFunctional()
	require.NoError(t, p.AddStep("split", split))
	require.NoError(t, p.AddStep("embed", embed, Dependency{From: "split", As: "payload"}))

	out, err := p.Run(context.Background(), map[string]any{"seed": 1})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"split": "split-out", "embed": "embed-out"}, out)

	require.Len(t, split.calls, 1)
	assert.Equal(t, map[string]any{"seed": 1}, split.calls[0])

	// The dependent step sees the seed plus exactly the declared value.
	require.Len(t, embed.calls, 1)
	assert.Equal(t, map[string]any{"seed": 1, "payload": "split-out"}, embed.calls[0])
}

func TestFunctionalPipelineDefaultDependencyKey(t *testing.T) {
	consumer := &echoComponent{out: "done"}

	p := NewFunctional()
	require.NoError(t, p.AddStep("produce", &echoComponent{out: 42}))
	require.NoError(t, p.AddStep("consume", consumer, Dependency{From: "produce"}))

	_, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, consumer.calls, 1)
	assert.Equal(t, 42, consumer.calls[0]["produce"])
}

func TestFunctionalPipelineDependencyMapKey(t *testing.T) {
	producer := &echoComponent{out: map[string]any{"text": "hello", "count": 2}}
	consumer := &echoComponent{out: nil}

	p := NewFunctional()
	require.NoError(t, p.AddStep("produce", producer))
	require.NoError(t, p.AddStep("consume", consumer, Dependency{From: "produce", Key: "text", As: "msg"}))

	_, err := p.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, consumer.calls, 1)
	assert.Equal(t, map[string]any{"msg": "hello"}, consumer.calls[0])
}

func TestFunctionalPipelineDependencyKeyErrors(t *testing.T) {
	t.Run("output is not a map", func(t *testing.T) {
		p := NewFunctional()
		require.NoError(t, p.AddStep("produce", &echoComponent{out: "plain string"}))
		require.NoError(t, p.AddStep("consume", &echoComponent{}, Dependency{From: "produce", Key: "text"}))

		_, err := p.Run(context.Background(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `cannot take key "text"`)
	})

	t.Run("key missing from map output", func(t *testing.T) {
		p := NewFunctional()
		require.NoError(t, p.AddStep("produce", &echoComponent{out: map[string]any{"other": 1}}))
		require.NoError(t, p.AddStep("consume", &echoComponent{}, Dependency{From: "produce", Key: "text"}))

		_, err := p.Run(context.Background(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `has no key "text"`)
	})
}

func TestFunctionalPipelineAddStepValidation(t *testing.T) {
	t.Run("empty name", func(t *testing.T) {
		p := NewFunctional()
		require.Error(t, p.AddStep("", &echoComponent{}))
	})

	t.Run("nil component", func(t *testing.T) {
		p := NewFunctional()
		require.Error(t, p.AddStep("step", nil))
	})

	t.Run("duplicate name", func(t *testing.T) {
		p := NewFunctional()
		require.NoError(t, p.AddStep("step", &echoComponent{}))
		err := p.AddStep("step", &echoComponent{})
		assert.ErrorIs(t, err, ErrDuplicateStep)
	})

	t.Run("dependency on a later step", func(t *testing.T) {
		p := NewFunctional()
		err := p.AddStep("first", &echoComponent{}, Dependency{From: "second"})
		assert.ErrorIs(t, err, ErrUnknownStep)
	})
}

func TestFunctionalPipelineFirstErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	after := &echoComponent{out: "never"}

	p := NewFunctional()
	require.NoError(t, p.AddStep("ok", &echoComponent{out: 1}))
	require.NoError(t, p.AddStep("fail", &echoComponent{err: boom}))
	require.NoError(t, p.AddStep("after", after))

	_, err := p.Run(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `step "fail"`)
	assert.Empty(t, after.calls)
}

func TestBranchRunsExactlyOneSide(t *testing.T) {
	flagPredicate := func(_ context.Context, in map[string]any) (bool, error) {
		return in["flag"].(bool), nil
	}

	t.Run("true side", func(t *testing.T) {
		trueStep := &echoComponent{out: "true-out"}
		falseStep := &echoComponent{out: "false-out"}
		trueSide := NewFunctional()
		require.NoError(t, trueSide.AddStep("t", trueStep))
		falseSide := NewFunctional()
		require.NoError(t, falseSide.AddStep("f", falseStep))

		branch := Branch(flagPredicate, trueSide, falseSide)
		out, err := branch.Run(context.Background(), map[string]any{"flag": true})
		require.NoError(t, err)

		assert.Equal(t, map[string]any{"t": "true-out"}, out)
		assert.Len(t, trueStep.calls, 1)
		assert.Empty(t, falseStep.calls)
	})

	t.Run("false side", func(t *testing.T) {
		trueStep := &echoComponent{out: "true-out"}
		falseStep := &echoComponent{out: "false-out"}
		trueSide := NewFunctional()
		require.NoError(t, trueSide.AddStep("t", trueStep))
		falseSide := NewFunctional()
		require.NoError(t, falseSide.AddStep("f", falseStep))

		branch := Branch(flagPredicate, trueSide, falseSide)
		out, err := branch.Run(context.Background(), map[string]any{"flag": false})
		require.NoError(t, err)

		assert.Equal(t, map[string]any{"f": "false-out"}, out)
		assert.Empty(t, trueStep.calls)
		assert.Len(t, falseStep.calls, 1)
	})

	t.Run("predicate error", func(t *testing.T) {
		branch := Branch(func(_ context.Context, _ map[string]any) (bool, error) {
			return false, errors.New("cannot decide")
		}, NewFunctional(), NewFunctional())

		_, err := branch.Run(context.Background(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "branch predicate")
	})

	t.Run("nil side yields nil output", func(t *testing.T) {
		branch := Branch(flagPredicate, nil, NewFunctional())
		out, err := branch.Run(context.Background(), map[string]any{"flag": true})
		require.NoError(t, err)
		assert.Nil(t, out)
	})
}

func TestForEachCollectsInOrder(t *testing.T) {
	sub := NewFunctional()
	require.NoError(t, sub.AddStep("double", ComponentFunc(func(_ context.Context, in map[string]any) (any, error) {
		return in["item"].(int) * 2, nil
	})))

	fe := ForEach("items", "item", sub)
	out, err := fe.Run(context.Background(), map[string]any{"items": []int{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, []any{2, 4, 6}, out)
}

func TestForEachSeedsRemainingInputs(t *testing.T) {
	sub := NewFunctional()
	require.NoError(t, sub.AddStep("label", ComponentFunc(func(_ context.Context, in map[string]any) (any, error) {
		return in["prefix"].(string) + in["item"].(string), nil
	})))

	fe := ForEach("items", "item", sub)
	out, err := fe.Run(context.Background(), map[string]any{
		"items":  []string{"a", "b"},
		"prefix": "x-",
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"x-a", "x-b"}, out)
}

func TestForEachErrors(t *testing.T) {
	t.Run("missing collection input", func(t *testing.T) {
		fe := ForEach("items", "item", NewFunctional())
		_, err := fe.Run(context.Background(), map[string]any{})
		assert.ErrorIs(t, err, ErrMissingInput)
	})

	t.Run("collection is not a slice", func(t *testing.T) {
		fe := ForEach("items", "item", NewFunctional())
		_, err := fe.Run(context.Background(), map[string]any{"items": "not a slice"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "expected a slice")
	})

	t.Run("element failure names the element", func(t *testing.T) {
		sub := NewFunctional()
		require.NoError(t, sub.AddStep("check", ComponentFunc(func(_ context.Context, in map[string]any) (any, error) {
			if in["item"].(int) == 2 {
				return nil, errors.New("bad element")
			}
			return in["item"], nil
		})))

		fe := ForEach("items", "item", sub)
		_, err := fe.Run(context.Background(), map[string]any{"items": []int{1, 2, 3}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "element 1")
	})
}
