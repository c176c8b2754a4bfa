package pipeline

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// orderedComponent appends its name to a shared log on every run.
type orderedComponent struct {
	name string
	log  *[]string
	out  any
	in   map[string]any
}

func (c *orderedComponent) Run(_ context.Context, in map[string]any) (any, error) {
	*c.log = append(*c.log, c.name)
	c.in = in
	return c.out, nil
}

func newDiamond(t *testing.T, log *[]string) (*DagPipeline, map[string]*orderedComponent) {
	t.Helper()

	d := NewDag()
	mods := make(map[string]*orderedComponent)
	for _, name := range []string{"a", "b", "c", "d"} {
		mods[name] = &orderedComponent{name: name, log: log, out: name + "-out"}
		require.NoError(t, d.AddModule(name, mods[name]))
	}
	require.NoError(t, d.Connect("a", "b"))
	require.NoError(t, d.Connect("a", "c"))
	require.NoError(t, d.Connect("b", "d"))
	require.NoError(t, d.Connect("c", "d"))
	return d, mods
}

func TestDagRunsInTopologicalOrder(t *testing.T) {
	var log []string
	d, mods := newDiamond(t, &log)

	out, err := d.Run(context.Background(), nil)
	require.NoError(t, err)

	require.Len(t, log, 4)
	assert.Less(t, slices.Index(log, "a"), slices.Index(log, "b"))
	assert.Less(t, slices.Index(log, "a"), slices.Index(log, "c"))
	assert.Less(t, slices.Index(log, "b"), slices.Index(log, "d"))
	assert.Less(t, slices.Index(log, "c"), slices.Index(log, "d"))

	// Every module's output is reported under its name.
	assert.Equal(t, map[string]any{
		"a": "a-out", "b": "b-out", "c": "c-out", "d": "d-out",
	}, out)

	// Join module saw both parents under their default keys.
	assert.Equal(t, map[string]any{"b": "b-out", "c": "c-out"}, mods["d"].in)
}

func TestDagSeedsModuleInputsByName(t *testing.T) {
	var log []string
	d, mods := newDiamond(t, &log)

	_, err := d.Run(context.Background(), map[string]map[string]any{
		"a": {"text": "hello"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"text": "hello"}, mods["a"].in)
	assert.Equal(t, map[string]any{"a": "a-out"}, mods["b"].in)
}

func TestDagTargetKey(t *testing.T) {
	var log []string
	src := &orderedComponent{name: "src", log: &log, out: "payload"}
	dst := &orderedComponent{name: "dst", log: &log}

	d := NewDag()
	require.NoError(t, d.AddModule("src", src))
	require.NoError(t, d.AddModule("dst", dst))
	require.NoError(t, d.Connect("src", "dst", WithTargetKey("document")))

	_, err := d.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"document": "payload"}, dst.in)
}

func TestDagValidation(t *testing.T) {
	t.Run("duplicate module", func(t *testing.T) {
		d := NewDag()
		require.NoError(t, d.AddModule("a", &echoComponent{}))
		assert.ErrorIs(t, d.AddModule("a", &echoComponent{}), ErrDuplicateStep)
	})

	t.Run("connect unknown source", func(t *testing.T) {
		d := NewDag()
		require.NoError(t, d.AddModule("a", &echoComponent{}))
		assert.ErrorIs(t, d.Connect("ghost", "a"), ErrUnknownStep)
	})

	t.Run("connect unknown target", func(t *testing.T) {
		d := NewDag()
		require.NoError(t, d.AddModule("a", &echoComponent{}))
		assert.ErrorIs(t, d.Connect("a", "ghost"), ErrUnknownStep)
	})
}

func TestDagCycleDetection(t *testing.T) {
	d := NewDag()
	require.NoError(t, d.AddModule("a", &echoComponent{}))
	require.NoError(t, d.AddModule("b", &echoComponent{}))
	require.NoError(t, d.Connect("a", "b"))
	require.NoError(t, d.Connect("b", "a"))

	_, err := d.Run(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")
}

func TestDagModuleErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	after := &echoComponent{}

	d := NewDag()
	require.NoError(t, d.AddModule("fail", &echoComponent{err: boom}))
	require.NoError(t, d.AddModule("after", after))
	require.NoError(t, d.Connect("fail", "after"))

	_, err := d.Run(context.Background(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), `module "fail"`)
	assert.Empty(t, after.calls)
}

func TestDagIndependentModulesKeepInsertionOrder(t *testing.T) {
	var log []string
	d := NewDag()
	for _, name := range []string{"third", "first", "second"} {
		require.NoError(t, d.AddModule(name, &orderedComponent{name: name, log: &log}))
	}

	_, err := d.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "first", "second"}, log)
}
