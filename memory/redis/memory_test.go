package redis

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/memory"
)

// fakeRedis implements cmdable over a map, enough to exercise the key scheme
// without a server.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}}
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := strconv.ParseInt(f.data[key], 10, 64)
	n++
	f.data[key] = strconv.FormatInt(n, 10)
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case string:
		f.data[key] = v
	case []byte:
		f.data[key] = string(v)
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) MGet(_ context.Context, keys ...string) *redis.SliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	vals := make([]interface{}, len(keys))
	for i, k := range keys {
		if v, ok := f.data[k]; ok {
			vals[i] = v
		}
	}
	return redis.NewSliceResult(vals, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Expire(_ context.Context, _ string, _ time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func newTestMemory(t *testing.T) (*Memory, *fakeRedis) {
	t.Helper()
	fake := newFakeRedis()
	m := &Memory{
		rdb:        fake,
		userID:     "alice",
		sessionID:  "s1",
		expiration: DefaultExpiration,
		logger:     slog.Default(),
	}
	return m, fake
}

func TestMemory_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(t)

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, m.AddTurn(ctx, memory.NewTurn(core.RoleUser, core.TextBlock{Content: text})))
	}

	turns, err := m.Turns(ctx)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "one", turns[0].Blocks[0].(core.TextBlock).Content)
	assert.Equal(t, "two", turns[1].Blocks[0].(core.TextBlock).Content)
	assert.Equal(t, "three", turns[2].Blocks[0].(core.TextBlock).Content)
}

func TestMemory_KeyScheme(t *testing.T) {
	ctx := context.Background()
	m, fake := newTestMemory(t)

	require.NoError(t, m.AddTurn(ctx, memory.NewTurn(core.RoleUser, core.TextBlock{Content: "hi"})))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Contains(t, fake.data, "history:alice:s1:1")
	assert.Equal(t, "1", fake.data["history:alice:s1:next_index"])
}

func TestMemory_Clear(t *testing.T) {
	ctx := context.Background()
	m, fake := newTestMemory(t)

	require.NoError(t, m.AddTurn(ctx, memory.NewTurn(core.RoleUser, core.TextBlock{Content: "a"})))
	require.NoError(t, m.AddTurn(ctx, memory.NewTurn(core.RoleAssistant, core.TextBlock{Content: "b"})))
	require.NoError(t, m.Clear(ctx))

	turns, err := m.Turns(ctx)
	require.NoError(t, err)
	assert.Empty(t, turns)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Empty(t, fake.data)
}

func TestMemory_AddToLastTurn(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(t)

	// Empty session: a new assistant turn is created.
	require.NoError(t, m.AddToLastTurn(ctx, core.TextBlock{Content: "start"}))
	turns, err := m.Turns(ctx)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, core.RoleAssistant, turns[0].Role)

	require.NoError(t, m.AddToLastTurn(ctx, core.FunctionCallBlock{ID: "c1", Name: "f"}))
	turns, err = m.Turns(ctx)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Len(t, turns[0].Blocks, 2)
	assert.Equal(t, "f", turns[0].Blocks[1].(core.FunctionCallBlock).Name)
}

func TestMemory_RoundTripsBlockKinds(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(t)

	turn := memory.NewTurn(core.RoleAssistant,
		core.ThoughtBlock{Content: "considering"},
		core.FunctionCallBlock{ID: "c1", Name: "search", Arguments: map[string]any{"q": "pizza"}},
	)
	require.NoError(t, m.AddTurn(ctx, turn))

	turns, err := m.Turns(ctx)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	require.Len(t, turns[0].Blocks, 2)
	call := turns[0].Blocks[1].(core.FunctionCallBlock)
	assert.Equal(t, "search", call.Name)
	assert.Equal(t, "pizza", call.Arguments["q"])
}

func TestNew_RequiresIdentifiers(t *testing.T) {
	_, err := New(context.Background(), "", "s1")
	require.Error(t, err)
}
