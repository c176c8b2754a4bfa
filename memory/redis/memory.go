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


// Package redis persists conversation memory in Redis, one key per turn
// under a per-session prefix, so sessions survive process restarts and can
// be shared between processes.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/poiesic/maestro/core"
	"github.com/poiesic/maestro/memory"
)

var tracer = otel.Tracer("maestro.memory.redis")

// DefaultExpiration is applied to every session key unless overridden.
const DefaultExpiration = time.Hour

// cmdable is the slice of the go-redis API the store uses. *redis.Client
// satisfies it; tests substitute a double.
type cmdable interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Memory is a Redis-backed memory.Store scoped to one user/session pair.
//
// Turns are stored as JSON under "history:<user>:<session>:<index>" with a
// monotonically increasing index kept at "history:<user>:<session>:next_index",
// so insertion order is the key order. All keys carry the configured
// expiration.
type Memory struct {
	rdb        cmdable
	owns       *redis.Client
	userID     string
	sessionID  string
	expiration time.Duration
	logger     *slog.Logger

	addr     string
	password string
	db       int
}

// Option configures a Memory.
type Option func(*Memory) error

// WithAddr sets the Redis address as host:port. Defaults to localhost:6379.
func WithAddr(addr string) Option {
	return func(m *Memory) error {
		m.addr = addr
		return nil
	}
}

// WithPassword sets the Redis password.
func WithPassword(password string) Option {
	return func(m *Memory) error {
		m.password = password
		return nil
	}
}

// WithDB selects the Redis logical database.
func WithDB(db int) Option {
	return func(m *Memory) error {
		m.db = db
		return nil
	}
}

// WithExpiration sets the TTL applied to every session key. Zero disables
// expiration.
func WithExpiration(d time.Duration) Option {
	return func(m *Memory) error {
		if d < 0 {
			return fmt.Errorf("expiration must not be negative: %v", d)
		}
		m.expiration = d
		return nil
	}
}

// WithClient supplies an existing go-redis client instead of dialing a new
// one. The caller keeps ownership of its lifecycle.
func WithClient(rdb *redis.Client) Option {
	return func(m *Memory) error {
		m.rdb = rdb
		return nil
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Memory) error {
		m.logger = logger
		return nil
	}
}

// New connects to Redis and returns a memory.Store for the given user and
// session. The connection is verified with a ping unless a client was
// injected via WithClient.
func New(ctx context.Context, userID, sessionID string, opts ...Option) (*Memory, error) {
	if userID == "" || sessionID == "" {
		return nil, fmt.Errorf("redis memory: user and session IDs are required")
	}
	m := &Memory{
		userID:     userID,
		sessionID:  sessionID,
		expiration: DefaultExpiration,
		addr:       "localhost:6379",
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("component", "redis-memory")

	if m.rdb == nil {
		client := redis.NewClient(&redis.Options{
			Addr:     m.addr,
			Password: m.password,
			DB:       m.db,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		m.rdb = client
		m.owns = client
	}
	return m, nil
}

// Close releases the connection if New dialed it.
func (m *Memory) Close() error {
	if m.owns != nil {
		return m.owns.Close()
	}
	return nil
}

func (m *Memory) keyPrefix() string {
	return "history:" + m.userID + ":" + m.sessionID
}

func (m *Memory) turnKey(index int64) string {
	return m.keyPrefix() + ":" + strconv.FormatInt(index, 10)
}

func (m *Memory) counterKey() string {
	return m.keyPrefix() + ":next_index"
}

// lastIndex reads the turn counter; 0 means the session is empty.
func (m *Memory) lastIndex(ctx context.Context) (int64, error) {
	val, err := m.rdb.Get(ctx, m.counterKey()).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read turn counter: %w", err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse turn counter %q: %w", val, err)
	}
	return n, nil
}

func (m *Memory) setTurn(ctx context.Context, index int64, turn memory.Turn) error {
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}
	if err := m.rdb.Set(ctx, m.turnKey(index), payload, m.expiration).Err(); err != nil {
		return fmt.Errorf("store turn %d: %w", index, err)
	}
	return nil
}

// AddTurn implements memory.Store.
func (m *Memory) AddTurn(ctx context.Context, turn memory.Turn) error {
	ctx, span := tracer.Start(ctx, "memory.AddTurn",
		trace.WithAttributes(attribute.String("memory.session", m.sessionID)))
	defer span.End()

	index, err := m.rdb.Incr(ctx, m.counterKey()).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("advance turn counter: %w", err)
	}
	if err := m.setTurn(ctx, index, turn); err != nil {
		span.RecordError(err)
		return err
	}
	if m.expiration > 0 {
		if err := m.rdb.Expire(ctx, m.counterKey(), m.expiration).Err(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("refresh counter expiration: %w", err)
		}
	}
	return nil
}

// AddToLastTurn implements memory.Store.
func (m *Memory) AddToLastTurn(ctx context.Context, block core.Block) error {
	ctx, span := tracer.Start(ctx, "memory.AddToLastTurn",
		trace.WithAttributes(attribute.String("memory.session", m.sessionID)))
	defer span.End()

	last, err := m.lastIndex(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if last == 0 {
		return m.AddTurn(ctx, memory.NewTurn(core.RoleAssistant, block))
	}

	raw, err := m.rdb.Get(ctx, m.turnKey(last)).Result()
	if err == redis.Nil {
		// The turn expired out from under the counter.
		return m.AddTurn(ctx, memory.NewTurn(core.RoleAssistant, block))
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("read turn %d: %w", last, err)
	}
	var turn memory.Turn
	if err := json.Unmarshal([]byte(raw), &turn); err != nil {
		span.RecordError(err)
		return fmt.Errorf("decode turn %d: %w", last, err)
	}
	turn.Blocks = append(turn.Blocks, block)
	if err := m.setTurn(ctx, last, turn); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// Turns implements memory.Store. Turns that expired individually are skipped.
func (m *Memory) Turns(ctx context.Context) ([]memory.Turn, error) {
	ctx, span := tracer.Start(ctx, "memory.Turns",
		trace.WithAttributes(attribute.String("memory.session", m.sessionID)))
	defer span.End()

	last, err := m.lastIndex(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if last == 0 {
		return nil, nil
	}

	keys := make([]string, 0, last)
	for i := int64(1); i <= last; i++ {
		keys = append(keys, m.turnKey(i))
	}
	values, err := m.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("read turns: %w", err)
	}

	turns := make([]memory.Turn, 0, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected value type %T for turn %d", v, i+1)
		}
		var turn memory.Turn
		if err := json.Unmarshal([]byte(s), &turn); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("decode turn %d: %w", i+1, err)
		}
		turns = append(turns, turn)
	}
	span.SetAttributes(attribute.Int("memory.turns", len(turns)))
	return turns, nil
}

// Clear implements memory.Store. It removes every turn and the counter.
func (m *Memory) Clear(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "memory.Clear",
		trace.WithAttributes(attribute.String("memory.session", m.sessionID)))
	defer span.End()

	last, err := m.lastIndex(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	keys := make([]string, 0, last+1)
	for i := int64(1); i <= last; i++ {
		keys = append(keys, m.turnKey(i))
	}
	keys = append(keys, m.counterKey())
	if err := m.rdb.Del(ctx, keys...).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete session keys: %w", err)
	}
	m.logger.Debug("session cleared", "user", m.userID, "session", m.sessionID, "turns", last)
	return nil
}

var _ memory.Store = (*Memory)(nil)
