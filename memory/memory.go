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


package memory

import (
	"context"
	"sync"
	"time"

	"github.com/poiesic/maestro/core"
)

// Turn is one entry in a conversation: who spoke, what they produced, and
// when. Blocks keep generation order.
type Turn struct {
	Role   core.Role   `json:"role"`
	Blocks core.Blocks `json:"blocks"`
	At     time.Time   `json:"at"`
}

// NewTurn builds a Turn stamped with the current time.
func NewTurn(role core.Role, blocks ...core.Block) Turn {
	return Turn{Role: role, Blocks: blocks, At: time.Now().UTC()}
}

// Store is the session-memory contract shared by the in-process Memory and
// persistent backends. Implementations must return turns in insertion order.
type Store interface {
	// AddTurn appends a turn to the session.
	AddTurn(ctx context.Context, turn Turn) error

	// AddToLastTurn appends a block to the most recent turn, creating an
	// assistant turn when the session is empty.
	AddToLastTurn(ctx context.Context, block core.Block) error

	// Turns returns every turn of the session in insertion order.
	Turns(ctx context.Context) ([]Turn, error)

	// Clear removes all turns from the session.
	Clear(ctx context.Context) error
}

// Memory is the in-process Store. It is safe for concurrent use; the zero
// value is ready.
type Memory struct {
	mu    sync.Mutex
	turns []Turn
}

// New returns an empty in-process memory.
func New() *Memory {
	return &Memory{}
}

// AddTurn implements Store.
func (m *Memory) AddTurn(_ context.Context, turn Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
	return nil
}

// AddToLastTurn implements Store.
func (m *Memory) AddToLastTurn(_ context.Context, block core.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.turns) == 0 {
		m.turns = append(m.turns, NewTurn(core.RoleAssistant))
	}
	last := &m.turns[len(m.turns)-1]
	last.Blocks = append(last.Blocks, block)
	return nil
}

// Turns implements Store. The returned slice is a copy.
func (m *Memory) Turns(_ context.Context) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Turn, len(m.turns))
	copy(out, m.turns)
	return out, nil
}

// Clear implements Store.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = nil
	return nil
}

// Len returns the number of turns.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// Copy returns an independent memory holding the same turns.
func (m *Memory) Copy() *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	dup := &Memory{turns: make([]Turn, len(m.turns))}
	copy(dup.turns, m.turns)
	return dup
}
