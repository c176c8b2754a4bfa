package mock

import (
	"context"
	"errors"
	"testing"
)

func TestDeterministicVectors(t *testing.T) {
	m := New()

	first, err := m.EmbedOne(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("EmbedOne() error = %v", err)
	}
	second, err := m.EmbedOne(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("EmbedOne() error = %v", err)
	}

	if len(first) != DefaultDim {
		t.Errorf("vector length = %d, want %d", len(first), DefaultDim)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same text produced different vectors at index %d", i)
		}
	}

	other, err := m.EmbedOne(context.Background(), "something else")
	if err != nil {
		t.Fatalf("EmbedOne() error = %v", err)
	}
	same := true
	for i := range first {
		if first[i] != other[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical vectors")
	}
}

func TestEmbedBatch(t *testing.T) {
	m := NewWithDim(16)

	vectors, err := m.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vectors))
	}
	for i, v := range vectors {
		if len(v) != 16 {
			t.Errorf("vector %d length = %d, want 16", i, len(v))
		}
	}
	if m.Dim() != 16 {
		t.Errorf("Dim() = %d, want 16", m.Dim())
	}
}

func TestFunctionFieldInjection(t *testing.T) {
	m := New()
	wantErr := errors.New("embedder down")
	m.EmbedFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, wantErr
	}

	_, err := m.Embed(context.Background(), []string{"a"})
	if !errors.Is(err, wantErr) {
		t.Errorf("Embed() error = %v, want %v", err, wantErr)
	}

	if m.CallCount() != 1 {
		t.Errorf("CallCount() = %d, want 1", m.CallCount())
	}

	m.Reset()
	if m.CallCount() != 0 {
		t.Errorf("CallCount() after Reset = %d, want 0", m.CallCount())
	}
	if m.EmbedFunc != nil {
		t.Error("Reset did not clear EmbedFunc")
	}
}
