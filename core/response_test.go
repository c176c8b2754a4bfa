package core

import (
	"testing"
)

func TestResponse_Text(t *testing.T) {
	r := &Response{Content: Blocks{
		TextBlock{Content: "first"},
		FunctionCallBlock{ID: "1", Name: "f"},
		TextBlock{Content: "second"},
	}}
	if got := r.Text(); got != "first\nsecond" {
		t.Errorf("Text() = %q, want %q", got, "first\nsecond")
	}
}

func TestResponse_FirstText(t *testing.T) {
	r := &Response{Content: Blocks{
		ThoughtBlock{Content: "hmm"},
		TextBlock{Content: "answer"},
	}}
	got, ok := r.FirstText()
	if !ok || got != "answer" {
		t.Errorf("FirstText() = %q, %v", got, ok)
	}

	empty := &Response{}
	if _, ok := empty.FirstText(); ok {
		t.Error("FirstText() on empty response reported ok")
	}
}

func TestResponse_FunctionCalls(t *testing.T) {
	r := &Response{Content: Blocks{
		TextBlock{Content: "calling"},
		FunctionCallBlock{ID: "a", Name: "one"},
		FunctionCallBlock{ID: "b", Name: "two"},
	}}
	calls := r.FunctionCalls()
	if len(calls) != 2 || calls[0].Name != "one" || calls[1].Name != "two" {
		t.Errorf("FunctionCalls() = %v", calls)
	}
}

func TestResponse_Purity(t *testing.T) {
	text := &Response{Content: Blocks{TextBlock{Content: "a"}, TextBlock{Content: "b"}}}
	if !text.IsPureText() {
		t.Error("IsPureText() = false for text-only response")
	}
	if text.IsPureFunctionCall() {
		t.Error("IsPureFunctionCall() = true for text-only response")
	}

	call := &Response{Content: Blocks{FunctionCallBlock{ID: "1", Name: "f"}}}
	if call.IsPureText() {
		t.Error("IsPureText() = true for call-only response")
	}
	if !call.IsPureFunctionCall() {
		t.Error("IsPureFunctionCall() = false for call-only response")
	}
}

func TestTokenUsage_Add(t *testing.T) {
	a := TokenUsage{Prompt: 10, Completion: 5, Cached: 2, Thinking: 1}
	b := TokenUsage{Prompt: 3, Completion: 4}
	got := a.Add(b)
	want := TokenUsage{Prompt: 13, Completion: 9, Cached: 2, Thinking: 1}
	if got != want {
		t.Errorf("Add() = %+v, want %+v", got, want)
	}
}

func TestResponse_Thoughts(t *testing.T) {
	r := &Response{Content: Blocks{
		ThoughtBlock{Content: "step 1"},
		TextBlock{Content: "answer"},
		ThoughtBlock{Content: "step 2"},
	}}
	if got := r.Thoughts(); got != "step 1\nstep 2" {
		t.Errorf("Thoughts() = %q", got)
	}
}
