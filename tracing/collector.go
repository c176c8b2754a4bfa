package tracing

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Collector accumulates finished spans in memory so a run can be inspected
// or pretty-printed afterwards. It implements sdktrace.SpanProcessor and can
// sit alongside an exporting processor on the same provider.
type Collector struct {
	mu    sync.Mutex
	spans []sdktrace.ReadOnlySpan
}

// NewCollector returns an empty collector. Register it with Observe or
// directly on an SDK tracer provider.
func NewCollector() *Collector { return &Collector{} }

// Observe registers the collector on the installed SDK tracer provider. When
// the global provider is not an SDK one (nothing called Init), a fresh
// provider with no exporters is installed so spans are still recorded.
func Observe(c *Collector) {
	mu.Lock()
	defer mu.Unlock()
	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	if !ok {
		tp = sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
	}
	tp.RegisterSpanProcessor(c)
}

// OnStart implements sdktrace.SpanProcessor.
func (c *Collector) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

// OnEnd implements sdktrace.SpanProcessor.
func (c *Collector) OnEnd(s sdktrace.ReadOnlySpan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = append(c.spans, s)
}

// Shutdown implements sdktrace.SpanProcessor.
func (c *Collector) Shutdown(context.Context) error { return nil }

// ForceFlush implements sdktrace.SpanProcessor.
func (c *Collector) ForceFlush(context.Context) error { return nil }

// Spans returns the finished spans collected so far, in end order.
func (c *Collector) Spans() []sdktrace.ReadOnlySpan {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sdktrace.ReadOnlySpan, len(c.spans))
	copy(out, c.spans)
	return out
}

// Reset discards everything collected so far.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spans = nil
}

// Trace runs fn inside a named span. The error, if any, is recorded on the
// span and returned unchanged.
func (c *Collector) Trace(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := Start(ctx, name)
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Render writes the collected spans as an indented tree, one line per span
// with its name and duration. Spans whose parent was not collected print as
// roots.
func (c *Collector) Render(w io.Writer) {
	spans := c.Spans()
	known := make(map[trace.SpanID]bool, len(spans))
	for _, s := range spans {
		known[s.SpanContext().SpanID()] = true
	}
	children := make(map[trace.SpanID][]sdktrace.ReadOnlySpan)
	var roots []sdktrace.ReadOnlySpan
	for _, s := range spans {
		parent := s.Parent()
		if parent.IsValid() && known[parent.SpanID()] {
			children[parent.SpanID()] = append(children[parent.SpanID()], s)
		} else {
			roots = append(roots, s)
		}
	}
	byStart := func(spans []sdktrace.ReadOnlySpan) {
		sort.SliceStable(spans, func(i, j int) bool {
			return spans[i].StartTime().Before(spans[j].StartTime())
		})
	}
	byStart(roots)
	for _, group := range children {
		byStart(group)
	}

	var walk func(s sdktrace.ReadOnlySpan, depth int)
	walk = func(s sdktrace.ReadOnlySpan, depth int) {
		d := s.EndTime().Sub(s.StartTime()).Round(time.Microsecond)
		fmt.Fprintf(w, "%s%s  %s", strings.Repeat("  ", depth), s.Name(), d)
		if s.Status().Code == codes.Error {
			fmt.Fprintf(w, "  error=%q", s.Status().Description)
		}
		fmt.Fprintln(w)
		for _, child := range children[s.SpanContext().SpanID()] {
			walk(child, depth+1)
		}
	}
	for _, root := range roots {
		walk(root, 0)
	}
}
