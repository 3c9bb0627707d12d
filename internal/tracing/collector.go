// Package tracing records what a run did: one trace per run, one span per
// model call or tool execution. Spans are buffered in memory and flushed
// to the run store in batches so the loop never waits on a disk write.
package tracing

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/driftware/deskhand/internal/store"
)

const (
	defaultFlushInterval = 5 * time.Second
	defaultBufferSize    = 1000
	previewMaxLen        = 500
)

// SpanSink receives flushed span batches. Satisfied by the SQLite run
// store.
type SpanSink interface {
	AppendSpans([]store.Span) error
}

// SpanExporter is implemented by backends that receive spans alongside
// the run store (e.g. OpenTelemetry OTLP). Keeping this as an interface
// lets the OTel dependency live in a separate sub-package.
type SpanExporter interface {
	ExportSpans(ctx context.Context, spans []store.Span)
	Shutdown(ctx context.Context) error
}

// Collector buffers spans and periodically flushes them to the sink in
// batches. EmitSpan never blocks the caller.
type Collector struct {
	sink SpanSink

	spanCh chan store.Span
	stopCh chan struct{}
	wg     sync.WaitGroup

	verbose  bool         // when true, model spans include full input previews
	exporter SpanExporter // optional external exporter (nil = disabled)
}

// NewCollector creates a tracing collector backed by the given sink.
// Set DESKHAND_TRACE_VERBOSE=1 to include full model input in spans.
func NewCollector(sink SpanSink) *Collector {
	verbose := os.Getenv("DESKHAND_TRACE_VERBOSE") != ""
	if verbose {
		slog.Info("tracing: verbose mode enabled (DESKHAND_TRACE_VERBOSE)")
	}
	return &Collector{
		sink:    sink,
		spanCh:  make(chan store.Span, defaultBufferSize),
		stopCh:  make(chan struct{}),
		verbose: verbose,
	}
}

// Verbose reports whether full model input previews are recorded.
func (c *Collector) Verbose() bool { return c.verbose }

// SetExporter attaches an external span exporter. When set, spans are
// also exported during each flush cycle.
func (c *Collector) SetExporter(exp SpanExporter) {
	c.exporter = exp
}

// Start begins the background flush loop.
func (c *Collector) Start() {
	c.wg.Add(1)
	go c.flushLoop()
	slog.Debug("tracing collector started")
}

// Stop shuts down the collector, flushing remaining spans.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()

	if c.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.exporter.Shutdown(ctx); err != nil {
			slog.Warn("tracing: span exporter shutdown failed", "error", err)
		}
	}
}

// EmitSpan enqueues a span for async batch insertion. Non-blocking:
// drops the span if the buffer is full.
func (c *Collector) EmitSpan(span store.Span) {
	if span.SpanID == "" {
		span.SpanID = uuid.NewString()
	}
	if span.EndAt.IsZero() {
		span.EndAt = time.Now().UTC()
	}
	span.Input = Preview(span.Input)
	span.Output = Preview(span.Output)

	select {
	case c.spanCh <- span:
	default:
		slog.Warn("tracing: span buffer full, dropping span",
			"kind", span.Kind, "name", span.Name)
	}
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-c.stopCh:
			// Drain remaining spans
			c.flush()
			return
		}
	}
}

func (c *Collector) flush() {
	var spans []store.Span
	for {
		select {
		case span := <-c.spanCh:
			spans = append(spans, span)
		default:
			goto done
		}
	}
done:
	if len(spans) == 0 {
		return
	}

	if err := c.sink.AppendSpans(spans); err != nil {
		slog.Warn("tracing: batch span insert failed", "count", len(spans), "error", err)
	} else {
		slog.Debug("tracing: flushed spans", "count", len(spans))
	}

	if c.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.exporter.ExportSpans(ctx, spans)
	}
}

// Preview sanitizes and truncates a string to previewMaxLen bytes.
func Preview(s string) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= previewMaxLen {
		return s
	}
	maxLen := previewMaxLen
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
