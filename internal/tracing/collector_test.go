package tracing

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/driftware/deskhand/internal/store"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]store.Span
}

func (f *fakeSink) AppendSpans(spans []store.Span) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, spans)
	return nil
}

func (f *fakeSink) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func TestCollector_FlushOnStop(t *testing.T) {
	sink := &fakeSink{}
	c := NewCollector(sink)
	c.Start()

	c.EmitSpan(store.Span{RunID: "r1", Name: "model.chat", Kind: "model", StartAt: time.Now()})
	c.EmitSpan(store.Span{RunID: "r1", Name: "tool.bash", Kind: "tool", StartAt: time.Now()})
	c.Stop()

	if sink.total() != 2 {
		t.Errorf("flushed %d spans, want 2", sink.total())
	}
}

func TestEmitSpan_FillsDefaults(t *testing.T) {
	sink := &fakeSink{}
	c := NewCollector(sink)
	c.Start()
	c.EmitSpan(store.Span{RunID: "r1", Name: "tool.computer", Kind: "tool", StartAt: time.Now()})
	c.Stop()

	if sink.total() != 1 {
		t.Fatalf("flushed %d spans", sink.total())
	}
	sp := sink.batches[0][0]
	if sp.SpanID == "" {
		t.Error("span id not assigned")
	}
	if sp.EndAt.IsZero() {
		t.Error("end time not assigned")
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("short"); got != "short" {
		t.Errorf("Preview(short) = %q", got)
	}
	long := strings.Repeat("é", previewMaxLen)
	got := Preview(long)
	if len(got) > previewMaxLen+3 {
		t.Errorf("preview too long: %d bytes", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("missing ellipsis")
	}
	// Truncation must not split a multi-byte rune.
	if !strings.HasPrefix(long, strings.TrimSuffix(got, "...")) {
		t.Error("preview split a rune")
	}
}
