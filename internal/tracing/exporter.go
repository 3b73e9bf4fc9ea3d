package tracing

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ErrExporterClosed is returned by ExportSpans after Shutdown.
var ErrExporterClosed = errors.New("span exporter shut down")

// Record is the JSON line written for each span. Registry and service ids
// are lifted out of the attributes so trace files can be grepped by them.
type Record struct {
	Trace      string         `json:"trace"`
	Span       string         `json:"span"`
	Parent     string         `json:"parent,omitempty"`
	Name       string         `json:"name"`
	Start      time.Time      `json:"start"`
	Micros     int64          `json:"us"`
	Error      string         `json:"error,omitempty"`
	Failed     bool           `json:"failed,omitempty"`
	RegistryID string         `json:"registry,omitempty"`
	ServiceID  int64          `json:"service,omitempty"`
	Attrs      map[string]any `json:"attrs,omitempty"`
	Events     []RecordEvent  `json:"events,omitempty"`
}

// RecordEvent is a span event inside a Record.
type RecordEvent struct {
	Name  string         `json:"name"`
	At    time.Time      `json:"at"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Exporter writes spans as JSON lines. It implements sdktrace.SpanExporter.
type Exporter struct {
	mu       sync.Mutex
	buf      *bufio.Writer
	closer   io.Closer
	exported uint64
}

var _ sdktrace.SpanExporter = (*Exporter)(nil)

// NewFileExporter appends spans to path, creating the file and its
// directory when missing. Shutdown closes the file.
func NewFileExporter(path string) (*Exporter, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- configured trace path
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return &Exporter{buf: bufio.NewWriter(f), closer: f}, nil
}

// NewWriterExporter writes spans to w. Shutdown leaves w open.
func NewWriterExporter(w io.Writer) *Exporter {
	return &Exporter{buf: bufio.NewWriter(w)}
}

// ExportSpans encodes a batch and flushes it.
func (e *Exporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	if len(spans) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.buf == nil {
		return ErrExporterClosed
	}
	enc := json.NewEncoder(e.buf)
	for _, s := range spans {
		if err := enc.Encode(toRecord(s)); err != nil {
			return fmt.Errorf("encode span %s: %w", s.Name(), err)
		}
		e.exported++
	}
	return e.buf.Flush()
}

// Shutdown flushes buffered output and closes the file it owns.
func (e *Exporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.buf == nil {
		return nil
	}
	err := e.buf.Flush()
	e.buf = nil
	if e.closer != nil {
		err = errors.Join(err, e.closer.Close())
		e.closer = nil
	}
	return err
}

// Exported counts spans written so far.
func (e *Exporter) Exported() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exported
}

func toRecord(s sdktrace.ReadOnlySpan) Record {
	sc := s.SpanContext()
	r := Record{
		Trace:  sc.TraceID().String(),
		Span:   sc.SpanID().String(),
		Name:   s.Name(),
		Start:  s.StartTime(),
		Micros: s.EndTime().Sub(s.StartTime()).Microseconds(),
		Attrs:  attrMap(s.Attributes()),
	}
	if p := s.Parent(); p.IsValid() {
		r.Parent = p.SpanID().String()
	}
	if st := s.Status(); st.Code == codes.Error {
		r.Failed = true
		r.Error = st.Description
	}

	if id, ok := r.Attrs[AttrRegistryID].(string); ok {
		r.RegistryID = id
		delete(r.Attrs, AttrRegistryID)
	}
	if id, ok := r.Attrs[AttrServiceID].(int64); ok {
		r.ServiceID = id
		delete(r.Attrs, AttrServiceID)
	}
	if len(r.Attrs) == 0 {
		r.Attrs = nil
	}

	for _, ev := range s.Events() {
		r.Events = append(r.Events, RecordEvent{
			Name:  ev.Name,
			At:    ev.Time,
			Attrs: attrMap(ev.Attributes),
		})
	}
	return r
}

func attrMap(kvs []attribute.KeyValue) map[string]any {
	if len(kvs) == 0 {
		return nil
	}
	m := make(map[string]any, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value.AsInterface()
	}
	return m
}
