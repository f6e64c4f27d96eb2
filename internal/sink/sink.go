// Package sink is the downstream "logger" collaborator spec.md §1 and §6
// describe: once the worker pool finishes enriching and filtering an
// image, it hands the resulting Record here. The core does not format
// logs or touch the wire (spec.md §1); this package is the reference
// implementation of that external boundary, not part of the core.
package sink

import (
	"encoding/json"
	"io"
	"sync"
)

// Sink receives finished records. Implementations must be safe for
// concurrent use: multiple worker goroutines may call Emit concurrently.
type Sink interface {
	Emit(rec Record) error
}

// Record is the event-sink-facing projection of an enriched image. It is
// deliberately decoupled from procmon.Image (which carries internal
// refcounting/flags state that is none of the sink's concern).
type Record struct {
	PID        int               `json:"pid"`
	Path       string            `json:"path"`
	Argv       []string          `json:"argv,omitempty"`
	Envv       []string          `json:"envv,omitempty"`
	Cwd        string            `json:"cwd"`
	ScriptPath string            `json:"script_path,omitempty"`
	MD5        string            `json:"md5,omitempty"`
	SHA1       string            `json:"sha1,omitempty"`
	SHA256     string            `json:"sha256,omitempty"`
	SHA512     string            `json:"sha512,omitempty"`
	CodesignOK bool              `json:"codesign_ok,omitempty"`
	CodesignID string            `json:"codesign_ident,omitempty"`
	Ancestors  []string          `json:"ancestors,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// JSONLSink writes one newline-delimited JSON object per record to a
// single io.Writer, grounded on ingest/log.Logger's single-writer,
// mutex-guarded write path.
type JSONLSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{enc: json.NewEncoder(w)}
}

func (s *JSONLSink) Emit(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(rec)
}

// NullSink discards every record unless built with keep=true; used by
// tests and benchmarks that only care about the enrichment pipeline's
// side effects (Stats, caches) or the records themselves.
type NullSink struct {
	mu      sync.Mutex
	records []Record
	keep    bool
}

// NewNullSink builds a NullSink. If keep is true, Emit also appends to an
// in-memory slice retrievable via Records, for assertions in tests.
func NewNullSink(keep bool) *NullSink {
	return &NullSink{keep: keep}
}

func (s *NullSink) Emit(rec Record) error {
	if !s.keep {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *NullSink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}
