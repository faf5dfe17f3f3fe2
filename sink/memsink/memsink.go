// Package memsink implements core.ResultSink entirely in memory, the
// reference sink used by the engine's own tests and by small local tools
// that don't need a streaming HTTP response writer.
package memsink

import (
	"context"
	"sync"

	"github.com/ayudhien/erddap/core"
)

// Sink accumulates every chunk written to it. Safe for concurrent
// WriteSome/WriteAllAndFinish calls from a single query execution (the
// executor itself never calls concurrently, but tests that race a cancel
// against a write benefit from the lock).
type Sink struct {
	mu       sync.Mutex
	chunks   []*core.Table
	finished bool
}

func New() *Sink {
	return &Sink{}
}

func (s *Sink) WriteSome(ctx context.Context, chunk *core.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *Sink) WriteAllAndFinish(ctx context.Context, chunk *core.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
	s.finished = true
	return nil
}

func (s *Sink) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	return nil
}

// Chunks returns every chunk written so far, in write order.
func (s *Sink) Chunks() []*core.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*core.Table, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Finished reports whether Finish or WriteAllAndFinish has been called.
func (s *Sink) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// TotalRows sums NumRows across every accumulated chunk.
func (s *Sink) TotalRows() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.chunks {
		if c != nil && c.Record != nil {
			n += c.Record.NumRows()
		}
	}
	return n
}
