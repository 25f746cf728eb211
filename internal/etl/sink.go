package etl

import (
	"context"
	"sync"
)

// ─────────────────────────────────────────────────────────────
// Sink: decouples the poll loop from where records go
// ─────────────────────────────────────────────────────────────

// Sink receives emitted records. Send is awaited by the caller and may block
// to apply backpressure. An error from Send stops the source.
type Sink interface {
	Send(ctx context.Context, records []Record) error
}

// MockSink is a test-friendly Sink that records all batches.
type MockSink struct {
	mu      sync.Mutex
	Batches [][]Record
	// Err, when set, is returned from every Send.
	Err error
}

func (m *MockSink) Send(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Batches = append(m.Batches, records)
	return nil
}

// Records returns every record received so far, flattened in send order.
func (m *MockSink) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, b := range m.Batches {
		out = append(out, b...)
	}
	return out
}
