package sinks

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"dbpoll/internal/etl"
	"dbpoll/internal/value"
)

// ── JSON Lines Sink ────────────────────────────────────────
// Writes each record as one JSON object per line, keys in emission order:
// {"source":..., "timestamp":..., "message":[...]}. Writes never block, so
// a batch is written in full even when ctx is already cancelled.

type JSONLines struct {
	mu sync.Mutex
	w  *bufio.Writer
}

var _ etl.Sink = (*JSONLines)(nil)

func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: bufio.NewWriter(w)}
}

func (s *JSONLines) Send(_ context.Context, records []etl.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range records {
		line, err := json.Marshal(lineObject(rec))
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		line = append(line, '\n')
		if _, err := s.w.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	return s.w.Flush()
}

func lineObject(rec etl.Record) *value.Object {
	o := value.NewObject(3)
	if rec.Source != "" {
		o.Set("source", value.Bytes(rec.Source))
	}
	o.Set(etl.TimestampKey, value.NewTimestamp(rec.Timestamp))
	o.Set(etl.MessageKey, rec.Message)
	return o
}
