package sinks

import (
	"context"
	"encoding/json"
	"fmt"

	"dbpoll/internal/domain"
	"dbpoll/internal/etl"
)

// ── SQLite Sink ────────────────────────────────────────────
// Persists every record as one row through a domain.RecordStore. Inserts
// are local and short, so records handed over during shutdown are still
// written.

type SQLite struct {
	Store domain.RecordStore
}

var _ etl.Sink = (*SQLite)(nil)

func (s *SQLite) Send(_ context.Context, records []etl.Record) error {
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		if err := s.Store.InsertRecord(&domain.StoredRecord{
			Source:      rec.Source,
			CapturedAt:  rec.Timestamp,
			RowCount:    rec.Len(),
			PayloadJSON: string(payload),
		}); err != nil {
			return err
		}
	}
	return nil
}
