package storage

import (
	"fmt"

	"dbpoll/internal/domain"

	"github.com/google/uuid"
)

// RecordStore persists emitted records in SQLite.
type RecordStore struct {
	db *DB
}

var _ domain.RecordStore = (*RecordStore)(nil)

// NewRecordStore creates a new RecordStore.
func NewRecordStore(db *DB) *RecordStore {
	return &RecordStore{db: db}
}

// InsertRecord stores r, assigning an ID when it has none.
func (s *RecordStore) InsertRecord(r *domain.StoredRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	_, err := s.db.conn.Exec(
		`INSERT INTO records (id, source, captured_at, row_count, payload_json)
		 VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Source, r.CapturedAt.UTC(), r.RowCount, r.PayloadJSON,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// ListRecords returns the newest records of source, newest first.
// A non-positive limit returns every record.
func (s *RecordStore) ListRecords(source string, limit int) ([]domain.StoredRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.conn.Query(
		`SELECT id, source, captured_at, row_count, payload_json
		 FROM records WHERE source = ?
		 ORDER BY captured_at DESC, created_at DESC LIMIT ?`, source, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []domain.StoredRecord
	for rows.Next() {
		var r domain.StoredRecord
		if err := rows.Scan(&r.ID, &r.Source, &r.CapturedAt, &r.RowCount, &r.PayloadJSON); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.CapturedAt = r.CapturedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
