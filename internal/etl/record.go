package etl

import (
	"encoding/json"
	"time"

	"dbpoll/internal/value"
)

// ── Record ─────────────────────────────────────────────────
// One record is emitted per successful tick. It carries the capture
// instant and every row of the result set, in result order.

const (
	TimestampKey = "timestamp"
	MessageKey   = "message"
)

// Record is a single tick's output flowing to a Sink. It is not mutated
// after NewRecord returns.
type Record struct {
	// Source names the configured source that produced the record. It is
	// routing metadata and not part of Object.
	Source    string
	Timestamp time.Time
	Message   value.Array
}

// NewRecord builds a record captured at ts. The time is kept in UTC.
func NewRecord(source string, ts time.Time, rows []*value.Object) Record {
	msg := make(value.Array, len(rows))
	for i, r := range rows {
		msg[i] = r
	}
	return Record{Source: source, Timestamp: ts.UTC(), Message: msg}
}

// Object returns the record as a generic object with "timestamp" and
// "message" keys.
func (r Record) Object() *value.Object {
	o := value.NewObject(2)
	o.Set(TimestampKey, value.NewTimestamp(r.Timestamp))
	o.Set(MessageKey, r.Message)
	return o
}

// Len is the number of rows carried by the record.
func (r Record) Len() int {
	return len(r.Message)
}

func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Object())
}
