package domain

import (
	"strings"
	"time"

	"github.com/samber/mo"
)

// DatabaseDriver represents the type of database engine.
type DatabaseDriver string

const (
	DatabaseDriverMySQL DatabaseDriver = "mysql"
)

const (
	DefaultHost      = "localhost"
	DefaultMySQLPort = 3306
)

// ConnectionConfig holds what is needed to reach the database of one source.
// Everything except host and port is optional.
type ConnectionConfig struct {
	Driver   DatabaseDriver
	Host     string
	Port     int
	Database mo.Option[string]
	User     mo.Option[string]
	Password mo.Option[string]
}

// WithDefaults fills in the loopback host and the driver's well-known port.
func (c ConnectionConfig) WithDefaults() ConnectionConfig {
	if c.Driver == "" {
		c.Driver = DatabaseDriverMySQL
	}
	if strings.TrimSpace(c.Host) == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultMySQLPort
	}
	return c
}

// ScheduleSpec is a cron expression plus the timezone it is evaluated in.
// No expression means the statement runs exactly once.
type ScheduleSpec struct {
	Expression mo.Option[string]
	Timezone   mo.Option[string]
}

// TimeEncoding selects how MySQL TIME values are represented.
type TimeEncoding string

const (
	TimeEncodingObject TimeEncoding = "object" // {negative, days, hours, ...}
	TimeEncodingBytes  TimeEncoding = "bytes"  // legacy 6-byte payload
)

// ErrorPolicy decides what a connection or query failure does to the poll loop.
type ErrorPolicy string

const (
	ErrorPolicyFail ErrorPolicy = "fail" // stop the source
	ErrorPolicySkip ErrorPolicy = "skip" // retry briefly, then wait for the next tick
)

// SourceConfig is the immutable configuration of one polling source.
type SourceConfig struct {
	Name                string
	Connection          ConnectionConfig
	Statement           string
	Schedule            ScheduleSpec
	TimeEncoding        TimeEncoding
	OnError             ErrorPolicy
	CircuitTripFailures int
}

// OptionalString maps blank strings to None.
func OptionalString(s string) mo.Option[string] {
	if strings.TrimSpace(s) == "" {
		return mo.None[string]()
	}
	return mo.Some(s)
}

// StoredRecord is an emitted record persisted by the SQLite sink.
type StoredRecord struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	CapturedAt  time.Time `json:"capturedAt"`
	RowCount    int       `json:"rowCount"`
	PayloadJSON string    `json:"payloadJson"`
}

// RecordStore persists emitted records.
type RecordStore interface {
	InsertRecord(r *StoredRecord) error
	ListRecords(source string, limit int) ([]StoredRecord, error)
}
