package dbclient

// NativeValue is a value as the MySQL client hands it over, before it is
// normalized into the generic value model. The set is closed: Null, Bytes,
// Int, UInt, Float, Double, Date and Time.
type NativeValue interface {
	isNative()
}

type Null struct{}

// Bytes is an opaque payload. With the text protocol every scalar column,
// numeric ones included, can arrive this way.
type Bytes []byte

type Int int64

type UInt uint64

type Float float32

type Double float64

// Date carries calendar and clock fields as stored, with no timezone.
// The fields are not validated here.
type Date struct {
	Year   uint16
	Month  uint8
	Day    uint8
	Hour   uint8
	Minute uint8
	Second uint8
	Micro  uint32
}

// Time is a MySQL TIME value: a signed duration up to 838:59:59.
type Time struct {
	Negative bool
	Days     uint32
	Hours    uint8
	Minutes  uint8
	Seconds  uint8
	Micros   uint32
}

func (Null) isNative()   {}
func (Bytes) isNative()  {}
func (Int) isNative()    {}
func (UInt) isNative()   {}
func (Float) isNative()  {}
func (Double) isNative() {}
func (Date) isNative()   {}
func (Time) isNative()   {}

// Column describes one result column.
type Column struct {
	Name         string `json:"name"`
	DatabaseType string `json:"type"`
}

// Row is one result row; Values line up with Columns.
type Row struct {
	Columns []Column
	Values  []NativeValue
}

// ResultSet is a fully materialized query result.
type ResultSet struct {
	Columns []Column
	Rows    []Row
}
