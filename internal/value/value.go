// Package value is the generic value model emitted by database sources.
//
// The set of variants is closed: Null, Boolean, Integer, Float, Bytes,
// Timestamp, Array and Object. A Float never holds NaN; the only way to build
// one is NewFloat, which rejects it.
package value

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrNaN is returned by NewFloat for a not-a-number input.
var ErrNaN = errors.New("value: float is NaN")

// Kind identifies the variant of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBoolean
	KindInteger
	KindFloat
	KindBytes
	KindTimestamp
	KindArray
	KindObject
)

var kindNames = [...]string{
	KindNull:      "null",
	KindBoolean:   "boolean",
	KindInteger:   "integer",
	KindFloat:     "float",
	KindBytes:     "bytes",
	KindTimestamp: "timestamp",
	KindArray:     "array",
	KindObject:    "object",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

type Value interface {
	isValue()
	Kind() Kind
	Equal(v Value) bool
	String() string
	Clone() Value
}

var _ Value = Null
var _ Value = Boolean(true)
var _ Value = Integer(0)
var _ Value = Float{}
var _ Value = Bytes(nil)
var _ Value = Timestamp{}
var _ Value = Array(nil)
var _ Value = (*Object)(nil)

type null_ struct{}

// Null is the only value of the null variant.
var Null = null_{}

func (n null_) isValue()   {}
func (n null_) Kind() Kind { return KindNull }
func (n null_) Equal(v Value) bool {
	_, ok := v.(null_)
	return ok
}
func (n null_) String() string { return "Null" }
func (n null_) Clone() Value   { return Null }

type Boolean bool

func (b Boolean) isValue()   {}
func (b Boolean) Kind() Kind { return KindBoolean }
func (b Boolean) Equal(v Value) bool {
	o, ok := v.(Boolean)
	return ok && o == b
}
func (b Boolean) String() string { return fmt.Sprintf("Boolean(%v)", bool(b)) }
func (b Boolean) Clone() Value   { return b }

type Integer int64

func (i Integer) isValue()   {}
func (i Integer) Kind() Kind { return KindInteger }
func (i Integer) Equal(v Value) bool {
	o, ok := v.(Integer)
	return ok && o == i
}
func (i Integer) String() string { return fmt.Sprintf("Integer(%d)", int64(i)) }
func (i Integer) Clone() Value   { return i }

// Float is a 64-bit float that is never NaN.
type Float struct {
	f float64
}

// NewFloat returns ErrNaN when f is not a number. Infinities are accepted.
func NewFloat(f float64) (Float, error) {
	if math.IsNaN(f) {
		return Float{}, ErrNaN
	}
	return Float{f: f}, nil
}

func (f Float) Float64() float64 { return f.f }
func (f Float) isValue()         {}
func (f Float) Kind() Kind       { return KindFloat }
func (f Float) Equal(v Value) bool {
	o, ok := v.(Float)
	return ok && o.f == f.f
}
func (f Float) String() string { return fmt.Sprintf("Float(%v)", f.f) }
func (f Float) Clone() Value   { return f }

type Bytes []byte

func (b Bytes) isValue()   {}
func (b Bytes) Kind() Kind { return KindBytes }
func (b Bytes) Equal(v Value) bool {
	o, ok := v.(Bytes)
	return ok && bytes.Equal(o, b)
}
func (b Bytes) String() string { return fmt.Sprintf("Bytes(%q)", []byte(b)) }
func (b Bytes) Clone() Value {
	if b == nil {
		return Bytes(nil)
	}
	return Bytes(bytes.Clone(b))
}

// Timestamp is an instant in UTC.
type Timestamp struct {
	t time.Time
}

// NewTimestamp converts t to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: t.UTC()}
}

func (t Timestamp) Time() time.Time { return t.t }
func (t Timestamp) isValue()        {}
func (t Timestamp) Kind() Kind      { return KindTimestamp }
func (t Timestamp) Equal(v Value) bool {
	o, ok := v.(Timestamp)
	return ok && o.t.Equal(t.t)
}
func (t Timestamp) String() string {
	return fmt.Sprintf("Timestamp(%s)", t.t.Format(time.RFC3339Nano))
}
func (t Timestamp) Clone() Value { return t }

type Array []Value

func (a Array) isValue()   {}
func (a Array) Kind() Kind { return KindArray }
func (a Array) Equal(v Value) bool {
	o, ok := v.(Array)
	if !ok || len(o) != len(a) {
		return false
	}
	for i, av := range a {
		if !av.Equal(o[i]) {
			return false
		}
	}
	return true
}
func (a Array) String() string {
	sb := strings.Builder{}
	sb.WriteString("[")
	for i, v := range a {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(v.String())
	}
	sb.WriteString("]")
	return sb.String()
}
func (a Array) Clone() Value {
	clone := make(Array, 0, len(a))
	for _, v := range a {
		clone = append(clone, v.Clone())
	}
	return clone
}
