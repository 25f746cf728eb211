package value

import (
	"encoding/json"
	"math"
	"time"
	"unicode/utf8"
)

// MarshalJSON renders values for line-oriented sinks. Bytes that are valid
// UTF-8 become strings, anything else is base64 encoded. Timestamps use
// RFC 3339 with nanoseconds. Infinite floats, which JSON cannot carry, are
// written as the strings "+Inf" and "-Inf".

func (n null_) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func (b Boolean) MarshalJSON() ([]byte, error) { return json.Marshal(bool(b)) }

func (i Integer) MarshalJSON() ([]byte, error) { return json.Marshal(int64(i)) }

func (f Float) MarshalJSON() ([]byte, error) {
	switch {
	case math.IsInf(f.f, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(f.f, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(f.f)
}

func (b Bytes) MarshalJSON() ([]byte, error) {
	if utf8.Valid(b) {
		return json.Marshal(string(b))
	}
	return json.Marshal([]byte(b))
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.t.UTC().Format(time.RFC3339Nano))
}

func (a Array) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Value(a))
}

// MarshalJSON writes the keys in insertion order. The zero Object is {}.
func (o *Object) MarshalJSON() ([]byte, error) {
	if o == nil || o.fields == nil {
		return []byte("{}"), nil
	}
	return o.fields.MarshalJSON()
}
