package dbclient

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FromDriver converts a scanned driver value into a NativeValue.
// databaseType is the column's DatabaseTypeName as reported by the driver;
// it is used to recover temporal and unsigned values that arrive as text.
func FromDriver(v any, databaseType string) (NativeValue, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case []byte:
		return fromText(x, databaseType), nil
	case string:
		return fromText([]byte(x), databaseType), nil
	case int64:
		return Int(x), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int16:
		return Int(int64(x)), nil
	case int8:
		return Int(int64(x)), nil
	case uint64:
		return UInt(x), nil
	case uint:
		return UInt(uint64(x)), nil
	case uint32:
		return UInt(uint64(x)), nil
	case uint16:
		return UInt(uint64(x)), nil
	case uint8:
		return UInt(uint64(x)), nil
	case float32:
		return Float(x), nil
	case float64:
		return Double(x), nil
	case bool:
		if x {
			return Int(1), nil
		}
		return Int(0), nil
	case time.Time:
		// Wall-clock fields are taken as they are; no zone conversion.
		return Date{
			Year:   uint16(x.Year()),
			Month:  uint8(x.Month()),
			Day:    uint8(x.Day()),
			Hour:   uint8(x.Hour()),
			Minute: uint8(x.Minute()),
			Second: uint8(x.Second()),
			Micro:  uint32(x.Nanosecond() / 1000),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported driver value %T", v)
	}
}

func fromText(b []byte, databaseType string) NativeValue {
	switch strings.ToUpper(databaseType) {
	case "DATE", "DATETIME", "TIMESTAMP":
		if d, ok := parseDate(string(b)); ok {
			return d
		}
	case "TIME":
		if t, ok := parseTime(string(b)); ok {
			return t
		}
	case "UNSIGNED BIGINT":
		// The driver returns values above MaxInt64 as text.
		if u, err := strconv.ParseUint(string(b), 10, 64); err == nil {
			return UInt(u)
		}
	}
	return Bytes(bytes.Clone(b))
}

// parseDate reads "YYYY-MM-DD[ HH:MM:SS[.ffffff]]" without checking that the
// date exists, so zero dates and Feb 30 survive until normalization.
func parseDate(s string) (Date, bool) {
	if len(s) < 10 || s[4] != '-' || s[7] != '-' {
		return Date{}, false
	}
	year, ok1 := digits(s[0:4])
	month, ok2 := digits(s[5:7])
	day, ok3 := digits(s[8:10])
	if !ok1 || !ok2 || !ok3 {
		return Date{}, false
	}
	d := Date{Year: uint16(year), Month: uint8(month), Day: uint8(day)}
	if len(s) == 10 {
		return d, true
	}

	if len(s) < 19 || (s[10] != ' ' && s[10] != 'T') || s[13] != ':' || s[16] != ':' {
		return Date{}, false
	}
	hour, ok1 := digits(s[11:13])
	minute, ok2 := digits(s[14:16])
	second, ok3 := digits(s[17:19])
	if !ok1 || !ok2 || !ok3 {
		return Date{}, false
	}
	d.Hour, d.Minute, d.Second = uint8(hour), uint8(minute), uint8(second)
	if len(s) == 19 {
		return d, true
	}

	if s[19] != '.' {
		return Date{}, false
	}
	micro, ok := fraction(s[20:])
	if !ok {
		return Date{}, false
	}
	d.Micro = micro
	return d, true
}

// parseTime reads "[-]H+:MM:SS[.ffffff]".
func parseTime(s string) (Time, bool) {
	var t Time
	if strings.HasPrefix(s, "-") {
		t.Negative = true
		s = s[1:]
	}
	i := strings.IndexByte(s, ':')
	if i <= 0 {
		return Time{}, false
	}
	hours, ok := digits(s[:i])
	if !ok {
		return Time{}, false
	}
	rest := s[i+1:]
	if len(rest) < 5 || rest[2] != ':' {
		return Time{}, false
	}
	minutes, ok1 := digits(rest[0:2])
	seconds, ok2 := digits(rest[3:5])
	if !ok1 || !ok2 {
		return Time{}, false
	}
	if len(rest) > 5 {
		if rest[5] != '.' {
			return Time{}, false
		}
		micro, ok := fraction(rest[6:])
		if !ok {
			return Time{}, false
		}
		t.Micros = micro
	}
	t.Days = uint32(hours / 24)
	t.Hours = uint8(hours % 24)
	t.Minutes = uint8(minutes)
	t.Seconds = uint8(seconds)
	return t, true
}

func digits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// fraction turns 1 to 6 fractional digits into microseconds.
func fraction(s string) (uint32, bool) {
	if len(s) == 0 || len(s) > 6 {
		return 0, false
	}
	n, ok := digits(s)
	if !ok {
		return 0, false
	}
	for i := len(s); i < 6; i++ {
		n *= 10
	}
	return uint32(n), true
}
