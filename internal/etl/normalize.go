package etl

import (
	"errors"
	"fmt"
	"math"
	"time"

	"dbpoll/internal/dbclient"
	"dbpoll/internal/domain"
	"dbpoll/internal/value"
)

// ── Normalizer ─────────────────────────────────────────────
// Converts one native MySQL value into the generic value model.
// Pure: no I/O, no logging.

// ErrNormalize is matched by every *NormalizeError.
var ErrNormalize = errors.New("etl: value cannot be normalized")

// NormalizeKind classifies a normalization failure.
type NormalizeKind string

const (
	KindRange       NormalizeKind = "range"
	KindNaN         NormalizeKind = "nan"
	KindInvalidDate NormalizeKind = "invalid_date"
)

// NormalizeError names the column whose value could not be represented.
type NormalizeError struct {
	Column string
	Kind   NormalizeKind
	Detail string
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("normalize column %q: %s: %s", e.Column, e.Kind, e.Detail)
}

func (e *NormalizeError) Unwrap() error {
	return ErrNormalize
}

// Time object keys used by the structured TIME encoding.
const (
	TimeNegativeKey     = "negative"
	TimeDaysKey         = "days"
	TimeHoursKey        = "hours"
	TimeMinutesKey      = "minutes"
	TimeSecondsKey      = "seconds"
	TimeMicrosecondsKey = "microseconds"
)

// Normalize converts v using the structured TIME encoding.
func Normalize(column string, v dbclient.NativeValue) (value.Value, error) {
	return NormalizeWith(column, v, domain.TimeEncodingObject)
}

// NormalizeWith converts v, encoding TIME values as enc asks.
func NormalizeWith(column string, v dbclient.NativeValue, enc domain.TimeEncoding) (value.Value, error) {
	switch x := v.(type) {
	case nil, dbclient.Null:
		return value.Null, nil
	case dbclient.Bytes:
		return value.Bytes(x), nil
	case dbclient.Int:
		return value.Integer(x), nil
	case dbclient.UInt:
		if uint64(x) > math.MaxInt64 {
			return nil, &NormalizeError{Column: column, Kind: KindRange,
				Detail: fmt.Sprintf("%d overflows int64", uint64(x))}
		}
		return value.Integer(int64(x)), nil
	case dbclient.Float:
		return normalizeFloat(column, float64(x))
	case dbclient.Double:
		return normalizeFloat(column, float64(x))
	case dbclient.Date:
		return normalizeDate(column, x)
	case dbclient.Time:
		if enc == domain.TimeEncodingBytes {
			return timeBytes(x), nil
		}
		return timeObject(x), nil
	default:
		return nil, fmt.Errorf("normalize column %q: unsupported native value %T", column, v)
	}
}

func normalizeFloat(column string, f float64) (value.Value, error) {
	fv, err := value.NewFloat(f)
	if err != nil {
		return nil, &NormalizeError{Column: column, Kind: KindNaN, Detail: err.Error()}
	}
	return fv, nil
}

// normalizeDate reads the fields as a UTC instant. Fields that time.Date
// would roll over (Feb 30, hour 24, month 0) are rejected.
func normalizeDate(column string, d dbclient.Date) (value.Value, error) {
	invalid := func() error {
		return &NormalizeError{Column: column, Kind: KindInvalidDate,
			Detail: fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d.%06d",
				d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second, d.Micro)}
	}
	if d.Month < 1 || d.Month > 12 || d.Day < 1 ||
		d.Hour > 23 || d.Minute > 59 || d.Second > 59 || d.Micro > 999_999 {
		return nil, invalid()
	}
	t := time.Date(int(d.Year), time.Month(d.Month), int(d.Day),
		int(d.Hour), int(d.Minute), int(d.Second), int(d.Micro)*1000, time.UTC)
	if t.Day() != int(d.Day) || t.Month() != time.Month(d.Month) {
		return nil, invalid()
	}
	return value.NewTimestamp(t), nil
}

func timeObject(t dbclient.Time) *value.Object {
	o := value.NewObject(6)
	o.Set(TimeNegativeKey, value.Boolean(t.Negative))
	o.Set(TimeDaysKey, value.Integer(t.Days))
	o.Set(TimeHoursKey, value.Integer(t.Hours))
	o.Set(TimeMinutesKey, value.Integer(t.Minutes))
	o.Set(TimeSecondsKey, value.Integer(t.Seconds))
	o.Set(TimeMicrosecondsKey, value.Integer(t.Micros))
	return o
}

// timeBytes is the legacy 6-byte layout. Days and microseconds are
// truncated to their low byte.
func timeBytes(t dbclient.Time) value.Bytes {
	var neg byte
	if t.Negative {
		neg = 1
	}
	return value.Bytes{neg, byte(t.Days), t.Hours, t.Minutes, t.Seconds, byte(t.Micros)}
}
