package etl

import (
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"dbpoll/internal/dbclient"
	"dbpoll/internal/domain"
	"dbpoll/internal/metrics"
	"dbpoll/internal/value"
)

// ── Row Mapper ─────────────────────────────────────────────
// Turns a row into an object keyed by column name. A column that cannot be
// normalized is emitted as null; the rest of the row is kept.

// MapRow maps one row. The returned errors describe the columns that were
// replaced by null, in column order.
func MapRow(row dbclient.Row, enc domain.TimeEncoding) (*value.Object, []error) {
	obj := value.NewObject(len(row.Columns))
	var errs []error
	for i, col := range row.Columns {
		var native dbclient.NativeValue = dbclient.Null{}
		if i < len(row.Values) {
			native = row.Values[i]
		}
		v, err := NormalizeWith(col.Name, native, enc)
		if err != nil {
			errs = append(errs, err)
			v = value.Null
		}
		// Duplicate names collapse: last value wins, first position kept.
		obj.Set(col.Name, v)
	}
	return obj, errs
}

// RowMapper maps whole result sets for one source, counting and logging
// the columns that degraded to null. Logging is throttled so a bad column in
// a large result set does not flood the output.
type RowMapper struct {
	source  string
	enc     domain.TimeEncoding
	log     zerolog.Logger
	metrics *metrics.Metrics
	limiter *rate.Limiter
	dropped int
}

func NewRowMapper(source string, enc domain.TimeEncoding, log zerolog.Logger, m *metrics.Metrics) *RowMapper {
	if enc == "" {
		enc = domain.TimeEncodingObject
	}
	return &RowMapper{
		source:  source,
		enc:     enc,
		log:     log,
		metrics: m,
		limiter: rate.NewLimiter(rate.Limit(5), 5),
	}
}

// Map converts every row of rs, preserving order.
func (m *RowMapper) Map(rs *dbclient.ResultSet) []*value.Object {
	if rs == nil {
		return nil
	}
	out := make([]*value.Object, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		obj, errs := MapRow(row, m.enc)
		for _, err := range errs {
			m.report(err)
		}
		out = append(out, obj)
	}
	return out
}

func (m *RowMapper) report(err error) {
	kind := "unsupported"
	var nerr *NormalizeError
	if errors.As(err, &nerr) {
		kind = string(nerr.Kind)
	}
	m.metrics.NormalizationFailure(m.source, kind)

	if !m.limiter.Allow() {
		m.dropped++
		return
	}
	ev := m.log.Warn().Err(err).Str("kind", kind)
	if m.dropped > 0 {
		ev = ev.Int("suppressed", m.dropped)
		m.dropped = 0
	}
	ev.Msg("etl: column emitted as null")
}
