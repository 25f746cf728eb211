package metrics

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Tick("a", TickOK)
		m.Rows("a", 3)
		m.NormalizationFailure("a", "range")
		m.QueryDuration("a", time.Second)
		m.PollerState("a", 1)
		m.PoolStats("a", sql.DBStats{})
	})
}

func TestCounters(t *testing.T) {
	m := New()
	m.Tick("users", TickOK)
	m.Tick("users", TickOK)
	m.Tick("users", TickFailed)
	m.Rows("users", 5)
	m.PoolStats("users", sql.DBStats{OpenConnections: 1, InUse: 1})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ticks.WithLabelValues("users", TickOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticks.WithLabelValues("users", TickFailed)))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.rows.WithLabelValues("users")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.poolConns.WithLabelValues("users", "num_in_use")))
}

func TestRouter(t *testing.T) {
	m := New()
	m.Rows("users", 2)
	srv := httptest.NewServer(Router(m, func() map[string]string {
		return map[string]string{"users": "waiting"}
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "waiting", body.Sources["users"])

	resp2, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp2.Body.Close()
	raw, err := io.ReadAll(resp2.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `dbpoll_rows_total{source="users"} 2`)
}
