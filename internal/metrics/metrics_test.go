package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats struct{ total, outstanding int }

func (f fixedStats) Len() int              { return f.total }
func (f fixedStats) OutstandingCount() int { return f.outstanding }

func TestMetrics_Counters(t *testing.T) {
	m := New(fixedStats{total: 12, outstanding: 5})

	m.ObserveNotification("new_alarm")
	m.ObserveNotification("new_alarm")
	m.ObserveResync(nil)
	m.ObserveResync(errors.New("down"))
	m.ObserveSoundDropped()
	m.ObserveCommand("resolve", nil)
	m.ObserveProjection(3 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("new_alarm")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResyncsTotal.WithLabelValues(resultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SoundsDroppedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProjectionsTotal))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "klaxon_alarms 12")
	assert.Contains(t, string(body), "klaxon_alarms_outstanding 5")
	assert.Contains(t, string(body), `klaxon_commands_total{action="resolve",result="success"} 1`)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveNotification("x")
	m.ObserveResync(nil)
	m.ObserveReconnect()
	m.ObserveProjection(time.Second)
	m.ObserveSoundPlayed("MAJOR")
	m.ObserveSoundDropped()
	m.ObserveCommand("resolve", nil)
}
