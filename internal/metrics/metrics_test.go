package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Reading(ResultAccepted)
	m.Reading(ResultAccepted)
	m.Reading(ResultDuplicate)
	m.Credit("earned")
	m.Alert("critical")
	m.Derivation(3 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.readings.WithLabelValues(ResultAccepted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.readings.WithLabelValues(ResultDuplicate)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.credits.WithLabelValues("earned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alerts.WithLabelValues("critical")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Reading(ResultFailed)
		m.Credit("deficit")
		m.Alert("high")
		m.Notification("sent")
		m.Derivation(time.Second)
	})
}
