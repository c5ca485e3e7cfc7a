package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngineMetrics(reg)

	m.ObserveInbound("idle", "choosing_service")
	m.ObserveInbound("idle", "choosing_service")
	m.ObserveSend("ok")
	m.ObserveBooking("confirmed")
	m.ObserveOrder("failed")
	m.ObserveFallback("ok")
	m.ObserveSlotSearch(0.12, 5)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.inboundTotal.WithLabelValues("idle", "choosing_service")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sendTotal.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.bookingTotal.WithLabelValues("confirmed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.orderTotal.WithLabelValues("failed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.fallbackTotal.WithLabelValues("ok")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestEngineMetricsNilReceiver(t *testing.T) {
	var m *EngineMetrics

	assert.NotPanics(t, func() {
		m.ObserveInbound("idle", "idle")
		m.ObserveSend("ok")
		m.ObserveBooking("confirmed")
		m.ObserveOrder("confirmed")
		m.ObserveFallback("error")
		m.ObserveSlotSearch(0, 0)
	})
}
